package observability

import (
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments used across the proxy's
// components. Instruments are created once at startup and shared with
// middleware, handlers, and service components.
type Metrics struct {
	// HTTP metrics
	HTTPRequestDuration otelmetric.Float64Histogram
	HTTPRequestTotal    otelmetric.Int64Counter
	HTTPRequestErrors   otelmetric.Int64Counter

	// Scheduler metrics
	SchedulerBatchSize     otelmetric.Int64Histogram
	SchedulerFlushLatency  otelmetric.Float64Histogram
	SchedulerUpstreamError otelmetric.Int64Counter

	// Usage ledger metrics
	UsageRecordsWritten otelmetric.Int64Counter
	UsageConsumerNaks   otelmetric.Int64Counter

	// Archiver metrics
	ArchiverRuns         otelmetric.Int64Counter
	ArchiverRowsArchived otelmetric.Int64Counter
	ArchiverDuration     otelmetric.Float64Histogram
}

// NewMetrics creates all metric instruments from the given Meter.
func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http.request.duration",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestTotal, err = meter.Int64Counter(
		"http.request.total",
		otelmetric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestErrors, err = meter.Int64Counter(
		"http.request.errors",
		otelmetric.WithDescription("HTTP request errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, err
	}

	m.SchedulerBatchSize, err = meter.Int64Histogram(
		"scheduler.batch.size",
		otelmetric.WithDescription("Number of waiters dispatched per batch"),
	)
	if err != nil {
		return nil, err
	}

	m.SchedulerFlushLatency, err = meter.Float64Histogram(
		"scheduler.flush.latency",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("Time spent dispatching a single batch to upstream"),
	)
	if err != nil {
		return nil, err
	}

	m.SchedulerUpstreamError, err = meter.Int64Counter(
		"scheduler.upstream.errors",
		otelmetric.WithDescription("Batches that failed due to upstream transport or shape errors"),
	)
	if err != nil {
		return nil, err
	}

	m.UsageRecordsWritten, err = meter.Int64Counter(
		"usage.records.written",
		otelmetric.WithDescription("Usage records persisted to the relational ledger"),
	)
	if err != nil {
		return nil, err
	}

	m.UsageConsumerNaks, err = meter.Int64Counter(
		"usage.consumer.naks",
		otelmetric.WithDescription("Usage records nak'd for redelivery after a failed ledger write"),
	)
	if err != nil {
		return nil, err
	}

	m.ArchiverRuns, err = meter.Int64Counter(
		"archiver.runs",
		otelmetric.WithDescription("Archival runs executed"),
	)
	if err != nil {
		return nil, err
	}

	m.ArchiverRowsArchived, err = meter.Int64Counter(
		"archiver.rows.archived",
		otelmetric.WithDescription("Usage rows moved to cold storage"),
	)
	if err != nil {
		return nil, err
	}

	m.ArchiverDuration, err = meter.Float64Histogram(
		"archiver.duration",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("Archival run duration in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}
