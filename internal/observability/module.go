// Package observability wires OpenTelemetry metrics for the completion
// proxy: the scheduler's batch/flush measurements and the gateway's HTTP
// request metrics funnel through one Module so a single Prometheus
// endpoint exposes them.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// DefaultServiceName is the meter scope reported to Prometheus when the
// caller has no more specific name (e.g. the apikeytool CLI never starts
// a Module, so only cmd/server needs to care about this).
const DefaultServiceName = "openai-cd2-proxy"

// Module holds the OTel MeterProvider and exposes a Meter for creating
// the proxy's metric instruments. cmd/server builds the shared Metrics
// from its Meter and hands them to the gateway middleware and, through an
// adapter, to the scheduler.
type Module struct {
	provider *sdkmetric.MeterProvider
	meter    otelmetric.Meter
}

// New wires a Prometheus exporter as the metric reader, builds a
// MeterProvider around it, and installs that provider as the process-wide
// OTel default. serviceName becomes the meter's instrumentation scope.
func New(serviceName string) (*Module, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	meter := provider.Meter(serviceName)

	return &Module{
		provider: provider,
		meter:    meter,
	}, nil
}

// Shutdown gracefully shuts down the MeterProvider, flushing any remaining
// metric data.
func (m *Module) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics
// in the standard exposition format. Mount this at "/metrics".
func (m *Module) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Meter returns the OTel Meter for creating metric instruments.
func (m *Module) Meter() otelmetric.Meter {
	return m.meter
}
