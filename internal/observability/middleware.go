package observability

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// statusRecorder wraps http.ResponseWriter to capture the status code the
// handler actually wrote, since net/http gives no other way to read it back.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// HTTPMetrics returns middleware that records request duration, a total
// count, and an error count (status >= 400), tagged by method, path, and
// status, using the raw URL path. The completions, health, ready and
// metrics routes are fixed paths; the admin key routes carry a caller
// name in the path, so each distinct name used there adds its own path
// value.
//
// Usage:
//
//	handler := observability.HTTPMetrics(metrics)(yourHandler)
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			elapsedMs := float64(time.Since(start).Milliseconds())

			attrs := otelmetric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("path", r.URL.Path),
				attribute.Int("status", rec.status),
			)

			metrics.HTTPRequestDuration.Record(r.Context(), elapsedMs, attrs)
			metrics.HTTPRequestTotal.Add(r.Context(), 1, attrs)

			if rec.status >= 400 {
				metrics.HTTPRequestErrors.Add(r.Context(), 1, attrs)
			}
		})
	}
}
