package observe

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// probePaths are hit every few seconds by supervisors and scrapers. They are
// timed but not traced, and logged at debug level.
var probePaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments the health and metrics server. Every request is
// timed into [Metrics.HTTPRequestDuration] with method, path and status
// attributes. Requests outside probePaths also get a server span that
// continues an incoming W3C trace context, and the trace ID is echoed in the
// X-Trace-ID response header.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			probe := probePaths[r.URL.Path]

			ctx := r.Context()
			var span trace.Span
			if !probe {
				ctx = prop.Extract(ctx, propagation.HeaderCarrier(r.Header))
				ctx, span = StartSpan(ctx, "HTTP "+r.Method+" "+r.URL.Path,
					trace.WithSpanKind(trace.SpanKindServer),
					trace.WithAttributes(
						semconv.HTTPRequestMethodKey.String(r.Method),
						semconv.URLPath(r.URL.Path),
					),
				)
				if id := TurnID(ctx); id != "" {
					w.Header().Set("X-Trace-ID", id)
				}
				r = r.WithContext(ctx)
			}

			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			if span != nil {
				span.SetAttributes(semconv.HTTPResponseStatusCode(rec.statusCode))
				span.End()
			}
			m.recordRequest(ctx, r.Method, r.URL.Path, rec.statusCode, elapsed)

			level := slog.LevelInfo
			if probe {
				level = slog.LevelDebug
			}
			slog.LogAttrs(ctx, level, "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Duration("duration", elapsed),
			)
		})
	}
}

func (m *Metrics) recordRequest(ctx context.Context, method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
			attribute.String("status", strconv.Itoa(status)),
		),
	)
}
