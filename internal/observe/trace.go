package observe

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the Murmur tracer.
const tracerName = "github.com/MrWong99/murmur"

// Tracer returns the Murmur [trace.Tracer] from the globally registered
// [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// TurnID returns the trace ID of the span in ctx, or "" without one. Every
// turn and every reminder delivery is its own trace, so the ID groups the
// log lines of one exchange.
func TurnID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with turn_id and span_id attached when
// ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("turn_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}

// EndSpan records err on span (when non-nil), sets the span status and ends
// the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Turn stages timed by [Stage].
const (
	StageSTT = "stt"
	StageLLM = "llm"
	StageTTS = "tts"
)

// Stage starts a child span for one provider call of a turn. The returned
// function ends the span with the call's error and, when m is non-nil,
// records the seconds elapsed on clk into the stage's latency histogram. A
// nil clk measures with the real clock.
func Stage(ctx context.Context, clk clockwork.Clock, stage string, m *Metrics) (context.Context, func(error)) {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	start := clk.Now()
	ctx, span := StartSpan(ctx, "turn."+stage)
	return ctx, func(err error) {
		if h := m.stageHistogram(stage); h != nil {
			h.Record(ctx, clk.Since(start).Seconds())
		}
		EndSpan(span, err)
	}
}
