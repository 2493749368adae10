// Package observe carries Murmur's telemetry: OpenTelemetry metrics with a
// Prometheus scrape endpoint, turn tracing, trace-aware structured logging
// and the HTTP middleware of the status server.
//
// Components take a *[Metrics]; a nil *Metrics disables recording in the
// helpers that accept one. [DefaultMetrics] is bound to the global meter
// provider that [InitProvider] installs. Tests build their own with
// [NewMetrics] and an SDK manual reader.
package observe

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every Murmur instrument.
const meterName = "github.com/MrWong99/murmur"

// Metrics holds the application's instruments. The OTel types are safe for
// concurrent use.
type Metrics struct {
	// Turn pipeline latencies, in seconds.
	STTDuration  metric.Float64Histogram
	LLMDuration  metric.Float64Histogram
	TTSDuration  metric.Float64Histogram
	TurnDuration metric.Float64Histogram

	// UtteranceLength is the audio length of submitted utterances.
	UtteranceLength metric.Float64Histogram

	// Turns is labelled with outcome and trigger; see [Metrics.RecordTurn].
	Turns             metric.Int64Counter
	UtterancesDropped metric.Int64Counter
	FalseTriggers     metric.Int64Counter

	// Provider calls, labelled with provider and kind; requests also with
	// status.
	ProviderRequests metric.Int64Counter
	ProviderErrors   metric.Int64Counter

	// Reminder lifecycle. RemindersScheduled is labelled with mode.
	RemindersScheduled metric.Int64Counter
	RemindersFired     metric.Int64Counter
	PendingReminders   metric.Int64UpDownCounter

	// CaptureSuspended is 1 while playback holds the microphone.
	CaptureSuspended metric.Int64UpDownCounter

	// HTTPRequestDuration is labelled with method, path and status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// utteranceBuckets defines histogram bucket boundaries (in seconds) for
// spoken utterance lengths.
var utteranceBuckets = []float64{
	0.5, 1, 2, 3, 5, 8, 13, 20, 30,
}

// NewMetrics creates every instrument on a meter from mp. It fails on the
// first instrument the provider rejects.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}

	histograms := []struct {
		dst     *metric.Float64Histogram
		name    string
		desc    string
		buckets []float64
	}{
		{&met.STTDuration, "murmur.stt.duration", "Latency of speech-to-text transcription.", latencyBuckets},
		{&met.LLMDuration, "murmur.llm.duration", "Latency of dialogue replies.", latencyBuckets},
		{&met.TTSDuration, "murmur.tts.duration", "Latency of text-to-speech synthesis.", latencyBuckets},
		{&met.TurnDuration, "murmur.turn.duration", "End-to-end latency of a conversational turn.", latencyBuckets},
		{&met.UtteranceLength, "murmur.utterance.length", "Audio length of utterances submitted for transcription.", utteranceBuckets},
		{&met.HTTPRequestDuration, "murmur.http.request.duration", "HTTP request latency by method, path and status.", nil},
	}
	for _, h := range histograms {
		opts := []metric.Float64HistogramOption{metric.WithDescription(h.desc), metric.WithUnit("s")}
		if h.buckets != nil {
			opts = append(opts, metric.WithExplicitBucketBoundaries(h.buckets...))
		}
		var err error
		if *h.dst, err = m.Float64Histogram(h.name, opts...); err != nil {
			return nil, fmt.Errorf("observe: histogram %s: %w", h.name, err)
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "murmur.provider.requests", "Provider API requests by provider, kind and status."},
		{&met.ProviderErrors, "murmur.provider.errors", "Provider errors by provider and kind."},
		{&met.Turns, "murmur.turns", "Conversational turns by outcome and trigger kind."},
		{&met.UtterancesDropped, "murmur.utterances.dropped", "Utterances discarded while another turn was in progress."},
		{&met.FalseTriggers, "murmur.vad.false_triggers", "Speech segments discarded for being shorter than the minimum."},
		{&met.RemindersScheduled, "murmur.reminders.scheduled", "Reminders accepted by the scheduler by mode."},
		{&met.RemindersFired, "murmur.reminders.fired", "Reminders delivered to subscribers."},
	}
	for _, c := range counters {
		var err error
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("observe: counter %s: %w", c.name, err)
		}
	}

	var err error
	if met.PendingReminders, err = m.Int64UpDownCounter("murmur.reminders.pending",
		metric.WithDescription("Reminders waiting to fire."),
	); err != nil {
		return nil, fmt.Errorf("observe: gauge: %w", err)
	}
	if met.CaptureSuspended, err = m.Int64UpDownCounter("murmur.capture.suspended",
		metric.WithDescription("1 while playback has suspended microphone capture."),
	); err != nil {
		return nil, fmt.Errorf("observe: gauge: %w", err)
	}
	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTurn records a finished turn with its outcome ("ok", "stt_error",
// "llm_error", ...) and the trigger kind of the reply.
func (m *Metrics) RecordTurn(ctx context.Context, outcome, trigger string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("trigger", trigger),
	)
	m.Turns.Add(ctx, 1, attrs)
	m.TurnDuration.Record(ctx, seconds, attrs)
}

// RecordReminderScheduled increments the scheduled counter and the pending
// gauge.
func (m *Metrics) RecordReminderScheduled(ctx context.Context, mode string) {
	m.RemindersScheduled.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
	m.PendingReminders.Add(ctx, 1)
}

// RecordReminderFired increments the fired counter and decrements the
// pending gauge.
func (m *Metrics) RecordReminderFired(ctx context.Context) {
	m.RemindersFired.Add(ctx, 1)
	m.PendingReminders.Add(ctx, -1)
}

// RecordReminderCancelled decrements the pending gauge.
func (m *Metrics) RecordReminderCancelled(ctx context.Context) {
	m.PendingReminders.Add(ctx, -1)
}

// stageHistogram returns the latency histogram of a [Stage], or nil for an
// unknown stage or a nil receiver.
func (m *Metrics) stageHistogram(stage string) metric.Float64Histogram {
	if m == nil {
		return nil
	}
	switch stage {
	case StageSTT:
		return m.STTDuration
	case StageLLM:
		return m.LLMDuration
	case StageTTS:
		return m.TTSDuration
	}
	return nil
}
