package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/murmur/pkg/provider/llm"
	"github.com/MrWong99/murmur/pkg/provider/stt"
	"github.com/MrWong99/murmur/pkg/provider/tts"
)

// Compile-time interface assertions.
var (
	_ stt.Provider    = (*GuardedSTT)(nil)
	_ llm.Provider    = (*GuardedLLM)(nil)
	_ tts.Provider    = (*GuardedTTS)(nil)
	_ tts.VoiceLister = (*GuardedTTS)(nil)
)

// GuardedSTT is an [stt.Provider] whose calls pass through a [CircuitBreaker].
// An empty transcript is a healthy answer and never counts as a failure.
type GuardedSTT struct {
	inner   stt.Provider
	breaker *CircuitBreaker
}

// GuardSTT wraps p with a breaker built from cfg.
func GuardSTT(p stt.Provider, cfg CircuitBreakerConfig) *GuardedSTT {
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool {
			return defaultIsFailure(err) && !errors.Is(err, stt.ErrEmptyTranscript)
		}
	}
	return &GuardedSTT{inner: p, breaker: NewCircuitBreaker(cfg)}
}

// Transcribe implements [stt.Provider].
func (g *GuardedSTT) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	var out stt.Transcript
	err := g.breaker.Execute(func() error {
		var err error
		out, err = g.inner.Transcribe(ctx, req)
		return err
	})
	return out, err
}

// Breaker exposes the underlying breaker for health reporting.
func (g *GuardedSTT) Breaker() *CircuitBreaker { return g.breaker }

// Unwrap returns the guarded provider.
func (g *GuardedSTT) Unwrap() stt.Provider { return g.inner }

// GuardedLLM is an [llm.Provider] whose completions pass through a
// [CircuitBreaker]. CountTokens and Capabilities are local and unguarded.
type GuardedLLM struct {
	inner   llm.Provider
	breaker *CircuitBreaker
}

// GuardLLM wraps p with a breaker built from cfg.
func GuardLLM(p llm.Provider, cfg CircuitBreakerConfig) *GuardedLLM {
	return &GuardedLLM{inner: p, breaker: NewCircuitBreaker(cfg)}
}

// Complete implements [llm.Provider].
func (g *GuardedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var out *llm.CompletionResponse
	err := g.breaker.Execute(func() error {
		var err error
		out, err = g.inner.Complete(ctx, req)
		return err
	})
	return out, err
}

// CountTokens implements [llm.Provider].
func (g *GuardedLLM) CountTokens(messages []llm.Message) (int, error) {
	return g.inner.CountTokens(messages)
}

// Capabilities implements [llm.Provider].
func (g *GuardedLLM) Capabilities() llm.ModelCapabilities {
	return g.inner.Capabilities()
}

// Breaker exposes the underlying breaker for health reporting.
func (g *GuardedLLM) Breaker() *CircuitBreaker { return g.breaker }

// Unwrap returns the guarded provider.
func (g *GuardedLLM) Unwrap() llm.Provider { return g.inner }

// GuardedTTS is a [tts.Provider] whose synthesis calls pass through a
// [CircuitBreaker].
type GuardedTTS struct {
	inner   tts.Provider
	breaker *CircuitBreaker
}

// GuardTTS wraps p with a breaker built from cfg.
func GuardTTS(p tts.Provider, cfg CircuitBreakerConfig) *GuardedTTS {
	return &GuardedTTS{inner: p, breaker: NewCircuitBreaker(cfg)}
}

// Synthesize implements [tts.Provider].
func (g *GuardedTTS) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	var out tts.Audio
	err := g.breaker.Execute(func() error {
		var err error
		out, err = g.inner.Synthesize(ctx, req)
		return err
	})
	return out, err
}

// ListVoices implements [tts.VoiceLister] when the guarded provider does.
func (g *GuardedTTS) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	vl, ok := g.inner.(tts.VoiceLister)
	if !ok {
		return nil, errors.New("resilience: provider cannot list voices")
	}
	return vl.ListVoices(ctx)
}

// Breaker exposes the underlying breaker for health reporting.
func (g *GuardedTTS) Breaker() *CircuitBreaker { return g.breaker }

// Unwrap returns the guarded provider.
func (g *GuardedTTS) Unwrap() tts.Provider { return g.inner }
