// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify which audio the caller submitted and to script
// transcription results or failures.
//
// Example:
//
//	p := &mock.Provider{Text: "what time is it"}
//	t, _ := p.Transcribe(ctx, stt.Request{Audio: wavBytes})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the request passed to Transcribe.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned as the transcript text. An empty Text makes Transcribe
	// return stt.ErrEmptyTranscript, mirroring real providers.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Hook, if set, runs at the start of Transcribe with the call context.
	// Tests use it to block a turn in flight.
	Hook func(ctx context.Context)

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns Text or Err.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Req: req})
	hook, text, err := p.Hook, p.Text, p.Err
	p.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	if err != nil {
		return stt.Transcript{}, err
	}
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}
	return stt.Finish(text)
}

// SetText replaces the scripted transcript text. Thread-safe.
func (p *Provider) SetText(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Text = text
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)
