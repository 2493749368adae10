// Package mock provides a recording [tts.Provider] for tests.
//
//	p := &mock.Provider{Audio: tts.Audio{Data: pcm, Format: tts.FormatPCM16, SampleRate: 16000}}
//	_, _ = p.Synthesize(ctx, tts.Request{Text: "It is 2:05 PM Afternoon"})
//	p.Texts() // ["It is 2:05 PM Afternoon"]
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/murmur/pkg/provider/tts"
)

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

// silence is 100 ms of 16 kHz PCM16, answered when Audio is unset.
var silence = tts.Audio{Data: make([]byte, 3200), Format: tts.FormatPCM16, SampleRate: 16000}

// Provider answers every request with the configured payload or error.
// Set the exported fields before the provider is shared.
type Provider struct {
	// Audio is the synthesized payload. Zero means 100 ms of silence.
	Audio tts.Audio

	// SynthesizeErr, if set, fails every Synthesize call.
	SynthesizeErr error

	// Voices and ListVoicesErr are the ListVoices result.
	Voices        []tts.Voice
	ListVoicesErr error

	mu       sync.Mutex
	requests []tts.Request
}

// Synthesize records req and returns the configured result.
func (p *Provider) Synthesize(_ context.Context, req tts.Request) (tts.Audio, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.SynthesizeErr != nil {
		return tts.Audio{}, p.SynthesizeErr
	}
	if p.Audio.Data == nil {
		return silence, nil
	}
	return p.Audio, nil
}

// ListVoices implements tts.VoiceLister.
func (p *Provider) ListVoices(context.Context) ([]tts.Voice, error) {
	return slices.Clone(p.Voices), p.ListVoicesErr
}

// Requests returns the recorded requests in call order.
func (p *Provider) Requests() []tts.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.requests)
}

// Texts returns the text of every recorded request.
func (p *Provider) Texts() []string {
	reqs := p.Requests()
	texts := make([]string, len(reqs))
	for i, r := range reqs {
		texts[i] = r.Text
	}
	return texts
}
