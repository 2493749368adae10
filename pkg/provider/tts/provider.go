// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., OpenAI speech or the
// ElevenLabs streaming API) and presents a uniform request/response
// interface: one complete text in, one complete audio payload out. The caller
// decodes the payload with Audio.Decode and hands the samples to a player.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/murmur/pkg/audio/wav"
)

var (
	// ErrErrorBody is returned when a provider answered with an error document
	// (JSON or XML/HTML) where audio bytes were expected.
	ErrErrorBody = errors.New("tts: provider returned an error body instead of audio")

	// ErrEmptyAudio is returned when a provider answered with no audio at all.
	ErrEmptyAudio = errors.New("tts: provider returned no audio")
)

// maxQuotedBody caps how much of an error body is quoted in errors.
const maxQuotedBody = 256

// Format names an audio payload encoding.
type Format string

const (
	// FormatWAV is a RIFF/WAVE container.
	FormatWAV Format = "wav"

	// FormatPCM16 is raw 16-bit signed little-endian mono PCM.
	FormatPCM16 Format = "pcm16"
)

// Request is a single synthesis request.
type Request struct {
	// Text is the full text to speak.
	Text string

	// Voice is the provider-specific voice identifier. Empty selects the
	// provider default.
	Voice string

	// Format is the preferred output encoding. Providers that cannot honour
	// it return whatever they produce and report it in Audio.Format.
	Format Format
}

// Audio is a synthesized speech payload.
type Audio struct {
	// Data holds the encoded audio bytes.
	Data []byte

	// Format is the encoding of Data.
	Format Format

	// SampleRate is the sample rate of Data in Hz. For FormatWAV it is
	// informational; the header is authoritative.
	SampleRate int
}

// Decode turns the payload into float32 samples.
func (a Audio) Decode() (wav.Audio, error) {
	switch a.Format {
	case FormatWAV:
		return wav.Decode(a.Data)
	case FormatPCM16:
		if a.SampleRate <= 0 {
			return wav.Audio{}, fmt.Errorf("tts: pcm16 audio without sample rate")
		}
		return wav.Audio{
			Samples:    wav.PCM16ToFloat(a.Data),
			SampleRate: a.SampleRate,
			Channels:   1,
		}, nil
	default:
		return wav.Audio{}, fmt.Errorf("tts: unknown audio format %q", a.Format)
	}
}

// Voice describes one voice offered by a provider.
type Voice struct {
	// ID is the provider-specific voice identifier used in Request.Voice.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (gender, accent, ...).
	Metadata map[string]string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts req.Text to speech and returns the complete payload.
	//
	// Returns ErrErrorBody (wrapped) when the service answered with an error
	// document, and a wrapped transport error when the request failed.
	// Synthesize never retries.
	Synthesize(ctx context.Context, req Request) (Audio, error)
}

// VoiceLister is implemented by providers that can enumerate their voices.
type VoiceLister interface {
	// ListVoices returns all voices available from the provider.
	ListVoices(ctx context.Context) ([]Voice, error)
}

// CheckPayload inspects the first byte of a response that should carry
// audio. A leading '{' or '<' marks a JSON or XML/HTML error document, in
// which case the returned error wraps ErrErrorBody and quotes the body.
func CheckPayload(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyAudio
	}
	switch data[0] {
	case '{', '<':
		body := data
		if len(body) > maxQuotedBody {
			body = body[:maxQuotedBody]
		}
		return fmt.Errorf("%w: %s", ErrErrorBody, bytes.TrimSpace(body))
	}
	return nil
}
