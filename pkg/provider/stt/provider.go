// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (a local whisper.cpp
// server, the in-process whisper.cpp bindings, or the OpenAI transcription
// API) and exposes a uniform request/response interface. Every request
// carries one complete utterance encoded as a canonical 16-bit PCM WAV file;
// the response is the recognised text.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyTranscript is returned when the backend answered successfully but
// recognised no text (empty, whitespace-only, absent or null).
var ErrEmptyTranscript = errors.New("stt: empty transcript")

// Request is a single transcription request.
type Request struct {
	// Audio is one complete utterance as a WAV file (RIFF, PCM 16-bit).
	Audio []byte

	// Language is the BCP-47 language tag for recognition (e.g., "en", "de").
	// An empty string uses the provider default.
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe uploads req.Audio and waits for the recognised text.
	//
	// Returns ErrEmptyTranscript (possibly wrapped) when the backend returned
	// no text, and a wrapped transport error when the request failed. Transcribe
	// never retries; ctx cancellation aborts the request.
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}

// Finish normalises raw backend text into a Transcript. Whitespace is trimmed
// and an empty result yields ErrEmptyTranscript.
func Finish(text string) (Transcript, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Transcript{}, ErrEmptyTranscript
	}
	return Transcript{Text: text}, nil
}
