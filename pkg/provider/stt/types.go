package stt

import "time"

// Transcript represents a speech-to-text result from an STT provider.
type Transcript struct {
	// Text is the transcribed speech content. Never empty on success.
	Text string

	// Language is the language the backend reports having recognised. Empty when
	// the backend does not report it.
	Language string

	// Duration is the length of the transcribed audio, when known.
	Duration time.Duration
}
