// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector and surfaces it as a
// stateful, per-stream session. Each session consumes fixed-length frames of
// normalised float samples and decides, frame by frame, where an utterance
// begins and ends. When a session closes an utterance it hands the buffered
// samples back in the [Event] so the caller can encode and transmit them.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a detection
// result, making it suitable for the audio polling loop that gates transcription.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import (
	"errors"
	"fmt"
)

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// frames passed to ProcessFrame. Typical: 16000.
	SampleRate int

	// WindowMs is the duration of each audio frame in milliseconds. Every
	// processed frame advances the speech and silence counters by this amount.
	WindowMs int

	// Threshold is the RMS amplitude at or above which a frame counts as
	// voiced. Samples are normalised to [-1, 1], so typical values sit
	// between 0.01 and 0.05.
	Threshold float64

	// SilenceMs is the trailing silence required to close an utterance.
	SilenceMs int

	// MinSpeechMs is the accumulated voiced duration an utterance needs to be
	// emitted. Shorter segments are discarded as false triggers.
	MinSpeechMs int
}

// FrameSamples returns the number of samples in one frame.
func (c Config) FrameSamples() int {
	return c.SampleRate * c.WindowMs / 1000
}

// Validate reports configuration values no session can work with.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("vad: sample rate must be positive, got %d", c.SampleRate))
	}
	if c.WindowMs <= 0 {
		errs = append(errs, fmt.Errorf("vad: window must be positive, got %d ms", c.WindowMs))
	}
	if c.Threshold < 0 {
		errs = append(errs, fmt.Errorf("vad: threshold must not be negative, got %g", c.Threshold))
	}
	if c.SilenceMs < 0 || c.MinSpeechMs < 0 {
		errs = append(errs, errors.New("vad: silence and minimum speech durations must not be negative"))
	}
	return errors.Join(errs...)
}

// SessionHandle represents an active VAD session for a single audio stream. It is
// an interface so that test code can supply mock implementations without a live
// engine. Each session maintains its own detection state; Reset clears this state
// without closing the session.
//
// A SessionHandle should not be shared between goroutines unless the implementation
// explicitly guarantees concurrent safety.
type SessionHandle interface {
	// ProcessFrame analyses a single audio frame and returns the detection
	// result. The frame is WindowMs of mono samples at SampleRate. It never
	// fails; segmentation decisions are final.
	//
	// This method is designed to be called synchronously in the audio polling
	// loop; it must not block.
	ProcessFrame(frame []float32) Event

	// Reset clears all accumulated detection state (buffered samples,
	// counters) without closing the session. Use this when the audio stream is
	// interrupted or restarted so stale state from the previous segment does
	// not leak into subsequent frames.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration. The
	// session is immediately ready to accept audio frames.
	//
	// Returns an error if the configuration is invalid.
	NewSession(cfg Config) (SessionHandle, error)
}
