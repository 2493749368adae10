// Package audio defines the capture and playback abstractions of the voice
// front-end and the circular buffer that sits between the microphone driver
// and the voice activity detector.
//
// The two device abstractions are:
//
//   - [Device]: a microphone that delivers captured float samples to a
//     callback while started.
//   - [Player]: a speaker that plays a block of float samples to completion.
//
// Driver implementations live in sub-packages (audio/portaudio for real
// hardware, audio/mock for tests). The interfaces are intentionally narrow so
// that the turn-taking logic never depends on a particular driver.
package audio

import "context"

// Device is a capture device. Start begins delivering mono float samples in
// [-1, 1] to onSamples from a driver-owned goroutine; Stop halts delivery.
// A stopped Device may be started again.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Start opens the device and begins invoking onSamples with each captured
	// buffer. The slice passed to onSamples is owned by the callee.
	Start(onSamples func(samples []float32)) error

	// Stop halts capture. After Stop returns no further onSamples calls are
	// made for the previous Start. Stopping a stopped device is a no-op.
	Stop() error

	// Close releases all driver resources.
	Close() error
}

// Player is an output device.
//
// Implementations must be safe for concurrent use, but callers are expected
// to serialise Play calls themselves.
type Player interface {
	// Play blocks until samples (mono, at sampleRate) have been handed to the
	// hardware or ctx is cancelled.
	Play(ctx context.Context, samples []float32, sampleRate int) error

	// Close releases all driver resources.
	Close() error
}
