// Package mock provides in-memory implementations of [audio.Device] and
// [audio.Player] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	dev := &mock.Device{}
//	capture := audio.NewCapture(dev, audio.NewCaptureStream(16000))
//	_ = capture.Start()
//	dev.Emit(make([]float32, 3200)) // delivered to the capture stream
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/murmur/pkg/audio"
)

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.Device]. Samples pushed with
// [Device.Emit] are delivered synchronously to the callback registered by the
// most recent Start, but only while the device is started.
type Device struct {
	mu sync.Mutex

	// StartError is returned by [Device.Start].
	StartError error

	// StopError is returned by [Device.Stop].
	StopError error

	// CloseError is returned by [Device.Close].
	CloseError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	started  bool
	callback func([]float32)
}

// Start implements [audio.Device].
func (d *Device) Start(onSamples func([]float32)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStart++
	if d.StartError != nil {
		return d.StartError
	}
	d.started = true
	d.callback = onSamples
	return nil
}

// Stop implements [audio.Device].
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStop++
	d.started = false
	d.callback = nil
	return d.StopError
}

// Close implements [audio.Device].
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	d.started = false
	d.callback = nil
	return d.CloseError
}

// Started reports whether the device is currently started.
func (d *Device) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// Emit delivers samples to the active callback. It reports whether the
// samples were delivered (false while stopped).
func (d *Device) Emit(samples []float32) bool {
	d.mu.Lock()
	cb := d.callback
	d.mu.Unlock()
	if cb == nil {
		return false
	}
	cp := make([]float32, len(samples))
	copy(cp, samples)
	cb(cp)
	return true
}

// ─── Player ───────────────────────────────────────────────────────────────────

// PlayCall records a single invocation of [Player.Play].
type PlayCall struct {
	Samples    []float32
	SampleRate int
}

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayError is returned by [Player.Play].
	PlayError error

	// CloseError is returned by [Player.Close].
	CloseError error

	// OnPlay, if set, is invoked synchronously from Play before it returns.
	OnPlay func(samples []float32, sampleRate int)

	// PlayCalls records every call to Play in order.
	PlayCalls []PlayCall

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, samples []float32, sampleRate int) error {
	p.mu.Lock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	p.PlayCalls = append(p.PlayCalls, PlayCall{Samples: cp, SampleRate: sampleRate})
	err := p.PlayError
	onPlay := p.OnPlay
	p.mu.Unlock()

	if onPlay != nil {
		onPlay(cp, sampleRate)
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

// Close implements [audio.Player].
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountClose++
	return p.CloseError
}

// Calls returns a snapshot of the recorded Play calls.
func (p *Player) Calls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlayCall, len(p.PlayCalls))
	copy(out, p.PlayCalls)
	return out
}

// Compile-time interface assertions.
var (
	_ audio.Device = (*Device)(nil)
	_ audio.Player = (*Player)(nil)
)
