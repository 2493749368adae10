// Package playback keeps the microphone from recording the device's own
// speech output.
//
// A [Guard] owns the capture state machine. Playback suspends capture
// immediately; a cancellable wait of the playback estimate plus a cooldown
// then resumes it. A new playback during that wait replaces the pending wait
// rather than queueing behind it.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/MrWong99/murmur/internal/observe"
)

const defaultCooldown = 500 * time.Millisecond

// ErrSuspended is returned by StartListening while playback holds capture.
var ErrSuspended = errors.New("playback: capture suspended during playback")

// CaptureState is the state of the microphone.
type CaptureState int

const (
	// Idle means capture is stopped and will not resume on its own.
	Idle CaptureState = iota

	// Listening means capture is running.
	Listening

	// Suspended means playback stopped capture and a resume is pending.
	Suspended
)

// String returns the human-readable name of the state.
func (s CaptureState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Suspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// CaptureController starts and stops the microphone. Start must begin from a
// clean buffer.
type CaptureController interface {
	Start() error
	Stop() error
}

// StateListener observes state transitions. Listeners are called outside the
// guard's lock, in transition order, and must not block.
type StateListener func(from, to CaptureState)

// Option is a functional option for configuring a Guard.
type Option func(*Guard)

// WithClock sets the time source. Defaults to the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(g *Guard) { g.clock = c }
}

// WithCooldown sets the delay added after each playback estimate. Defaults
// to 500 ms.
func WithCooldown(d time.Duration) Option {
	return func(g *Guard) { g.cooldown = d }
}

// WithAutoListen controls whether capture resumes after playback. Defaults
// to true.
func WithAutoListen(on bool) Option {
	return func(g *Guard) { g.autoListen = on }
}

// WithMetrics records suspensions on the capture gauge.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// Guard serialises capture state transitions. It is the only component that
// starts or stops the CaptureController. All methods are safe for concurrent
// use.
type Guard struct {
	capture CaptureController
	clock   clockwork.Clock
	metrics *observe.Metrics

	mu         sync.Mutex
	state      CaptureState
	speaking   bool
	cooldown   time.Duration
	autoListen bool
	// resume is decided per cycle: auto-listen at BeginPlayback, cleared by
	// StopListening while suspended.
	resume    bool
	gen       uint64
	cancel    chan struct{}
	listeners []StateListener
	closed    bool

	wg sync.WaitGroup
}

// New returns an idle Guard controlling capture.
func New(capture CaptureController, opts ...Option) *Guard {
	g := &Guard{
		capture:    capture,
		clock:      clockwork.NewRealClock(),
		cooldown:   defaultCooldown,
		autoListen: true,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// State returns the current capture state.
func (g *Guard) State() CaptureState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Speaking reports whether a playback cycle is in progress.
func (g *Guard) Speaking() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.speaking
}

// SetCooldown changes the cooldown for subsequent cycles.
func (g *Guard) SetCooldown(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cooldown = d
}

// SetAutoListen changes the resume policy for subsequent cycles.
func (g *Guard) SetAutoListen(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.autoListen = on
}

// OnStateChange registers l for every subsequent transition.
func (g *Guard) OnStateChange(l StateListener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, l)
}

// StartListening starts capture from Idle. It is a no-op while Listening and
// fails with ErrSuspended during a playback cycle.
func (g *Guard) StartListening() error {
	g.mu.Lock()
	var notify func()
	defer func() {
		g.mu.Unlock()
		if notify != nil {
			notify()
		}
	}()

	switch g.state {
	case Listening:
		return nil
	case Suspended:
		return ErrSuspended
	}
	if err := g.capture.Start(); err != nil {
		return fmt.Errorf("playback: start listening: %w", err)
	}
	notify = g.setState(Listening)
	return nil
}

// StopListening stops capture. During a playback cycle it cancels the
// pending resume instead, so the cycle ends in Idle.
func (g *Guard) StopListening() error {
	g.mu.Lock()
	var notify func()
	defer func() {
		g.mu.Unlock()
		if notify != nil {
			notify()
		}
	}()

	switch g.state {
	case Idle:
		return nil
	case Suspended:
		g.resume = false
		return nil
	}
	err := g.capture.Stop()
	notify = g.setState(Idle)
	if err != nil {
		return fmt.Errorf("playback: stop listening: %w", err)
	}
	return nil
}

// BeginPlayback suspends capture for estimate plus the cooldown. Capture is
// stopped and cleared and speaking is set before BeginPlayback returns. Any
// pending resume from an earlier cycle is cancelled.
func (g *Guard) BeginPlayback(estimate time.Duration) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	if err := g.capture.Stop(); err != nil {
		slog.Warn("playback: stop capture failed", "err", err)
	}
	g.speaking = true
	g.resume = g.autoListen
	notify := g.setState(Suspended)
	g.restartWaitLocked(estimate + g.cooldown)
	g.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// PlaybackFinished restarts the pending wait with only the cooldown, measured
// from now. Call it when the player reports the real end of playback. It is a
// no-op outside a playback cycle.
func (g *Guard) PlaybackFinished() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || g.state != Suspended || g.cancel == nil {
		return
	}
	g.restartWaitLocked(g.cooldown)
}

// Wait blocks until no playback cycle is pending or ctx is done.
func (g *Guard) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		ch := g.cancel
		g.mu.Unlock()
		if ch == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Close cancels any pending resume and waits for the guard's goroutine to
// exit. Capture is left as it is.
func (g *Guard) Close() error {
	g.mu.Lock()
	g.closed = true
	g.gen++
	if g.cancel != nil {
		close(g.cancel)
		g.cancel = nil
	}
	g.mu.Unlock()
	g.wg.Wait()
	return nil
}

// restartWaitLocked cancels the pending wait and starts a new one. g.mu must
// be held.
func (g *Guard) restartWaitLocked(d time.Duration) {
	g.gen++
	if g.cancel != nil {
		close(g.cancel)
	}
	cancel := make(chan struct{})
	g.cancel = cancel

	gen := g.gen
	timer := g.clock.NewTimer(d)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		select {
		case <-cancel:
			timer.Stop()
		case <-timer.Chan():
			g.finish(gen)
		}
	}()
}

// finish ends cycle gen unless a newer cycle replaced it.
func (g *Guard) finish(gen uint64) {
	g.mu.Lock()
	if gen != g.gen || g.closed {
		g.mu.Unlock()
		return
	}
	close(g.cancel)
	g.cancel = nil
	g.speaking = false

	next := Idle
	if g.resume {
		if err := g.capture.Start(); err != nil {
			slog.Error("playback: resume capture failed", "err", err)
		} else {
			next = Listening
		}
	}
	notify := g.setState(next)
	g.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// setState records a transition and returns a function that notifies
// listeners, or nil when nothing changed. g.mu must be held.
func (g *Guard) setState(to CaptureState) func() {
	from := g.state
	if from == to {
		return nil
	}
	g.state = to

	if g.metrics != nil {
		switch {
		case to == Suspended:
			g.metrics.CaptureSuspended.Add(context.Background(), 1)
		case from == Suspended:
			g.metrics.CaptureSuspended.Add(context.Background(), -1)
		}
	}
	slog.Debug("capture state changed", "from", from, "to", to)

	listeners := append([]StateListener(nil), g.listeners...)
	return func() {
		for _, l := range listeners {
			l(from, to)
		}
	}
}
