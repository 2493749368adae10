// Package resilience provides the circuit breaker that guards every external
// provider call made during a conversational turn.
//
// A [CircuitBreaker] moves between closed, open and half-open. It never
// retries: a failing call fails once, and a tripped breaker answers with
// [ErrCircuitOpen] until its reset timeout has passed, so a dead backend costs
// a turn one fast error instead of a network timeout. [GuardSTT], [GuardLLM]
// and [GuardTTS] wrap the provider interfaces with a dedicated breaker each.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the reset timeout has elapsed since the
	// last failure.
	StateOpen

	// StateHalfOpen lets up to HalfOpenMax probe calls through. Enough
	// successes close the breaker; any failure opens it again.
	StateHalfOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

// String returns the human-readable name of the state.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs, callbacks and health reports.
	Name string

	// MaxFailures is the number of consecutive failures that opens a closed
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe successes that closes a half-open
	// breaker, and the number of probes allowed in flight. Default: 1.
	HalfOpenMax int

	// IsFailure classifies an error returned by the guarded call. Errors for
	// which it returns false pass through without affecting the breaker.
	// Default: every error except context cancellation counts.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition, outside the
	// breaker's lock.
	OnStateChange func(name string, from, to State)

	// OnResult, if set, is called after every call the breaker admitted,
	// with the call's error. Rejected calls are not reported.
	OnResult func(name string, err error)

	// Clock supplies the time source. Default: the real clock.
	Clock clockwork.Clock

	// Logger receives transition logs. Default: [slog.Default].
	Logger *slog.Logger
}

// CircuitBreaker guards calls to one backend.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	isFailure     func(error) bool
	onStateChange func(name string, from, to State)
	onResult      func(name string, err error)
	clock         clockwork.Clock
	log           *slog.Logger

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int // half-open calls in flight
	probeWins int // half-open successes since the last transition
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields are
// replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		isFailure:     cfg.IsFailure,
		onStateChange: cfg.OnStateChange,
		onResult:      cfg.OnResult,
		clock:         cfg.Clock,
		log:           cfg.Logger,
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = 5
	}
	if cb.resetTimeout <= 0 {
		cb.resetTimeout = 30 * time.Second
	}
	if cb.halfOpenMax <= 0 {
		cb.halfOpenMax = 1
	}
	if cb.isFailure == nil {
		cb.isFailure = defaultIsFailure
	}
	if cb.clock == nil {
		cb.clock = clockwork.NewRealClock()
	}
	if cb.log == nil {
		cb.log = slog.Default()
	}
	cb.log = cb.log.With("breaker", cb.name)
	return cb
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn if the breaker admits it and returns fn's error, or
// [ErrCircuitOpen] without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, ok := cb.admit()
	if !ok {
		return ErrCircuitOpen
	}
	err := fn()
	cb.settle(probe, err)
	if cb.onResult != nil {
		cb.onResult(cb.name, err)
	}
	return err
}

// admit decides whether a call may run and reports whether it is a
// half-open probe.
func (cb *CircuitBreaker) admit() (probe, ok bool) {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateOpen && cb.clock.Since(cb.openedAt) >= cb.resetTimeout {
		cb.state = StateHalfOpen
		cb.probes, cb.probeWins = 0, 0
		cb.log.Info("circuit breaker half-open")
	}

	switch cb.state {
	case StateOpen:
		ok = false
	case StateHalfOpen:
		if ok = cb.probes < cb.halfOpenMax; ok {
			cb.probes++
			probe = true
		}
	default:
		ok = true
	}
	notify := cb.transition(from)
	cb.mu.Unlock()
	notify()
	return probe, ok
}

// settle records the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probe bool, err error) {
	cb.mu.Lock()
	from := cb.state
	if probe {
		cb.probes--
	}

	switch {
	case err == nil && cb.state == StateHalfOpen && probe:
		if cb.probeWins++; cb.probeWins >= cb.halfOpenMax {
			cb.close()
			cb.log.Info("circuit breaker closed after successful probes")
		}
	case err == nil && cb.state == StateClosed:
		cb.failures = 0
	case err != nil && cb.isFailure(err):
		cb.openedAt = cb.clock.Now()
		switch {
		case cb.state == StateHalfOpen || probe:
			cb.state = StateOpen
			cb.failures = cb.maxFailures
			cb.log.Warn("circuit breaker re-opened by failed probe", "err", err)
		case cb.state == StateClosed:
			if cb.failures++; cb.failures >= cb.maxFailures {
				cb.state = StateOpen
				cb.log.Warn("circuit breaker opened", "consecutive_failures", cb.failures, "err", err)
			}
		}
	}
	notify := cb.transition(from)
	cb.mu.Unlock()
	notify()
}

// close resets all counters into the closed state. cb.mu must be held.
func (cb *CircuitBreaker) close() {
	cb.state = StateClosed
	cb.failures = 0
	cb.probes, cb.probeWins = 0, 0
}

// transition returns a function reporting a state change since from, or a
// no-op. cb.mu must be held; the result is invoked without it.
func (cb *CircuitBreaker) transition(from State) func() {
	to := cb.state
	if from == to || cb.onStateChange == nil {
		return func() {}
	}
	fn, name := cb.onStateChange, cb.name
	return func() { fn(name, from, to) }
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.clock.Since(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.close()
	notify := cb.transition(from)
	cb.mu.Unlock()
	notify()
	cb.log.Info("circuit breaker reset")
}
