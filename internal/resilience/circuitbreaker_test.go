package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var errTest = errors.New("test error")

func newBreaker(t *testing.T, cfg CircuitBreakerConfig) (*CircuitBreaker, *clockwork.FakeClock) {
	t.Helper()
	clk := clockwork.NewFakeClock()
	cfg.Name = "test"
	cfg.Clock = clk
	return NewCircuitBreaker(cfg), clk
}

func fail() error    { return errTest }
func succeed() error { return nil }

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test"})
	if cb.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", cb.maxFailures)
	}
	if cb.resetTimeout != 30*time.Second {
		t.Errorf("resetTimeout = %v, want 30s", cb.resetTimeout)
	}
	if cb.halfOpenMax != 1 {
		t.Errorf("halfOpenMax = %d, want 1", cb.halfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
	if cb.Name() != "test" {
		t.Errorf("Name = %q", cb.Name())
	}
}

func TestCircuitBreaker_ClosedAllowsCalls(t *testing.T) {
	t.Parallel()
	cb, _ := newBreaker(t, CircuitBreakerConfig{MaxFailures: 3})
	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestCircuitBreaker_ClosedToOpen(t *testing.T) {
	t.Parallel()
	cb, _ := newBreaker(t, CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour})

	for range 3 {
		if err := cb.Execute(fail); !errors.Is(err, errTest) {
			t.Fatalf("Execute returned %v, want the call's own error", err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after 3 failures", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Fatal("open breaker must not call fn")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	cb, _ := newBreaker(t, CircuitBreakerConfig{MaxFailures: 3})

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	_ = cb.Execute(succeed)
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed (success should reset counter)", cb.State())
	}

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	if cb.State() != StateClosed {
		t.Fatal("should still be closed after 2 failures post-reset")
	}
}

func TestCircuitBreaker_IgnoredErrorsDoNotCount(t *testing.T) {
	t.Parallel()
	benign := errors.New("benign")
	cb, _ := newBreaker(t, CircuitBreakerConfig{
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return !errors.Is(err, benign) },
	})

	for range 5 {
		if err := cb.Execute(func() error { return benign }); !errors.Is(err, benign) {
			t.Fatalf("benign error not passed through: %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed: ignored errors must not trip", cb.State())
	}
}

func TestCircuitBreaker_ContextCanceledDoesNotCount(t *testing.T) {
	t.Parallel()
	cb, _ := newBreaker(t, CircuitBreakerConfig{MaxFailures: 1})
	_ = cb.Execute(func() error { return context.Canceled })
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after cancellation", cb.State())
	}
}

func TestCircuitBreaker_OpenToHalfOpenToClosed(t *testing.T) {
	t.Parallel()
	cb, clk := newBreaker(t, CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: 10 * time.Second, HalfOpenMax: 2})

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}

	clk.Advance(9 * time.Second)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open before the reset timeout", cb.State())
	}

	clk.Advance(time.Second)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after timeout", cb.State())
	}

	for i := range 2 {
		if err := cb.Execute(succeed); err != nil {
			t.Fatalf("probe %d: unexpected error: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful probes", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenToOpen(t *testing.T) {
	t.Parallel()
	cb, clk := newBreaker(t, CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: 10 * time.Second, HalfOpenMax: 3})

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	clk.Advance(10 * time.Second)

	if err := cb.Execute(fail); !errors.Is(err, errTest) {
		t.Fatalf("probe error = %v, want errTest", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after half-open failure", cb.State())
	}
	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen right after re-open", err)
	}
}

func TestCircuitBreaker_HalfOpenLimitsConcurrentProbes(t *testing.T) {
	t.Parallel()
	cb, clk := newBreaker(t, CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Second, HalfOpenMax: 1})
	_ = cb.Execute(fail)
	clk.Advance(time.Second)

	inProbe := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = cb.Execute(func() error {
			close(inProbe)
			<-release
			return nil
		})
	}()
	<-inProbe

	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	wg.Wait()

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after the probe succeeded", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	t.Parallel()
	var (
		mu   sync.Mutex
		seen []string
	)
	cb, clk := newBreaker(t, CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, from.String()+">"+to.String())
		},
	})

	_ = cb.Execute(fail)
	clk.Advance(time.Second)
	_ = cb.Execute(succeed)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()
	cb, _ := newBreaker(t, CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after reset", cb.State())
	}
	if err := cb.Execute(succeed); err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestCircuitBreaker_OnResultSkipsRejectedCalls(t *testing.T) {
	t.Parallel()
	var results []error
	cb, _ := newBreaker(t, CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Hour,
		OnResult:     func(_ string, err error) { results = append(results, err) },
	})

	_ = cb.Execute(fail)
	if err := cb.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if len(results) != 1 || !errors.Is(results[0], errTest) {
		t.Errorf("results = %v, want only the admitted failure", results)
	}
}
