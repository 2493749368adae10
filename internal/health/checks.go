package health

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/murmur/internal/playback"
	"github.com/MrWong99/murmur/internal/resilience"
)

// CaptureStater reports the microphone state. *playback.Guard implements it.
type CaptureStater interface {
	State() playback.CaptureState
}

// Capture returns a checker that fails while capture is idle. A suspended
// microphone is considered ready because it resumes on its own.
func Capture(g CaptureStater) Checker {
	return Checker{
		Name: "capture",
		Check: func(context.Context) error {
			if s := g.State(); s == playback.Idle {
				return fmt.Errorf("capture is %s", s)
			}
			return nil
		},
	}
}

// Breakers returns a checker that fails while any provider circuit breaker
// is open. An empty list always passes.
func Breakers(breakers ...*resilience.CircuitBreaker) Checker {
	return Checker{
		Name: "providers",
		Check: func(context.Context) error {
			var open []string
			for _, b := range breakers {
				if b != nil && b.State() == resilience.StateOpen {
					open = append(open, b.Name())
				}
			}
			if len(open) > 0 {
				return fmt.Errorf("circuit open: %s", strings.Join(open, ", "))
			}
			return nil
		},
	}
}

// Pinger is implemented by dependencies that can be probed over the network,
// such as the Postgres journal.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping returns a checker named name that calls p.Ping. A nil p always passes.
func Ping(name string, p Pinger) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			if p == nil {
				return nil
			}
			return p.Ping(ctx)
		},
	}
}
