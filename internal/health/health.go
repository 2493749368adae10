// Package health provides the HTTP liveness and readiness handlers of the
// Murmur process.
//
//   - /healthz: liveness probe; always 200 with the process uptime.
//   - /readyz: readiness probe; 200 only when every registered [Checker]
//     passes (capture running, no provider circuit open, journal reachable).
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map with the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the component
// is ready and an error describing why it is not otherwise.
type Checker struct {
	// Name is the key of this check in the JSON response.
	Name string

	// Check probes the component. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// Report is the JSON response body for health endpoints.
type Report struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`

	// Failing lists the names of failed checks in sorted order.
	Failing []string `json:"failing,omitempty"`
}

// Option configures a [Handler].
type Option func(*Handler)

// WithClock sets the clock used for uptime. Default: the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(h *Handler) { h.clock = c }
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
	clock    clockwork.Clock
	started  time.Time
}

// New creates a [Handler] that evaluates checkers on each /readyz request.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{checkers: slices.Clone(checkers), clock: clockwork.NewRealClock()}
	for _, o := range opts {
		o(h)
	}
	h.started = h.clock.Now()
	return h
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{
		Status: "ok",
		Uptime: h.clock.Since(h.started).Truncate(time.Second).String(),
	})
}

// Check runs every checker concurrently, each under a [checkTimeout]
// deadline derived from ctx, and aggregates the results.
func (h *Handler) Check(ctx context.Context) Report {
	var (
		mu      sync.Mutex
		checks  = make(map[string]string, len(h.checkers))
		failing []string
		g       errgroup.Group
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			err := c.Check(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				failing = append(failing, c.Name)
			} else {
				checks[c.Name] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Status: "ok", Checks: checks}
	if len(failing) > 0 {
		slices.Sort(failing)
		rep.Status = "fail"
		rep.Failing = failing
	}
	return rep
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Check(r.Context())
	status := http.StatusOK
	if rep.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
