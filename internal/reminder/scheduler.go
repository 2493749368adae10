// Package reminder schedules one-shot reminders and publishes their due
// events to subscribers.
//
// Every pending reminder is watched by its own goroutine that polls the
// injected clock, so reminders never block each other or the audio loop. A
// reminder fires exactly once and is then forgotten; cancelled reminders
// never fire. Nothing is persisted.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/MrWong99/murmur/internal/observe"
)

const defaultPollInterval = 250 * time.Millisecond

var (
	// ErrNotFound is returned by Cancel for an unknown or already fired ID.
	ErrNotFound = errors.New("reminder: not found")

	// ErrClosed is returned when scheduling on a closed Scheduler.
	ErrClosed = errors.New("reminder: scheduler closed")
)

// Reminder is a scheduled message.
type Reminder struct {
	ID      uuid.UUID
	Due     time.Time
	Message string

	// Created is when the reminder was scheduled.
	Created time.Time
}

// Handler receives due reminders. Handlers run on the firing reminder's
// goroutine and should return promptly.
type Handler func(Reminder)

type entry struct {
	r      Reminder
	cancel chan struct{}
}

// Option is a functional option for configuring a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source. Defaults to the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithPollInterval sets how often each pending reminder re-checks the clock.
// A reminder fires at most one poll interval late. Defaults to 250 ms.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.poll = d
		}
	}
}

// WithMetrics records scheduled, fired and pending reminders.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// Scheduler owns the set of pending reminders and the subscriber registry.
// All methods are safe for concurrent use, including Subscribe and the
// returned unsubscribe function while a reminder is being delivered.
type Scheduler struct {
	clock   clockwork.Clock
	poll    time.Duration
	metrics *observe.Metrics

	mu      sync.Mutex
	pending map[uuid.UUID]*entry
	subs    map[uint64]Handler
	nextSub uint64
	closed  bool

	wg sync.WaitGroup
}

// New returns a running Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:   clockwork.NewRealClock(),
		poll:    defaultPollInterval,
		pending: make(map[uuid.UUID]*entry),
		subs:    make(map[uint64]Handler),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Now returns the scheduler's current time.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// ScheduleAt schedules message for the absolute instant due. A due time in the
// past fires on the next poll.
func (s *Scheduler) ScheduleAt(due time.Time, message string) (Reminder, error) {
	return s.schedule(due, message, "AT")
}

// ScheduleIn schedules message delay from now. The due instant is fixed at
// call time.
func (s *Scheduler) ScheduleIn(delay time.Duration, message string) (Reminder, error) {
	if delay < 0 {
		return Reminder{}, fmt.Errorf("reminder: negative delay %v", delay)
	}
	return s.schedule(s.clock.Now().Add(delay), message, "IN")
}

func (s *Scheduler) schedule(due time.Time, message, mode string) (Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Reminder{}, ErrClosed
	}

	r := Reminder{
		ID:      uuid.New(),
		Due:     due,
		Message: message,
		Created: s.clock.Now(),
	}
	e := &entry{r: r, cancel: make(chan struct{})}
	s.pending[r.ID] = e

	s.wg.Add(1)
	go s.watch(e)

	if s.metrics != nil {
		s.metrics.RecordReminderScheduled(context.Background(), mode)
	}
	slog.Debug("reminder scheduled", "id", r.ID, "mode", mode, "due", r.Due, "message", r.Message)
	return r, nil
}

// Cancel stops a pending reminder. It returns ErrNotFound if id is unknown or
// the reminder has already fired.
func (s *Scheduler) Cancel(id uuid.UUID) error {
	s.mu.Lock()
	e, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
		close(e.cancel)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.metrics != nil {
		s.metrics.RecordReminderCancelled(context.Background())
	}
	return nil
}

// Pending returns a snapshot of pending reminders ordered by due time.
func (s *Scheduler) Pending() []Reminder {
	s.mu.Lock()
	out := make([]Reminder, 0, len(s.pending))
	for _, e := range s.pending {
		out = append(out, e.r)
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b Reminder) int {
		return a.Due.Compare(b.Due)
	})
	return out
}

// Subscribe registers h for every reminder that fires after this call. The
// returned function removes the subscription; calling it more than once is
// safe.
func (s *Scheduler) Subscribe(h Handler) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = h
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Close cancels every pending reminder and waits for their goroutines to
// exit. Scheduling after Close fails with ErrClosed.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	n := len(s.pending)
	for id, e := range s.pending {
		close(e.cancel)
		delete(s.pending, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	if s.metrics != nil {
		for range n {
			s.metrics.RecordReminderCancelled(context.Background())
		}
	}
	if n > 0 {
		slog.Info("pending reminders discarded", "count", n)
	}
	return nil
}

// watch polls the clock until e is due or cancelled.
func (s *Scheduler) watch(e *entry) {
	defer s.wg.Done()

	for {
		wait := e.r.Due.Sub(s.clock.Now())
		if wait <= 0 {
			s.fire(e)
			return
		}
		timer := s.clock.NewTimer(min(wait, s.poll))
		select {
		case <-e.cancel:
			timer.Stop()
			return
		case <-timer.Chan():
		}
	}
}

// fire removes e from the pending set and delivers it to a snapshot of the
// current subscribers. A cancellation that wins the lock suppresses delivery.
func (s *Scheduler) fire(e *entry) {
	s.mu.Lock()
	if cur, ok := s.pending[e.r.ID]; !ok || cur != e {
		s.mu.Unlock()
		return
	}
	delete(s.pending, e.r.ID)
	handlers := make([]Handler, 0, len(s.subs))
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		handlers = append(handlers, s.subs[id])
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordReminderFired(context.Background())
	}
	slog.Info("reminder due", "id", e.r.ID, "message", e.r.Message, "subscribers", len(handlers))

	for _, h := range handlers {
		deliver(h, e.r)
	}
}

// deliver invokes h and contains a panic to that subscriber. Delivery is not
// retried.
func deliver(h Handler, r Reminder) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("reminder subscriber panicked", "id", r.ID, "panic", p)
		}
	}()
	h(r)
}
