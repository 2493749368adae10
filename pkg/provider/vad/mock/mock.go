// Package mock provides a scripted [vad.Engine] for tests of code that
// drives VAD sessions.
//
// Every session an [Engine] creates replays a queue of events, one per
// processed frame, and answers [vad.Silence] once the queue is empty:
//
//	eng := &mock.Engine{}
//	h, _ := eng.NewSession(cfg)
//	eng.Last().Push(vad.Event{Type: vad.SpeechStart}, vad.Event{Type: vad.SpeechEnd, Utterance: u})
package mock

import (
	"slices"
	"sync"

	"github.com/MrWong99/murmur/pkg/provider/vad"
)

var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*Session)(nil)
)

// Engine records every session it creates.
type Engine struct {
	mu       sync.Mutex
	err      error
	sessions []*Session
}

// Fail makes subsequent NewSession calls return err; nil restores success.
func (e *Engine) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// NewSession validates cfg like a real engine and returns a fresh [Session].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{cfg: cfg}
	e.sessions = append(e.sessions, s)
	return s, nil
}

// Sessions returns the created sessions in creation order.
func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.sessions)
}

// Last returns the most recently created session, or nil.
func (e *Engine) Last() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

// Session replays queued events and records what it was fed.
type Session struct {
	cfg vad.Config

	mu     sync.Mutex
	queue  []vad.Event
	frames [][]float32
	resets int
	closes int
}

// Config returns the configuration the session was created with.
func (s *Session) Config() vad.Config { return s.cfg }

// Push queues events for the next ProcessFrame calls.
func (s *Session) Push(events ...vad.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, events...)
}

// ProcessFrame records a copy of frame and returns the next queued event.
func (s *Session) ProcessFrame(frame []float32) vad.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, slices.Clone(frame))
	if len(s.queue) == 0 {
		return vad.Event{Type: vad.Silence}
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev
}

// Reset counts the call. Queued events are kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

// Close counts the call and always succeeds.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// Frames returns the frames processed so far.
func (s *Session) Frames() [][]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.frames)
}

// Resets returns how often Reset was called.
func (s *Session) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Closed reports whether Close was called at least once.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes > 0
}
