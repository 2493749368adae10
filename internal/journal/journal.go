// Package journal records what the assistant heard, said and reminded so a
// session can be reviewed afterwards.
//
// Journals are write-mostly sinks. A failed write never affects the
// conversation; callers log the error and move on.
package journal

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Kind classifies a journal entry.
type Kind string

const (
	// KindTurn is a completed conversational turn.
	KindTurn Kind = "turn"

	// KindReminder is a reminder that came due.
	KindReminder Kind = "reminder"
)

// Entry is one journal record.
type Entry struct {
	Kind Kind
	At   time.Time

	// User is the transcribed utterance. Empty for reminders.
	User string

	// Reply is the raw dialogue reply before trigger resolution.
	Reply string

	// Display is the line shown (and possibly spoken) to the user.
	Display string

	// Trigger is the resolved trigger kind ("text", "time_query", "reminder").
	Trigger string

	// Outcome is "ok" or the failing stage ("stt_error", "llm_error", ...).
	Outcome string

	// ReminderID and Due are set for reminder entries and for turns that
	// scheduled a reminder.
	ReminderID string
	Due        time.Time
}

// Journal is the sink the orchestrator writes to.
//
// Implementations must be safe for concurrent use.
type Journal interface {
	// Record appends e.
	Record(ctx context.Context, e Entry) error

	// Recent returns up to limit most recent entries, oldest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Close releases resources.
	Close() error
}

// Compile-time interface checks.
var (
	_ Journal = Nop{}
	_ Journal = (*Memory)(nil)
)

// Nop discards every entry.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error          { return nil }
func (Nop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }
func (Nop) Close() error                                 { return nil }

// Memory keeps the most recent entries in memory.
type Memory struct {
	mu      sync.Mutex
	max     int
	entries []Entry
}

// NewMemory returns a Memory journal that keeps at most max entries. A max
// of zero or less keeps everything.
func NewMemory(max int) *Memory {
	return &Memory{max: max}
}

// Record implements [Journal].
func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	if m.max > 0 && len(m.entries) > m.max {
		m.entries = slices.Delete(m.entries, 0, len(m.entries)-m.max)
	}
	return nil
}

// Recent implements [Journal].
func (m *Memory) Recent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if limit > 0 && len(m.entries) > limit {
		start = len(m.entries) - limit
	}
	return slices.Clone(m.entries[start:]), nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close implements [Journal].
func (m *Memory) Close() error { return nil }
