package display

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestKind_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind Kind
		want string
	}{
		{KindUser, "You"},
		{KindAssistant, "Murmur"},
		{KindReminder, "Reminder"},
		{KindError, "Error"},
		{KindStatus, "Status"},
		{Kind(42), "Kind(42)"},
	}
	for _, tc := range tests {
		if got := tc.kind.String(); got != tc.want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(tc.kind), got, tc.want)
		}
	}
}

func TestConsole_Show(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 14, 5, 9, 0, time.Local))
	c := NewConsole(&buf, WithClock(clock))

	c.Show(KindUser, "remind me in ten minutes")
	c.Show(KindAssistant, "Okay, I'll remind you in 10m:\nstretch")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if want := "14:05:09 You: remind me in ten minutes"; lines[0] != want {
		t.Errorf("line 0 = %q, want %q", lines[0], want)
	}
	if want := "14:05:09 Murmur: Okay, I'll remind you in 10m: stretch"; lines[1] != want {
		t.Errorf("line 1 = %q, want %q", lines[1], want)
	}
}

func TestConsole_WithoutTimestamps(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	c := NewConsole(&buf, WithTimestamps(false))
	c.Show(KindReminder, "Reminder: call mom")
	if got, want := buf.String(), "Reminder: Reminder: call mom\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestConsole_ConcurrentLinesDoNotInterleave(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	c := NewConsole(&buf, WithTimestamps(false))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Show(KindStatus, "listening")
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 20 {
		t.Fatalf("expected 20 lines, got %d", len(lines))
	}
	for _, l := range lines {
		if l != "Status: listening" {
			t.Errorf("interleaved line %q", l)
		}
	}
}

func TestConsole_Banner(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.Banner("murmur", "stt", "whisper", "llm", "openai/gpt-4o-mini")
	out := buf.String()
	for _, want := range []string{"murmur", "stt: whisper", "llm: openai/gpt-4o-mini"} {
		if !strings.Contains(out, want) {
			t.Errorf("banner should contain %q, got:\n%s", want, out)
		}
	}
}
