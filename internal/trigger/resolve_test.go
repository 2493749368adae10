package trigger_test

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/murmur/internal/trigger"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 20, 15, 0, 0, time.UTC)

	t.Run("time query", func(t *testing.T) {
		r := trigger.Resolve("[TIME_NOW]", now)
		if r.Kind != trigger.KindTimeQuery || r.Text != "8:15 PM Evening" {
			t.Errorf("got %+v", r)
		}
	})

	t.Run("remind in", func(t *testing.T) {
		r := trigger.Resolve("[REMIND|IN|1h3m10s|take the pizza out]", now)
		if r.Kind != trigger.KindReminder {
			t.Fatalf("Kind = %v, want reminder", r.Kind)
		}
		if want := now.Add(time.Hour + 3*time.Minute + 10*time.Second); !r.Due.Equal(want) {
			t.Errorf("Due = %v, want %v", r.Due, want)
		}
		if r.Mode != trigger.ModeIn || r.Delay != time.Hour+3*time.Minute+10*time.Second {
			t.Errorf("Mode, Delay = %v, %v", r.Mode, r.Delay)
		}
		if r.Message != "take the pizza out" {
			t.Errorf("Message = %q", r.Message)
		}
		if want := "Okay, I'll remind you in 1h 3m 10s: take the pizza out"; r.Text != want {
			t.Errorf("Text = %q, want %q", r.Text, want)
		}
	})

	t.Run("remind at tomorrow", func(t *testing.T) {
		r := trigger.Resolve("[REMIND|AT|7:00 AM|water the plants]", now)
		if r.Kind != trigger.KindReminder {
			t.Fatalf("Kind = %v, want reminder", r.Kind)
		}
		if want := time.Date(2026, 6, 2, 7, 0, 0, 0, time.UTC); !r.Due.Equal(want) {
			t.Errorf("Due = %v, want %v", r.Due, want)
		}
		if r.Mode != trigger.ModeAt {
			t.Errorf("Mode = %v, want AT", r.Mode)
		}
		if want := "Okay, I'll remind you at 7:00 AM: water the plants"; r.Text != want {
			t.Errorf("Text = %q, want %q", r.Text, want)
		}
	})

	t.Run("bad duration falls back to text", func(t *testing.T) {
		reply := "[REMIND|IN|0s|never]"
		r := trigger.Resolve(reply, now)
		if r.Kind != trigger.KindText || r.Text != reply {
			t.Errorf("got %+v, want literal text", r)
		}
		if !errors.Is(r.SpecErr, trigger.ErrInvalidDuration) {
			t.Errorf("SpecErr = %v, want ErrInvalidDuration", r.SpecErr)
		}
		if !r.Due.IsZero() {
			t.Error("Due must be zero for a fallback")
		}
	})

	t.Run("overlong duration falls back to text", func(t *testing.T) {
		reply := "[REMIND|IN|6000000h|x]"
		r := trigger.Resolve(reply, now)
		if r.Kind != trigger.KindText || r.Text != reply {
			t.Errorf("got %+v, want literal text", r)
		}
		if !errors.Is(r.SpecErr, trigger.ErrInvalidDuration) {
			t.Errorf("SpecErr = %v, want ErrInvalidDuration", r.SpecErr)
		}
	})

	t.Run("bad clock falls back to text", func(t *testing.T) {
		reply := "[REMIND|AT|teatime|kettle]"
		r := trigger.Resolve(reply, now)
		if r.Kind != trigger.KindText || r.Text != reply {
			t.Errorf("got %+v, want literal text", r)
		}
		if !errors.Is(r.SpecErr, trigger.ErrInvalidClockTime) {
			t.Errorf("SpecErr = %v, want ErrInvalidClockTime", r.SpecErr)
		}
	})

	t.Run("plain text", func(t *testing.T) {
		r := trigger.Resolve("The capital of France is Paris.", now)
		if r.Kind != trigger.KindText || r.Text != "The capital of France is Paris." {
			t.Errorf("got %+v", r)
		}
	})
}

func TestReminderLine(t *testing.T) {
	t.Parallel()

	if got := trigger.ReminderLine("call mom"); got != "Reminder: call mom" {
		t.Errorf("got %q", got)
	}
}
