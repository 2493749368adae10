package trigger

import (
	"fmt"
	"time"
)

// Resolution is what the orchestrator acts on after interpreting a reply.
type Resolution struct {
	// Text is shown and spoken in place of the reply.
	Text string

	// Kind is the effective classification. A reminder directive whose spec
	// fails to parse resolves to KindText.
	Kind Kind

	// Mode, Delay, Due and Message are set when Kind is KindReminder. Delay
	// is only set for ModeIn.
	Mode    Mode
	Delay   time.Duration
	Due     time.Time
	Message string

	// SpecErr holds the parse error of a directive that fell back to text.
	SpecErr error
}

// Resolve interprets reply at instant now. It does not schedule anything;
// the caller schedules a reminder only when Kind is KindReminder.
func Resolve(reply string, now time.Time) Resolution {
	tok := Parse(reply)
	switch tok.Kind {
	case KindTimeQuery:
		return Resolution{Kind: KindTimeQuery, Text: FormatTimeNow(now)}

	case KindReminder:
		switch tok.Mode {
		case ModeIn:
			d, err := ParseDuration(tok.Spec)
			if err != nil {
				return Resolution{Kind: KindText, Text: reply, SpecErr: err}
			}
			return Resolution{
				Kind:    KindReminder,
				Mode:    ModeIn,
				Delay:   d,
				Due:     now.Add(d),
				Message: tok.Message,
				Text:    fmt.Sprintf("Okay, I'll remind you in %s: %s", FormatDuration(d), tok.Message),
			}
		case ModeAt:
			due, err := ParseClockTime(tok.Spec, now)
			if err != nil {
				return Resolution{Kind: KindText, Text: reply, SpecErr: err}
			}
			return Resolution{
				Kind:    KindReminder,
				Mode:    ModeAt,
				Due:     due,
				Message: tok.Message,
				Text:    fmt.Sprintf("Okay, I'll remind you at %s: %s", FormatClock(due), tok.Message),
			}
		}
	}
	return Resolution{Kind: KindText, Text: reply}
}

// ReminderLine renders the display line for a due reminder.
func ReminderLine(message string) string {
	return "Reminder: " + message
}
