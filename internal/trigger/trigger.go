// Package trigger classifies dialogue replies against the control-token
// grammar understood by the voice front-end.
//
// A reply is exactly one of:
//
//   - the literal time-query marker [TIME_NOW];
//   - a reminder directive [REMIND|IN|<duration>|<message>] or
//     [REMIND|AT|<clock-time>|<message>], mode keyword case-insensitive;
//   - plain text.
//
// Classification is purely syntactic. Whether a reminder spec actually parses
// is decided later by [ParseDuration] and [ParseClockTime]; a directive whose
// spec does not parse is treated by the caller as plain text.
package trigger

import (
	"regexp"
	"strings"
)

// TimeNowMarker is the literal reply that requests the current time.
const TimeNowMarker = "[TIME_NOW]"

// Kind classifies a reply.
type Kind int

const (
	// KindText is a reply to be shown and spoken as-is.
	KindText Kind = iota

	// KindTimeQuery is the [TIME_NOW] marker.
	KindTimeQuery

	// KindReminder is a syntactically valid reminder directive.
	KindReminder
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindTimeQuery:
		return "time_query"
	case KindReminder:
		return "reminder"
	default:
		return "unknown"
	}
}

// Mode is the scheduling mode of a reminder directive.
type Mode string

const (
	// ModeIn schedules relative to now ("in 10m").
	ModeIn Mode = "IN"

	// ModeAt schedules at a wall-clock time of day ("at 3:30 PM").
	ModeAt Mode = "AT"
)

// Token is the parsed form of a dialogue reply.
type Token struct {
	Kind Kind

	// Mode, Spec and Message are only set for KindReminder.
	Mode    Mode
	Spec    string
	Message string

	// Raw is the reply exactly as received.
	Raw string
}

var reminderRe = regexp.MustCompile(`(?i)^\[REMIND\|(IN|AT)\|([^|\]]+)\|(.+)\]$`)

// Parse classifies reply. Surrounding whitespace is ignored for matching but
// preserved in Token.Raw. A reply matches at most one grammar.
func Parse(reply string) Token {
	trimmed := strings.TrimSpace(reply)
	if trimmed == TimeNowMarker {
		return Token{Kind: KindTimeQuery, Raw: reply}
	}
	m := reminderRe.FindStringSubmatch(trimmed)
	if m == nil {
		return Token{Kind: KindText, Raw: reply}
	}
	msg := strings.TrimSpace(m[3])
	spec := strings.TrimSpace(m[2])
	if msg == "" || spec == "" {
		return Token{Kind: KindText, Raw: reply}
	}
	return Token{
		Kind:    KindReminder,
		Mode:    Mode(strings.ToUpper(m[1])),
		Spec:    spec,
		Message: msg,
		Raw:     reply,
	}
}
