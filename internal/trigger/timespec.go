package trigger

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidDuration is returned when a reminder duration does not match
	// the h/m/s grammar or totals zero.
	ErrInvalidDuration = errors.New("trigger: invalid duration")

	// ErrInvalidClockTime is returned when a reminder clock time cannot be
	// parsed as a time of day.
	ErrInvalidClockTime = errors.New("trigger: invalid clock time")
)

// maxDuration is the longest representable reminder delay.
const maxDuration = time.Duration(math.MaxInt64)

var durationRe = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

// ParseDuration parses a reminder duration such as "1h3m10s", "45m" or "10s".
// Components are optional but must appear in h, m, s order. The total must be
// positive.
func ParseDuration(spec string) (time.Duration, error) {
	s := strings.ToLower(strings.Join(strings.Fields(spec), ""))
	m := durationRe.FindStringSubmatch(s)
	if s == "" || m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, spec)
	}

	var total time.Duration
	units := [...]time.Duration{time.Hour, time.Minute, time.Second}
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrInvalidDuration, spec, err)
		}
		if n > int64(maxDuration/unit) || time.Duration(n)*unit > maxDuration-total {
			return 0, fmt.Errorf("%w: %q is too long", ErrInvalidDuration, spec)
		}
		total += time.Duration(n) * unit
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: %q must be greater than zero", ErrInvalidDuration, spec)
	}
	return total, nil
}

// clockLayouts are tried in order. Inputs are upper-cased first, so "pm"
// and "PM" both match.
var clockLayouts = []string{
	"3:04 PM",
	"3:04PM",
	"3:04:05 PM",
	"3 PM",
	"3PM",
	"15:04",
	"15:04:05",
}

// ParseClockTime resolves a time of day such as "3:30 PM" or "15:30" to the
// next instant at that time: today in now's location, or tomorrow when that
// instant is not strictly after now.
func ParseClockTime(spec string, now time.Time) (time.Time, error) {
	s := strings.ToUpper(strings.Join(strings.Fields(spec), " "))
	s = strings.ReplaceAll(s, ".", "") // "p.m." -> "PM"

	var (
		tod time.Time
		err error
	)
	for _, layout := range clockLayouts {
		if tod, err = time.Parse(layout, s); err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, spec)
	}

	due := time.Date(now.Year(), now.Month(), now.Day(),
		tod.Hour(), tod.Minute(), tod.Second(), 0, now.Location())
	if !due.After(now) {
		due = due.AddDate(0, 0, 1)
	}
	return due, nil
}

// Period names the part of the day an hour (0-23) falls in.
func Period(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "Morning"
	case hour >= 12 && hour < 17:
		return "Afternoon"
	case hour >= 17 && hour < 21:
		return "Evening"
	default:
		return "Night"
	}
}

// FormatClock renders t as "h:mm AM/PM".
func FormatClock(t time.Time) string {
	return t.Format("3:04 PM")
}

// FormatTimeNow renders t as "h:mm AM/PM <Period>", e.g. "9:05 AM Morning".
func FormatTimeNow(t time.Time) string {
	return FormatClock(t) + " " + Period(t.Hour())
}

// FormatDuration renders d with only its non-zero h/m/s components, e.g.
// "1h 3m 10s" or "10s".
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)

	var parts []string
	if h > 0 {
		parts = append(parts, strconv.Itoa(h)+"h")
	}
	if m > 0 {
		parts = append(parts, strconv.Itoa(m)+"m")
	}
	if s > 0 || len(parts) == 0 {
		parts = append(parts, strconv.Itoa(s)+"s")
	}
	return strings.Join(parts, " ")
}
