// Package display renders conversation lines for the user.
//
// [Console] writes styled lines to a terminal. Colours come from a
// lipgloss renderer bound to the output writer, so redirected output (files,
// pipes, test buffers) is written as plain text.
package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/jonboulle/clockwork"
)

// Kind classifies a display line.
type Kind int

const (
	// KindUser is the transcribed user utterance.
	KindUser Kind = iota

	// KindAssistant is the resolved assistant reply.
	KindAssistant

	// KindReminder is a due reminder.
	KindReminder

	// KindError is a turn that failed at a provider boundary.
	KindError

	// KindStatus is an informational line (listening, speaking, config reload).
	KindStatus
)

// String returns the label printed in front of lines of this kind.
func (k Kind) String() string {
	switch k {
	case KindUser:
		return "You"
	case KindAssistant:
		return "Murmur"
	case KindReminder:
		return "Reminder"
	case KindError:
		return "Error"
	case KindStatus:
		return "Status"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Display shows conversation lines. Implementations must be safe for
// concurrent use; lines from one caller must appear in call order.
type Display interface {
	Show(kind Kind, text string)
}

// Palette
var (
	userColor      = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#06B6D4"}
	assistantColor = lipgloss.AdaptiveColor{Light: "#5B21B6", Dark: "#7C3AED"}
	reminderColor  = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.AdaptiveColor{Light: "#737373", Dark: "#737373"}
)

// Option configures a [Console].
type Option func(*Console)

// WithClock sets the time source for timestamps. Defaults to the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(con *Console) { con.clock = c }
}

// WithTimestamps prefixes every line with the local time. Enabled by default.
func WithTimestamps(on bool) Option {
	return func(con *Console) { con.timestamps = on }
}

// Console is a [Display] that writes one styled line per call to w.
type Console struct {
	mu         sync.Mutex
	w          io.Writer
	clock      clockwork.Clock
	timestamps bool

	labels map[Kind]lipgloss.Style
	body   map[Kind]lipgloss.Style
	stamp  lipgloss.Style
}

var _ Display = (*Console)(nil)

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer, opts ...Option) *Console {
	r := lipgloss.NewRenderer(w)
	label := func(c lipgloss.TerminalColor) lipgloss.Style {
		return r.NewStyle().Foreground(c).Bold(true)
	}
	c := &Console{
		w:          w,
		clock:      clockwork.NewRealClock(),
		timestamps: true,
		labels: map[Kind]lipgloss.Style{
			KindUser:      label(userColor),
			KindAssistant: label(assistantColor),
			KindReminder:  label(reminderColor),
			KindError:     label(errorColor),
			KindStatus:    r.NewStyle().Foreground(mutedColor),
		},
		body: map[Kind]lipgloss.Style{
			KindUser:      r.NewStyle(),
			KindAssistant: r.NewStyle(),
			KindReminder:  r.NewStyle().Foreground(reminderColor),
			KindError:     r.NewStyle().Foreground(errorColor),
			KindStatus:    r.NewStyle().Foreground(mutedColor).Italic(true),
		},
		stamp: r.NewStyle().Foreground(mutedColor),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Show implements [Display]. Multi-line text is flattened to one line.
func (c *Console) Show(kind Kind, text string) {
	text = strings.Join(strings.Fields(text), " ")

	var b strings.Builder
	if c.timestamps {
		b.WriteString(c.stamp.Render(c.clock.Now().Format("15:04:05")))
		b.WriteByte(' ')
	}
	b.WriteString(c.labels[kind].Render(kind.String() + ":"))
	b.WriteByte(' ')
	b.WriteString(c.body[kind].Render(text))
	b.WriteByte('\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.w, b.String())
}

// Banner writes a bordered startup summary. Each pair is rendered as
// "key: value" on its own line.
func (c *Console) Banner(title string, pairs ...string) {
	r := lipgloss.NewRenderer(c.w)
	var lines []string
	lines = append(lines, r.NewStyle().Bold(true).Foreground(assistantColor).Render(title))
	for i := 0; i+1 < len(pairs); i += 2 {
		lines = append(lines, r.NewStyle().Foreground(mutedColor).Render(pairs[i]+":")+" "+pairs[i+1])
	}
	box := r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(mutedColor).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))

	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = io.WriteString(c.w, box+"\n")
}
