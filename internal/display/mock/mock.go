// Package mock provides a recording [display.Display] for tests.
package mock

import (
	"slices"
	"sync"

	"github.com/MrWong99/murmur/internal/display"
)

// Line is one recorded Show call.
type Line struct {
	Kind display.Kind
	Text string
}

// Display records every line it is shown. The zero value is ready to use.
type Display struct {
	mu    sync.Mutex
	lines []Line

	// Notify, if non-nil, receives every line after it is recorded. Sends
	// are non-blocking; size the channel for the lines a test waits on.
	Notify chan Line
}

var _ display.Display = (*Display)(nil)

// Show implements [display.Display].
func (d *Display) Show(kind display.Kind, text string) {
	l := Line{Kind: kind, Text: text}
	d.mu.Lock()
	d.lines = append(d.lines, l)
	d.mu.Unlock()
	if d.Notify != nil {
		select {
		case d.Notify <- l:
		default:
		}
	}
}

// Lines returns a copy of every recorded line.
func (d *Display) Lines() []Line {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.lines)
}

// Texts returns the text of every recorded line of kind.
func (d *Display) Texts(kind display.Kind) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, l := range d.lines {
		if l.Kind == kind {
			out = append(out, l.Text)
		}
	}
	return out
}

// Reset clears the recorded lines.
func (d *Display) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines = nil
}
