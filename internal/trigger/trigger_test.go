package trigger_test

import (
	"testing"

	"github.com/MrWong99/murmur/internal/trigger"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reply   string
		kind    trigger.Kind
		mode    trigger.Mode
		spec    string
		message string
	}{
		{name: "plain text", reply: "Hello there!", kind: trigger.KindText},
		{name: "time marker", reply: "[TIME_NOW]", kind: trigger.KindTimeQuery},
		{name: "time marker padded", reply: "  [TIME_NOW]\n", kind: trigger.KindTimeQuery},
		{name: "time marker embedded", reply: "It is [TIME_NOW] now", kind: trigger.KindText},
		{name: "time marker lowercase", reply: "[time_now]", kind: trigger.KindText},
		{
			name: "remind in", reply: "[REMIND|IN|10m|stretch your legs]",
			kind: trigger.KindReminder, mode: trigger.ModeIn, spec: "10m", message: "stretch your legs",
		},
		{
			name: "remind at lowercase mode", reply: "[REMIND|at|3:30 PM|call mom]",
			kind: trigger.KindReminder, mode: trigger.ModeAt, spec: "3:30 PM", message: "call mom",
		},
		{
			name: "remind keyword lowercase", reply: "[remind|In|5s|tea]",
			kind: trigger.KindReminder, mode: trigger.ModeIn, spec: "5s", message: "tea",
		},
		{
			name: "message keeps pipes", reply: "[REMIND|IN|1h|a|b]",
			kind: trigger.KindReminder, mode: trigger.ModeIn, spec: "1h", message: "a|b",
		},
		{name: "unknown mode", reply: "[REMIND|ON|10m|x]", kind: trigger.KindText},
		{name: "missing message", reply: "[REMIND|IN|10m|]", kind: trigger.KindText},
		{name: "missing bracket", reply: "[REMIND|IN|10m|x", kind: trigger.KindText},
		{name: "prefix text", reply: "Sure! [REMIND|IN|10m|x]", kind: trigger.KindText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := trigger.Parse(tt.reply)
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Raw != tt.reply {
				t.Errorf("Raw = %q, want %q", got.Raw, tt.reply)
			}
			if tt.kind != trigger.KindReminder {
				return
			}
			if got.Mode != tt.mode || got.Spec != tt.spec || got.Message != tt.message {
				t.Errorf("got {%s %q %q}, want {%s %q %q}",
					got.Mode, got.Spec, got.Message, tt.mode, tt.spec, tt.message)
			}
		})
	}
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	for k, want := range map[trigger.Kind]string{
		trigger.KindText:      "text",
		trigger.KindTimeQuery: "time_query",
		trigger.KindReminder:  "reminder",
		trigger.Kind(42):      "unknown",
	} {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(k), got, want)
		}
	}
}
