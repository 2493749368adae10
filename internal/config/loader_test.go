package config_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/murmur/internal/config"
	"github.com/MrWong99/murmur/pkg/provider/llm/anyllm"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		mention string
	}{
		{
			name:    "invalid log level",
			yaml:    minimalYAML + "server:\n  log_level: verbose\n",
			mention: "log_level",
		},
		{
			name:    "missing stt",
			yaml:    "providers:\n  llm:\n    name: openai\n",
			mention: "providers.stt",
		},
		{
			name:    "missing llm",
			yaml:    "providers:\n  stt:\n    name: whisper\n",
			mention: "providers.llm",
		},
		{
			name:    "threshold out of range",
			yaml:    minimalYAML + "vad:\n  threshold: 1.5\n",
			mention: "vad.threshold",
		},
		{
			name:    "negative silence",
			yaml:    minimalYAML + "vad:\n  silence_ms: -1\n",
			mention: "vad.silence_ms",
		},
		{
			name:    "window without whole samples",
			yaml:    minimalYAML + "audio:\n  sample_rate: 11025\nvad:\n  window_ms: 30\n",
			mention: "whole samples",
		},
		{
			name:    "window larger than buffer",
			yaml:    minimalYAML + "audio:\n  buffer_seconds: 1\nvad:\n  window_ms: 2000\n",
			mention: "capture buffer",
		},
		{
			name:    "negative cooldown",
			yaml:    minimalYAML + "playback:\n  cooldown_ms: -5\n",
			mention: "playback.cooldown_ms",
		},
		{
			name:    "unknown busy policy",
			yaml:    minimalYAML + "conversation:\n  busy_policy: queue\n",
			mention: "busy_policy",
		},
		{
			name:    "negative turn timeout",
			yaml:    minimalYAML + "conversation:\n  turn_timeout_ms: -1\n",
			mention: "turn_timeout_ms",
		},
		{
			name:    "negative reminder poll",
			yaml:    minimalYAML + "reminders:\n  poll_interval_ms: -10\n",
			mention: "reminders.poll_interval_ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.mention) {
				t.Errorf("error should mention %q, got: %v", tt.mention, err)
			}
		})
	}
}

func TestValidate_EmptyDocumentRequiresProviders(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(""))
	if err == nil {
		t.Fatal("expected error for empty config, got nil")
	}
	if !strings.Contains(err.Error(), "providers.stt") || !strings.Contains(err.Error(), "providers.llm") {
		t.Errorf("error should list both missing providers, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := minimalYAML + `
server:
  log_level: bananas
conversation:
  busy_policy: queue
  max_history: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	msg := err.Error()
	for _, want := range []string{"log_level", "busy_policy", "max_history"} {
		if !strings.Contains(msg, want) {
			t.Errorf("joined error should mention %q, got: %v", want, msg)
		}
	}
}

func TestValidate_UnknownProviderNameIsOnlyAWarning(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  stt:
    name: my-custom-stt
  llm:
    name: openai
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unknown provider names should not fail validation: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"stt", "llm", "tts", "audio"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("ValidProviderNames[%q] is empty", kind)
		}
	}
	for _, name := range anyllm.Backends() {
		if !slices.Contains(config.ValidProviderNames["llm"], name) {
			t.Errorf("llm backend %q is missing from ValidProviderNames", name)
		}
	}
}
