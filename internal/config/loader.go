package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":   {"whisper", "whisper-native", "openai"},
	"llm":   {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":   {"openai", "elevenlabs"},
	"audio": {"portaudio"},
}

// Load reads the YAML configuration file at path and returns a validated [Config]
// with defaults applied. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Useful in tests where configs are constructed from string literals.
// An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and returns
// every problem found, joined. Unknown provider names and a missing TTS
// provider only log warnings.
func Validate(cfg *Config) error {
	var v validator

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		v.failf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}
	v.unit("server.trace_sample_ratio", cfg.Server.TraceSampleRatio)

	for kind, name := range map[string]string{
		"stt":   cfg.Providers.STT.Name,
		"llm":   cfg.Providers.LLM.Name,
		"tts":   cfg.Providers.TTS.Name,
		"audio": cfg.Providers.Audio.Name,
	} {
		warnUnknownProvider(kind, name)
	}
	if cfg.Providers.STT.Name == "" {
		v.failf("providers.stt is required; utterances cannot be transcribed without it")
	}
	if cfg.Providers.LLM.Name == "" {
		v.failf("providers.llm is required; replies cannot be generated without it")
	}
	if cfg.Providers.TTS.Name == "" && cfg.Conversation.SpeechOutputEnabled() {
		slog.Warn("conversation.speech_output is enabled but providers.tts is not configured; replies will be text only")
	}

	v.positive("audio.sample_rate", cfg.Audio.SampleRate)
	v.positive("audio.buffer_seconds", cfg.Audio.BufferSeconds)
	v.positive("audio.poll_interval_ms", cfg.Audio.PollIntervalMs)

	v.unit("vad.threshold", cfg.VAD.Threshold)
	v.positive("vad.window_ms", cfg.VAD.WindowMs)
	v.nonNegative("vad.silence_ms", cfg.VAD.SilenceMs)
	v.nonNegative("vad.min_speech_ms", cfg.VAD.MinSpeechMs)
	if w, rate := cfg.VAD.WindowMs, cfg.Audio.SampleRate; w > 0 && rate > 0 && rate*w%1000 != 0 {
		v.failf("vad.window_ms %d does not divide into whole samples at %d Hz", w, rate)
	}
	if w, buf := cfg.VAD.WindowMs, cfg.Audio.BufferSeconds; w > 0 && buf > 0 && w > buf*1000 {
		v.failf("vad.window_ms %d exceeds the %d s capture buffer", w, buf)
	}

	v.nonNegative("playback.cooldown_ms", cfg.Playback.CooldownMs)

	if p := cfg.Conversation.BusyPolicy; p != "" && !p.IsValid() {
		v.failf("conversation.busy_policy %q is invalid; valid values: drop, defer", p)
	}
	v.nonNegative("conversation.max_history", cfg.Conversation.MaxHistory)
	v.nonNegative("conversation.turn_timeout_ms", cfg.Conversation.TurnTimeoutMs)

	v.positive("reminders.poll_interval_ms", cfg.Reminders.PollIntervalMs)

	if cfg.Journal.PostgresDSN == "" {
		slog.Debug("journal.postgres_dsn is empty; the conversation journal is kept in memory only")
	}
	return errors.Join(v.errs...)
}

// validator collects validation failures. Zero values are left to
// [ApplyDefaults] and never fail a range check.
type validator struct {
	errs []error
}

func (v *validator) failf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) positive(field string, n int) {
	if n < 0 {
		v.failf("%s %d must be positive", field, n)
	}
}

func (v *validator) nonNegative(field string, n int) {
	if n < 0 {
		v.failf("%s %d must not be negative", field, n)
	}
}

func (v *validator) unit(field string, f float64) {
	if f < 0 || f > 1 {
		v.failf("%s %.4f is out of range [0, 1]", field, f)
	}
}

// warnUnknownProvider logs names that are not in [ValidProviderNames]; they
// may be typos or providers registered by an embedding program.
func warnUnknownProvider(kind, name string) {
	known := ValidProviderNames[kind]
	if name == "" || known == nil || slices.Contains(known, name) {
		return
	}
	slog.Warn("config: unknown provider name", "kind", kind, "name", name, "known", known)
}
