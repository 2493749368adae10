package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/murmur/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{Name: "whisper"},
			LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	d := config.Diff(cfg, cfg)
	if d.HasChanges() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("expected no restart-required sections, got %v", d.RestartRequired)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if !d.HasChanges() {
		t.Error("HasChanges should be true")
	}
}

func TestDiff_VADChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.VAD.SilenceMs = 1200

	d := config.Diff(old, new)
	if !d.VADChanged {
		t.Fatal("expected VADChanged=true")
	}
	if d.NewVAD.SilenceMs != 1200 {
		t.Errorf("NewVAD.SilenceMs: got %d, want 1200", d.NewVAD.SilenceMs)
	}
}

func TestDiff_CooldownAndSpeechOutput(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	off := false
	new.Playback.CooldownMs = 900
	new.Conversation.SpeechOutput = &off

	d := config.Diff(old, new)
	if !d.CooldownChanged || d.NewCooldownMs != 900 {
		t.Errorf("cooldown diff: got changed=%v value=%d", d.CooldownChanged, d.NewCooldownMs)
	}
	if !d.SpeechOutputChanged || d.NewSpeechOutput {
		t.Errorf("speech output diff: got changed=%v value=%v", d.SpeechOutputChanged, d.NewSpeechOutput)
	}
}

func TestDiff_ExplicitTrueSpeechOutputIsNotAChange(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	on := true
	new.Conversation.SpeechOutput = &on

	if d := config.Diff(old, new); d.SpeechOutputChanged {
		t.Error("nil and explicit true are the same setting")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Providers.LLM.Model = "gpt-4o"
	new.Audio.BufferSeconds = 5
	new.Server.ListenAddr = ":9999"
	new.Journal.PostgresDSN = "postgres://localhost/murmur"

	d := config.Diff(old, new)
	if d.HasChanges() {
		t.Errorf("restart-only changes must not be hot-reloadable, got %+v", d)
	}
	for _, want := range []string{"providers", "audio", "server.listen_addr", "journal"} {
		if !slices.Contains(d.RestartRequired, want) {
			t.Errorf("RestartRequired should contain %q, got %v", want, d.RestartRequired)
		}
	}
}
