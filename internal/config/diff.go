package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// (providers, audio device, listen address) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged is true when any segmenter parameter changed. The new
	// values take effect at the next segmenter reset.
	VADChanged bool
	NewVAD     VADConfig

	CooldownChanged bool
	NewCooldownMs   int

	SpeechOutputChanged bool
	NewSpeechOutput     bool

	// RestartRequired lists the top-level sections whose changes were
	// ignored because they cannot be applied to a running process.
	RestartRequired []string
}

// HasChanges reports whether any hot-reloadable field changed.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || d.VADChanged || d.CooldownChanged || d.SpeechOutputChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// VAD parameters
	if old.VAD != new.VAD {
		d.VADChanged = true
		d.NewVAD = new.VAD
	}

	// Playback cooldown
	if old.Playback.CooldownMs != new.Playback.CooldownMs {
		d.CooldownChanged = true
		d.NewCooldownMs = new.Playback.CooldownMs
	}

	// Speech output toggle
	if old.Conversation.SpeechOutputEnabled() != new.Conversation.SpeechOutputEnabled() {
		d.SpeechOutputChanged = true
		d.NewSpeechOutput = new.Conversation.SpeechOutputEnabled()
	}

	// Sections that are only read at startup.
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !sameProviders(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Journal != new.Journal {
		d.RestartRequired = append(d.RestartRequired, "journal")
	}

	return d
}

// sameProviders compares the scalar fields of each provider entry. Options
// maps are not compared.
func sameProviders(a, b ProvidersConfig) bool {
	same := func(x, y ProviderEntry) bool {
		return x.Name == y.Name && x.APIKey == y.APIKey && x.BaseURL == y.BaseURL && x.Model == y.Model
	}
	return same(a.STT, b.STT) && same(a.LLM, b.LLM) && same(a.TTS, b.TTS) && same(a.Audio, b.Audio)
}
