// Command murmur is the main entry point for the Murmur voice assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MrWong99/murmur/internal/app"
	"github.com/MrWong99/murmur/internal/config"
	"github.com/MrWong99/murmur/internal/display"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/internal/resilience"
	"github.com/MrWong99/murmur/pkg/audio/portaudio"
	"github.com/MrWong99/murmur/pkg/provider/llm"
	"github.com/MrWong99/murmur/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/murmur/pkg/provider/llm/openai"
	"github.com/MrWong99/murmur/pkg/provider/stt"
	oastt "github.com/MrWong99/murmur/pkg/provider/stt/openai"
	"github.com/MrWong99/murmur/pkg/provider/stt/whisper"
	"github.com/MrWong99/murmur/pkg/provider/tts"
	"github.com/MrWong99/murmur/pkg/provider/tts/elevenlabs"
	oatts "github.com/MrWong99/murmur/pkg/provider/tts/openai"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	listVoices := flag.Bool("voices", false, "list the voices of the configured TTS provider and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "murmur: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "murmur: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var logLevel slog.LevelVar
	logLevel.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel})))

	slog.Info("murmur starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Audio backend ─────────────────────────────────────────────────────────
	if cfg.Providers.Audio.Name == "portaudio" {
		if err := portaudio.Initialize(); err != nil {
			slog.Error("failed to initialise portaudio", "err", err)
			return 1
		}
		defer func() {
			if err := portaudio.Terminate(); err != nil {
				slog.Warn("portaudio terminate error", "err", err)
			}
		}()
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *listVoices {
		return printVoices(ctx, providers.TTS)
	}

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "murmur",
		ServiceVersion: version,
		SampleRatio:    cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Startup summary ───────────────────────────────────────────────────────
	console := display.NewConsole(os.Stdout)
	printStartupSummary(console, cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithDisplay(console),
		app.WithLogLevel(&logLevel),
		app.WithConfigFile(*configPath),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("ready, press Ctrl+C to shut down")

	exit := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return exit
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptionString("organization", ""); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if n := entry.OptionInt("max_tokens", 0); n > 0 {
			opts = append(opts, oallm.WithMaxTokens(n))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, backend := range anyllm.Backends() {
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			return anyllm.New(backend, entry.Model, anyllm.Options{
				APIKey:    entry.APIKey,
				BaseURL:   entry.BaseURL,
				MaxTokens: entry.OptionInt("max_tokens", 0),
			})
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if lang := entry.OptionString("language", cfg.Conversation.Language); lang != "" {
			opts = append(opts, oastt.WithLanguage(lang))
		}
		if prompt := entry.OptionString("prompt", ""); prompt != "" {
			opts = append(opts, oastt.WithPrompt(prompt))
		}
		return oastt.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptionString("language", cfg.Conversation.Language); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.OptionString("model_path", "")
		}
		opts := []whisper.NativeOption{
			whisper.WithNativeConcurrency(entry.OptionInt("concurrency", 1)),
		}
		if lang := entry.OptionString("language", cfg.Conversation.Language); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := entry.OptionInt("threads", 0); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oatts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oatts.WithBaseURL(entry.BaseURL))
		}
		if cfg.Conversation.Voice != "" {
			opts = append(opts, oatts.WithVoice(cfg.Conversation.Voice))
		}
		if speed := entry.OptionFloat("speed", 0); speed != 0 {
			opts = append(opts, oatts.WithSpeed(speed))
		}
		return oatts.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := entry.OptionString("output_format", ""); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if cfg.Conversation.Voice != "" {
			opts = append(opts, elevenlabs.WithVoice(cfg.Conversation.Voice))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithAPIBaseURL(entry.BaseURL))
		}
		if _, ok := entry.Options["stability"]; ok {
			opts = append(opts, elevenlabs.WithVoiceSettings(
				entry.OptionFloat("stability", 0.5), entry.OptionFloat("similarity_boost", 0.75)))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(entry config.ProviderEntry) (config.AudioDevices, error) {
		opts := []portaudio.Option{portaudio.WithSampleRate(cfg.Audio.SampleRate)}
		if n := entry.OptionInt("frames_per_buffer", 0); n > 0 {
			opts = append(opts, portaudio.WithFramesPerBuffer(n))
		}
		in, err := portaudio.NewInput(opts...)
		if err != nil {
			return config.AudioDevices{}, err
		}
		out, err := portaudio.NewOutput(opts...)
		if err != nil {
			_ = in.Close()
			return config.AudioDevices{}, err
		}
		return config.AudioDevices{Input: in, Output: out}, nil
	})

	for _, kind := range []string{"llm", "stt", "tts", "audio"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and wraps the network-backed ones in circuit breakers.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	breakerCfg := func(kind, name string) resilience.CircuitBreakerConfig {
		return resilience.CircuitBreakerConfig{
			Name: kind + "/" + name,
			OnStateChange: func(breaker string, from, to resilience.State) {
				slog.Warn("circuit breaker state changed", "breaker", breaker, "from", from, "to", to)
			},
			OnResult: func(_ string, err error) {
				m := observe.DefaultMetrics()
				status := "ok"
				if err != nil {
					status = "error"
					m.RecordProviderError(context.Background(), name, kind)
				}
				m.RecordProviderRequest(context.Background(), name, kind, status)
			},
		}
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		g := resilience.GuardSTT(p, breakerCfg("stt", name))
		ps.STT = g
		ps.Breakers = append(ps.Breakers, g.Breaker())
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		g := resilience.GuardLLM(p, breakerCfg("llm", name))
		ps.LLM = g
		ps.Breakers = append(ps.Breakers, g.Breaker())
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown tts provider, speech output disabled", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		} else {
			g := resilience.GuardTTS(p, breakerCfg("tts", name))
			ps.TTS = g
			ps.Breakers = append(ps.Breakers, g.Breaker())
			slog.Info("provider created", "kind", "tts", "name", name)
		}
	}

	if name := cfg.Providers.Audio.Name; name != "" {
		devices, err := reg.CreateAudio(cfg.Providers.Audio)
		if err != nil {
			return nil, fmt.Errorf("create audio provider %q: %w", name, err)
		}
		ps.Input = devices.Input
		ps.Output = devices.Output
		slog.Info("provider created", "kind", "audio", "name", name)
	}

	return ps, nil
}

// ── Voices ────────────────────────────────────────────────────────────────────

func printVoices(ctx context.Context, p tts.Provider) int {
	lister, ok := p.(tts.VoiceLister)
	if !ok {
		fmt.Fprintln(os.Stderr, "murmur: the configured tts provider cannot list voices")
		return 1
	}
	voices, err := lister.ListVoices(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "murmur: list voices: %v\n", err)
		return 1
	}
	for _, v := range voices {
		fmt.Printf("%-28s %s\n", v.ID, v.Name)
	}
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(console *display.Console, cfg *config.Config) {
	speech := "off"
	if cfg.Conversation.SpeechOutputEnabled() {
		speech = "on"
	}
	listen := cfg.Server.ListenAddr
	if listen == "" {
		listen = "(disabled)"
	}
	console.Banner("Murmur "+version,
		"LLM", providerLabel(cfg.Providers.LLM),
		"STT", providerLabel(cfg.Providers.STT),
		"TTS", providerLabel(cfg.Providers.TTS),
		"Audio", providerLabel(cfg.Providers.Audio),
		"Sample rate", strconv.Itoa(cfg.Audio.SampleRate)+" Hz",
		"Speech output", speech,
		"Busy policy", string(cfg.Conversation.BusyPolicy),
		"Listen addr", listen,
	)
}

func providerLabel(entry config.ProviderEntry) string {
	switch {
	case entry.Name == "":
		return "(not configured)"
	case entry.Model != "":
		return entry.Name + " / " + entry.Model
	default:
		return entry.Name
	}
}
