// Package app wires all Murmur subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the audio polling loop, the reminder bridge, the
// optional health/metrics server and the config watcher, and Shutdown tears
// everything down in order.
//
// For testing, inject test doubles via functional options (WithClock,
// WithDisplay, WithJournal, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/MrWong99/murmur/internal/config"
	"github.com/MrWong99/murmur/internal/conversation"
	"github.com/MrWong99/murmur/internal/display"
	"github.com/MrWong99/murmur/internal/health"
	"github.com/MrWong99/murmur/internal/journal"
	"github.com/MrWong99/murmur/internal/journal/postgres"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/internal/playback"
	"github.com/MrWong99/murmur/internal/reminder"
	"github.com/MrWong99/murmur/internal/resilience"
	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/llm"
	"github.com/MrWong99/murmur/pkg/provider/stt"
	"github.com/MrWong99/murmur/pkg/provider/tts"
	"github.com/MrWong99/murmur/pkg/provider/vad"
	"github.com/MrWong99/murmur/pkg/provider/vad/energy"
)

// memoryJournalSize bounds the in-memory journal used when no database is
// configured.
const memoryJournalSize = 500

// Providers holds one interface value per provider slot. Populated by
// main.go via the config registry. STT, LLM and Input are required; without
// TTS or Output replies are only displayed.
type Providers struct {
	STT    stt.Provider
	LLM    llm.Provider
	TTS    tts.Provider
	Input  audio.Device
	Output audio.Player

	// VAD defaults to the energy-threshold engine.
	VAD vad.Engine

	// Breakers are the circuit breakers guarding the providers above. They
	// feed the readiness check.
	Breakers []*resilience.CircuitBreaker
}

// App owns all subsystem lifetimes and runs the turn-taking pipeline.
type App struct {
	cfg        *config.Config
	providers  *Providers
	configPath string

	clock    clockwork.Clock
	metrics  *observe.Metrics
	logLevel *slog.LevelVar

	// Subsystems, initialised in New and torn down in Shutdown.
	display   display.Display
	journal   journal.Journal
	capture   *audio.Capture
	guard     *playback.Guard
	scheduler *reminder.Scheduler
	orch      *conversation.Orchestrator
	health    *health.Handler
	watcher   *config.Watcher
	listener  *listener

	// closers are called in order during Shutdown. closeJournal runs last
	// so late reminders can still be recorded.
	closers      []func() error
	closeJournal func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithClock sets the clock shared by the scheduler, the playback guard, the
// orchestrator and the audio poller.
func WithClock(c clockwork.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithDisplay injects a display instead of the stdout console.
func WithDisplay(d display.Display) Option {
	return func(a *App) { a.display = d }
}

// WithJournal injects a journal instead of creating one from config.
func WithJournal(j journal.Journal) Option {
	return func(a *App) { a.journal = j }
}

// WithMetrics injects metric instruments instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands New the level variable of the process logger so that a
// config reload can change verbosity.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithConfigFile enables hot reload: the file at path is polled and
// reloadable changes are applied to the running App.
func WithConfigFile(path string) Option {
	return func(a *App) { a.configPath = path }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously but does not open the
// microphone; that happens in Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil || providers.LLM == nil || providers.Input == nil {
		return nil, errors.New("app: STT, LLM and audio input providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.clock == nil {
		a.clock = clockwork.NewRealClock()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.display == nil {
		a.display = display.NewConsole(os.Stdout, display.WithClock(a.clock))
	}

	// ── 1. Journal ───────────────────────────────────────────────────────
	if err := a.initJournal(ctx); err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}

	// ── 2. Capture + playback guard ──────────────────────────────────────
	a.initCapture()

	// ── 3. Reminder scheduler ────────────────────────────────────────────
	a.scheduler = reminder.New(
		reminder.WithClock(a.clock),
		reminder.WithPollInterval(cfg.Reminders.PollInterval()),
		reminder.WithMetrics(a.metrics),
	)
	a.closers = append(a.closers, a.scheduler.Close)

	// ── 4. Orchestrator ──────────────────────────────────────────────────
	if err := a.initConversation(); err != nil {
		return nil, fmt.Errorf("app: init conversation: %w", err)
	}

	// ── 5. Audio listener ────────────────────────────────────────────────
	engine := providers.VAD
	if engine == nil {
		engine = energy.New()
	}
	l, err := newListener(engine, cfg.VAD.Session(cfg.Audio.SampleRate), a.capture.Stream(), a.orch, a.metrics)
	if err != nil {
		return nil, fmt.Errorf("app: init vad: %w", err)
	}
	a.listener = l
	a.guard.OnStateChange(a.onCaptureState)

	// ── 6. Health ────────────────────────────────────────────────────────
	checks := []health.Checker{
		health.Capture(a.guard),
		health.Breakers(providers.Breakers...),
	}
	if p, ok := a.journal.(health.Pinger); ok {
		checks = append(checks, health.Ping("journal", p))
	}
	a.health = health.New(checks, health.WithClock(a.clock))

	// ── 7. Config watcher ────────────────────────────────────────────────
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.ApplyConfig, config.WithWatchClock(a.clock))
		if err != nil {
			return nil, fmt.Errorf("app: init config watcher: %w", err)
		}
		a.watcher = w
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initJournal opens the PostgreSQL journal or falls back to memory.
func (a *App) initJournal(ctx context.Context) error {
	if a.journal != nil {
		return nil
	}
	dsn := a.cfg.Journal.PostgresDSN
	if dsn == "" {
		a.journal = journal.NewMemory(memoryJournalSize)
		return nil
	}
	j, err := postgres.Open(ctx, dsn)
	if err != nil {
		return err
	}
	a.journal = j
	a.closeJournal = j.Close
	slog.Info("journal connected", "backend", "postgres")
	return nil
}

// initCapture binds the input device to a ring buffer and puts the
// playback guard in charge of it.
func (a *App) initCapture() {
	stream := audio.NewCaptureStream(a.cfg.Audio.BufferSamples())
	a.capture = audio.NewCapture(a.providers.Input, stream)
	a.guard = playback.New(a.capture,
		playback.WithClock(a.clock),
		playback.WithCooldown(a.cfg.Playback.Cooldown()),
		playback.WithAutoListen(a.cfg.Playback.AutoListenEnabled()),
		playback.WithMetrics(a.metrics),
	)
	a.closers = append(a.closers, a.guard.Close, a.capture.Close)
}

// initConversation builds the speaker (when speech output is possible) and
// the orchestrator.
func (a *App) initConversation() error {
	var speaker *conversation.Speaker
	if a.providers.TTS != nil && a.providers.Output != nil {
		s, err := conversation.NewSpeaker(conversation.SpeakerConfig{
			TTS:     a.providers.TTS,
			Player:  a.providers.Output,
			Guard:   a.guard,
			Path:    a.cfg.Playback.SpeechFile,
			Voice:   a.cfg.Conversation.Voice,
			Format:  tts.FormatWAV,
			Metrics: a.metrics,
			Clock:   a.clock,
		})
		if err != nil {
			return err
		}
		speaker = s
		a.closers = append(a.closers, a.providers.Output.Close)
	} else {
		slog.Warn("speech output unavailable, replies are only displayed")
	}

	policy := conversation.DropWhenBusy
	if a.cfg.Conversation.BusyPolicy == config.BusyDefer {
		policy = conversation.DeferWhenBusy
	}

	orch, err := conversation.New(conversation.Config{
		STT:          a.providers.STT,
		LLM:          a.providers.LLM,
		Scheduler:    a.scheduler,
		Display:      a.display,
		Speaker:      speaker,
		History:      conversation.NewHistory(a.cfg.Conversation.MaxHistory),
		Journal:      a.journal,
		Metrics:      a.metrics,
		Clock:        a.clock,
		SystemPrompt: a.cfg.Conversation.SystemPrompt,
		Language:     a.cfg.Conversation.Language,
		SampleRate:   a.cfg.Audio.SampleRate,
		BusyPolicy:   policy,
		TurnTimeout:  a.cfg.Conversation.TurnTimeout(),
		SpeechOutput: a.cfg.Conversation.SpeechOutputEnabled(),
	})
	if err != nil {
		return err
	}
	a.orch = orch
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Orchestrator returns the conversation orchestrator.
func (a *App) Orchestrator() *conversation.Orchestrator { return a.orch }

// Guard returns the playback guard that owns the microphone.
func (a *App) Guard() *playback.Guard { return a.guard }

// Scheduler returns the reminder scheduler.
func (a *App) Scheduler() *reminder.Scheduler { return a.scheduler }

// Journal returns the conversation journal.
func (a *App) Journal() journal.Journal { return a.journal }

// Health returns the liveness/readiness handler.
func (a *App) Health() *health.Handler { return a.health }

// onCaptureState clears the segmenter whenever capture leaves the listening
// state so a half-open segment never spans a suspension.
func (a *App) onCaptureState(from, to playback.CaptureState) {
	if from == playback.Listening {
		a.listener.requestReset()
	}
	switch to {
	case playback.Listening:
		a.display.Show(display.KindStatus, "Listening")
	case playback.Idle:
		a.display.Show(display.KindStatus, "Microphone off")
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems. It waits for the active turn to finish
// and respects the context deadline: if ctx expires, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.watcher != nil {
			a.watcher.Stop()
		}
		if err := a.guard.StopListening(); err != nil {
			slog.Warn("stop listening error", "err", err)
		}
		if err := a.orch.Wait(ctx); err != nil {
			slog.Warn("turn still running at shutdown", "err", err)
		}

		closers := append([]func() error(nil), a.closers...)
		closers = append(closers, a.listener.Close)
		for _, p := range []any{a.providers.STT, a.providers.LLM, a.providers.TTS} {
			if c := closerOf(p); c != nil {
				closers = append(closers, c.Close)
			}
		}
		if a.closeJournal != nil {
			closers = append(closers, a.closeJournal)
		}

		for i, closer := range closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closerOf returns the io.Closer behind p, looking through circuit breaker
// wrappers, or nil when the provider holds nothing to release.
func closerOf(p any) io.Closer {
	for p != nil {
		if c, ok := p.(io.Closer); ok {
			return c
		}
		switch w := p.(type) {
		case interface{ Unwrap() stt.Provider }:
			p = w.Unwrap()
		case interface{ Unwrap() llm.Provider }:
			p = w.Unwrap()
		case interface{ Unwrap() tts.Provider }:
			p = w.Unwrap()
		default:
			return nil
		}
	}
	return nil
}
