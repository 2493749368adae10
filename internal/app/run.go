package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/murmur/internal/config"
	"github.com/MrWong99/murmur/internal/display"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/internal/reminder"
)

// reminderBuffer is the number of due reminders queued for display while an
// earlier one is still being spoken.
const reminderBuffer = 16

// httpShutdownTimeout bounds the graceful stop of the health/metrics server.
const httpShutdownTimeout = 5 * time.Second

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run opens the microphone and blocks until ctx is cancelled or a task
// fails. It runs, as one errgroup:
//
//   - the audio polling task (ring buffer → VAD → orchestrator),
//   - the reminder delivery bridge,
//   - the health/metrics HTTP server when server.listen_addr is set,
//   - the config watcher when a config file was given.
//
// When ctx is done, Run returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	if err := a.guard.StartListening(); err != nil {
		return fmt.Errorf("app: start listening: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.listener.run(gctx, a.clock, a.cfg.Audio.PollInterval())
	})
	g.Go(func() error {
		return a.deliverReminders(gctx)
	})
	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return gctx },
		}
		g.Go(func() error {
			slog.Info("health server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), httpShutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Run(gctx)
		})
	}

	slog.Info("app running",
		"sample_rate", a.cfg.Audio.SampleRate,
		"busy_policy", a.cfg.Conversation.BusyPolicy,
		"speech_output", a.orch.SpeechOutput(),
	)

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Handler returns the HTTP handler for /healthz, /readyz and /metrics,
// wrapped in the tracing and metrics middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	return observe.Middleware(a.metrics)(mux)
}

// deliverReminders forwards due reminders from the scheduler to the
// orchestrator. Delivery runs on its own goroutine so a reminder being
// spoken never blocks audio polling or the scheduler's timers.
func (a *App) deliverReminders(ctx context.Context) error {
	due := make(chan reminder.Reminder, reminderBuffer)
	unsubscribe := a.scheduler.Subscribe(func(r reminder.Reminder) {
		select {
		case due <- r:
		case <-ctx.Done():
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-due:
			a.orch.HandleReminder(ctx, r)
		}
	}
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable part of a config change to the
// running App. It has the signature of [config.ChangeFunc].
func (a *App) ApplyConfig(_, newCfg *config.Config, diff config.ConfigDiff) {
	if diff.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.VADChanged {
		if err := a.listener.reconfigure(diff.NewVAD.Session(a.cfg.Audio.SampleRate)); err != nil {
			slog.Warn("ignoring vad change", "err", err)
		}
	}
	if diff.CooldownChanged {
		a.guard.SetCooldown(newCfg.Playback.Cooldown())
		slog.Info("playback cooldown changed", "cooldown_ms", diff.NewCooldownMs)
	}
	if diff.SpeechOutputChanged {
		a.orch.SetSpeechOutput(diff.NewSpeechOutput)
		state := "off"
		if diff.NewSpeechOutput {
			state = "on"
		}
		a.display.Show(display.KindStatus, "Speech output "+state)
	}
	if len(diff.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", diff.RestartRequired)
	}
}

// SlogLevel maps a config log level to its slog level. Unknown values map
// to Info.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
