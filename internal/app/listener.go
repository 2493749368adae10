package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/vad"
)

// submitter is the part of the orchestrator the listener feeds.
type submitter interface {
	Submit(ctx context.Context, utterance []float32) bool
}

// listener drains the capture ring buffer frame by frame into the voice
// activity detector and submits every completed utterance. Only the polling
// goroutine touches the VAD session; other goroutines request resets and
// reconfiguration through the mutex-guarded fields.
type listener struct {
	engine  vad.Engine
	stream  *audio.CaptureStream
	sink    submitter
	metrics *observe.Metrics

	session vad.SessionHandle
	cfg     vad.Config
	// open is true while a segment is in progress.
	open bool

	mu      sync.Mutex
	reset   bool
	pending *vad.Config
}

func newListener(engine vad.Engine, cfg vad.Config, stream *audio.CaptureStream, sink submitter, m *observe.Metrics) (*listener, error) {
	session, err := engine.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return &listener{
		engine:  engine,
		stream:  stream,
		sink:    sink,
		metrics: m,
		session: session,
		cfg:     cfg,
	}, nil
}

// requestReset drops any half-open segment before the next poll.
func (l *listener) requestReset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset = true
}

// reconfigure validates cfg and schedules it for the next segmenter reset.
func (l *listener) reconfigure(cfg vad.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = &cfg
	return nil
}

// run polls the stream on every tick until ctx is done. It always returns
// nil so it can run inside an errgroup.
func (l *listener) run(ctx context.Context, clock clockwork.Clock, interval time.Duration) error {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			l.poll(ctx)
		}
	}
}

// poll processes every complete frame currently buffered.
func (l *listener) poll(ctx context.Context) {
	l.applyControl()

	n := l.cfg.FrameSamples()
	for {
		frame, ok := l.stream.ReadWindow(n)
		if !ok {
			return
		}
		ev := l.session.ProcessFrame(frame)
		switch ev.Type {
		case vad.SpeechStart:
			l.open = true
			slog.Debug("speech started", "rms", ev.RMS)
		case vad.SpeechContinue:
			l.open = true
		case vad.SpeechEnd:
			l.open = false
			slog.Debug("utterance complete", "speech_ms", ev.SpeechMs, "samples", len(ev.Utterance))
			l.sink.Submit(ctx, ev.Utterance)
		case vad.FalseTrigger:
			l.open = false
			slog.Debug("segment discarded as too short", "speech_ms", ev.SpeechMs)
			if l.metrics != nil {
				l.metrics.FalseTriggers.Add(ctx, 1)
			}
		default:
			l.open = false
		}
	}
}

// applyControl handles a pending reset and swaps in a pending configuration
// once no segment is open.
func (l *listener) applyControl() {
	l.mu.Lock()
	reset := l.reset
	pending := l.pending
	l.reset = false
	if pending != nil && (reset || !l.open) {
		l.pending = nil
	} else {
		pending = nil
	}
	l.mu.Unlock()

	if reset {
		l.session.Reset()
		l.open = false
	}
	if pending == nil {
		return
	}
	session, err := l.engine.NewSession(*pending)
	if err != nil {
		slog.Warn("vad reconfiguration rejected", "err", err)
		return
	}
	_ = l.session.Close()
	l.session = session
	l.cfg = *pending
	l.open = false
	slog.Info("vad reconfigured",
		"threshold", l.cfg.Threshold,
		"window_ms", l.cfg.WindowMs,
		"silence_ms", l.cfg.SilenceMs,
		"min_speech_ms", l.cfg.MinSpeechMs,
	)
}

// Close releases the VAD session.
func (l *listener) Close() error {
	return l.session.Close()
}
