package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultWatchInterval is how often a [Watcher] polls its file.
const DefaultWatchInterval = 5 * time.Second

// ChangeFunc is invoked after a valid, changed config file has been loaded.
// diff is [Diff] of old and new.
type ChangeFunc func(old, new *Config, diff ConfigDiff)

// fileState identifies one version of the watched file. modTime and size
// are a cheap pre-check; sum decides whether the content really changed.
type fileState struct {
	modTime time.Time
	size    int64
	sum     [sha256.Size]byte
}

func (s fileState) sameStat(info os.FileInfo) bool {
	return s.modTime.Equal(info.ModTime()) && s.size == info.Size()
}

// Watcher polls a config file and reports valid changes to a [ChangeFunc].
// An edit that fails to parse or validate is logged and ignored; the
// previous config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	clock    clockwork.Clock
	log      *slog.Logger
	onChange ChangeFunc

	mu      sync.Mutex
	current *Config
	state   fileState

	stop     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values keep
// [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchClock sets the clock that drives polling.
func WithWatchClock(c clockwork.Clock) WatcherOption {
	return func(w *Watcher) { w.clock = c }
}

// WithWatchLogger sets the logger for reload and rejection messages.
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher loads path once and returns a Watcher for it. Polling starts
// with [Watcher.Run].
func NewWatcher(path string, onChange ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		clock:    clockwork.NewRealClock(),
		log:      slog.Default(),
		onChange: onChange,
		stop:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	w.log = w.log.With("path", path)

	cfg, st, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.state = cfg, st
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run calls [Watcher.Poll] every interval until ctx is cancelled or
// [Watcher.Stop] is called. It always returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stop:
			return nil
		case <-ticker.Chan():
			if _, err := w.Poll(); err != nil {
				w.log.Warn("config watcher: keeping previous config", "err", err)
			}
		}
	}
}

// Stop ends [Watcher.Run]. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Poll checks the file once. It reports whether a new config was adopted;
// an error means the file could not be read or holds an invalid config.
// The change callback runs on the calling goroutine after the new config
// is current.
func (w *Watcher) Poll() (bool, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return false, fmt.Errorf("config: stat: %w", err)
	}
	w.mu.Lock()
	unchanged := w.state.sameStat(info)
	w.mu.Unlock()
	if unchanged {
		return false, nil
	}

	cfg, st, err := w.read()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if st.sum == w.state.sum {
		// Touched without a content change.
		w.state = st
		w.mu.Unlock()
		return false, nil
	}
	old := w.current
	w.current, w.state = cfg, st
	w.mu.Unlock()

	diff := Diff(old, cfg)
	w.log.Info("config watcher: configuration reloaded",
		"hot_reloadable", diff.HasChanges(),
		"restart_required", diff.RestartRequired,
	)
	if w.onChange != nil {
		w.onChange(old, cfg, diff)
	}
	return true, nil
}

// read loads and validates the file and fingerprints the bytes it parsed.
func (w *Watcher) read() (*Config, fileState, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileState{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileState{}, err
	}
	return cfg, fileState{modTime: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}, nil
}
