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
)

// DefaultWatchInterval is how often a [Watcher] looks at the config file.
const DefaultWatchInterval = 5 * time.Second

// Reload describes one accepted edit of the config file.
type Reload struct {
	Previous *Config
	Next     *Config
	Diff     ConfigDiff
}

// Watcher polls a config file for edits. An edit is accepted when the
// content hash changed and the new file still validates; rejected edits are
// logged and the last accepted config stays current.
type Watcher struct {
	path      string
	interval  time.Duration
	transform func(*Config)

	mu      sync.Mutex
	current *Config
	modTime time.Time
	sum     [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithTransform applies fn to every loaded config before it is validated
// and diffed. Command-line overrides use it so they survive reloads.
func WithTransform(fn func(*Config)) WatcherOption {
	return func(w *Watcher) { w.transform = fn }
}

// NewWatcher loads path once and returns a Watcher holding it. Polling starts
// with [Watcher.Run].
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval}
	for _, opt := range opts {
		opt(w)
	}
	cfg, sum, modTime, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.sum, w.modTime = cfg, sum, modTime
	return w, nil
}

// Current returns the last accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is cancelled and calls onReload for each accepted edit.
// onReload runs on the polling goroutine and may call Current.
func (w *Watcher) Run(ctx context.Context, onReload func(Reload)) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if r, ok := w.check(); ok && onReload != nil {
				onReload(r)
			}
		}
	}
}

func (w *Watcher) check() (Reload, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: cannot stat watched file", "path", w.path, "err", err)
		return Reload{}, false
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.modTime)
	w.mu.Unlock()
	if unchanged {
		return Reload{}, false
	}

	cfg, sum, modTime, err := w.read()
	if err != nil {
		slog.Warn("config: rejected edit, keeping previous configuration", "path", w.path, "err", err)
		// Remember the mtime so a broken file is reported once.
		w.mu.Lock()
		w.modTime = info.ModTime()
		w.mu.Unlock()
		return Reload{}, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.modTime = modTime
	if sum == w.sum {
		return Reload{}, false
	}
	r := Reload{Previous: w.current, Next: cfg, Diff: Diff(w.current, cfg)}
	w.current, w.sum = cfg, sum
	slog.Info("config: reloaded", "path", w.path,
		"log_level_changed", r.Diff.LogLevelChanged,
		"timing_changed", r.Diff.TimingChanged,
		"restart_required", r.Diff.RestartRequired,
	)
	return r, true
}

func (w *Watcher) read() (*Config, [sha256.Size]byte, time.Time, error) {
	var sum [sha256.Size]byte
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, sum, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, sum, time.Time{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, sum, time.Time{}, err
	}
	if w.transform != nil {
		w.transform(cfg)
		if err := Validate(cfg); err != nil {
			return nil, sum, time.Time{}, err
		}
	}
	return cfg, sha256.Sum256(data), info.ModTime(), nil
}
