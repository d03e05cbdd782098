// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"

	"github.com/jeranaias/gatelog/internal/clock"
)

// DefaultDebounce coalesces editor save bursts into one reload.
const DefaultDebounce = 500 * time.Millisecond

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the reload debounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithWatcherClock sets the clock used for the debounce timer.
func WithWatcherClock(c clockwork.Clock) WatcherOption {
	return func(w *Watcher) { w.clock = c }
}

// Watcher reloads the store's file when it changes on disk.
type Watcher struct {
	store    *Store
	path     string
	debounce time.Duration
	clock    clockwork.Clock
	fs       *fsnotify.Watcher
	timer    *clock.Timer

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// NewWatcher creates a watcher for store.Path().
func NewWatcher(store *Store, opts ...WatcherOption) (*Watcher, error) {
	if store.Path() == "" {
		return nil, fmt.Errorf("config watcher requires a file-backed store")
	}
	abs, err := filepath.Abs(store.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	w := &Watcher{
		store:    store,
		path:     abs,
		debounce: DefaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.clock = clock.OrReal(w.clock)
	w.timer = clock.NewNamedTimer(w.clock, "config-reload")

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.fs = fs
	return w, nil
}

// Start watches the config directory until ctx ends or Stop is called.
// Watching the directory survives editors that replace the file.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.fs.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}
	slog.Info("starting configuration watcher", "config_path", w.path)
	go w.loop(ctx)
	return nil
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.done)
	w.mu.Unlock()

	w.timer.Cancel()
	return w.fs.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			w.timer.Cancel()
			return
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			switch {
			case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create), ev.Has(fsnotify.Rename):
				slog.Debug("config file change detected", "file", ev.Name, "op", ev.Op.String())
				w.timer.Arm(w.debounce, w.reload)
			case ev.Has(fsnotify.Remove):
				slog.Warn("config file removed; keeping current settings", "file", ev.Name)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "error", err)
		}
	}
}

// reload loads the file and publishes it if anything changed. A file
// that fails validation leaves the running configuration in place.
func (w *Watcher) reload() {
	next, err := LoadFromPath(w.path)
	if err != nil {
		slog.Error("failed to reload configuration", "config_path", w.path, "error", err)
		return
	}
	current := w.store.Snapshot()
	if sameConfig(current, next) {
		return
	}
	if current.DataDir != next.DataDir || current.Auth.UsersFile != next.Auth.UsersFile {
		slog.Warn("data_dir and users_file changes take effect after restart")
	}
	if err := w.store.Replace(next); err != nil {
		slog.Error("failed to apply configuration", "error", err)
		return
	}
	slog.Info("configuration reloaded", "config_path", w.path)
}

// sameConfig compares two configs, treating equal instants as equal
// regardless of location.
func sameConfig(a, b *Config) bool {
	x, y := *a, *b
	if !x.Backup.LastBackupAt.Equal(y.Backup.LastBackupAt) {
		return false
	}
	x.Backup.LastBackupAt, y.Backup.LastBackupAt = time.Time{}, time.Time{}
	return x == y
}
