package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounceDelay = 500 * time.Millisecond

// ReloadFunc receives every configuration that loaded and validated cleanly.
type ReloadFunc func(*Config)

// Watcher reloads the gate configuration when its file changes on disk.
// Editors often replace files instead of writing them in place, so the
// parent directory is watched and events are filtered by name.
type Watcher struct {
	path     string
	onReload ReloadFunc
	delay    time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func NewWatcher(path string, onReload ReloadFunc, debounceDelay time.Duration) *Watcher {
	if debounceDelay <= 0 {
		debounceDelay = defaultDebounceDelay
	}
	return &Watcher{
		path:     filepath.Clean(path),
		onReload: onReload,
		delay:    debounceDelay,
	}
}

// Run blocks until ctx is cancelled or the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create config file watcher", "error", err)
		return
	}
	defer fsw.Close()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		slog.Error("Failed to add config directory to watcher", "path", dir, "error", err)
		return
	}

	slog.Info("Started configuration watcher", "path", w.path, "debounce", w.delay)

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			slog.Info("Stopping configuration watcher...")
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				slog.Warn("Watcher events channel closed unexpectedly, stopping watcher.")
				return
			}
			if w.relevant(ev) {
				w.schedule()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				slog.Warn("Watcher errors channel closed unexpectedly, stopping watcher.")
				return
			}
			slog.Error("Error watching config file", "error", err)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload() {
	slog.Info("Config file changed, attempting to reload...", "path", w.path)
	cfg, _, err := Load(w.path, false)
	if err != nil {
		slog.Error("Failed to reload config file, keeping old configuration", "path", w.path, "error", err)
		return
	}
	w.onReload(cfg)
	slog.Info("Configuration reloaded and applied successfully", "path", w.path)
}
