package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc receives a freshly loaded config after the file changes on disk.
type ReloadFunc func(cfg *Config)

// Watcher reloads the config file when it changes. Bursts of events are
// collapsed into one reload after the debounce interval.
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	debounce time.Duration

	mu        sync.Mutex
	listeners []ReloadFunc
}

// NewWatcher watches path. The parent directory is watched so that editors
// that replace the file via rename are still observed.
func NewWatcher(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     filepath.Clean(ExpandHome(path)),
		fsw:      fsw,
		debounce: 300 * time.Millisecond,
	}, nil
}

// Subscribe registers fn to run after every successful reload.
func (w *Watcher) Subscribe(fn ReloadFunc) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		w.fsw.Close()
		return err
	}
	defer w.fsw.Close()
	slog.Info("config watcher started", "path", w.path)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("config watcher stopped")
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Error("config reload failed", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	listeners := append([]ReloadFunc(nil), w.listeners...)
	w.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
	slog.Info("config reloaded", "path", w.path, "model", cfg.Provider.Model)
}
