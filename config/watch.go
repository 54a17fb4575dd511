package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

const reloadDebounce = 200 * time.Millisecond

// Watcher reloads an env file and rotates the access token when it changes.
type Watcher struct {
	path     string
	cfg      *Config
	logger   *slog.Logger
	onRotate func()
	w        *fsnotify.Watcher
}

// NewWatcher watches path for changes. onRotate, if set, runs after a new
// token has been stored in cfg.
func NewWatcher(path string, cfg *Config, onRotate func()) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// editors replace files on save, so watch the directory
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		cfg:      cfg,
		logger:   cfg.Log(),
		onRotate: onRotate,
		w:        w,
	}, nil
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	debounce := time.NewTimer(0)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				debounce.Reset(reloadDebounce)
			}

		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.logger.Error("Env file watcher error", "error", err)

		case <-debounce.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	vals, err := godotenv.Read(w.path)
	if err != nil {
		w.logger.Error("Failed to reload env file", "path", w.path, "error", err)
		return
	}

	token := vals["LONGPORT_ACCESS_TOKEN"]
	if token == "" || token == w.cfg.Token() {
		return
	}
	w.cfg.SetAccessToken(token)
	w.logger.Info("Access token rotated", "path", w.path)
	if w.onRotate != nil {
		w.onRotate()
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.w.Close()
}
