package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot reloads an optional YAML overlay file, calling onChange with
// the freshly merged Config each time the file is written. base is the
// env-derived Config that every reload is merged on top of; the overlay
// never has to restate settings it isn't changing.
type Watcher struct {
	path     string
	base     Config
	onChange func(Config)
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
}

// NewWatcher starts watching path for writes. If path is empty, it returns
// a Watcher whose Run is a no-op: env-only deployments don't pay for an
// fsnotify watch they'll never use.
func NewWatcher(path string, base Config, onChange func(Config), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{path: path, base: base, onChange: onChange, logger: logger}
	if path == "" {
		return w, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	w.watcher = fw
	return w, nil
}

// Run blocks, applying overlay reloads until ctx is canceled. Call it in its
// own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	if w.watcher == nil {
		return
	}
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Editors often replace a file rather than writing in place,
			// which surfaces as Remove followed by Create; re-add the
			// watch so we don't silently stop reloading after one edit.
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				if err := w.watcher.Add(w.path); err != nil {
					w.logger.Error("config: re-watch overlay failed", "path", w.path, "error", err)
					continue
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config: watch error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload() {
	merged, err := LoadOverlay(w.base, w.path)
	if err != nil {
		w.logger.Error("config: overlay reload failed, keeping previous config", "path", w.path, "error", err)
		return
	}
	w.logger.Info("config: overlay reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(merged)
	}
}
