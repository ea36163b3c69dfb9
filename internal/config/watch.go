package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// SyncWatcher watches the directory holding a sync file (spec.md §6) and
// re-reads it on write, grounded on 99souls-ariadne's HotReloadSystem:
// watch the directory rather than the file directly, since editors and
// atomic renames replace the inode rather than writing in place.
type SyncWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewSyncWatcher opens an fsnotify watch on the directory containing path.
func NewSyncWatcher(path string, logger *slog.Logger) (*SyncWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncWatcher{path: path, watcher: w, logger: logger.With("component", "sync_watcher")}, nil
}

// Watch runs until ctx is done, calling onChange with the freshly parsed
// sync mapping every time the watched file is written. Errors from a
// reload attempt are logged, not returned, so one bad edit never kills
// the watcher.
func (w *SyncWatcher) Watch(ctx context.Context, onChange func(map[string][]string)) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			sync, err := LoadSyncFile(w.path)
			if err != nil {
				w.logger.Warn("sync file reload failed", "path", w.path, "error", err)
				continue
			}
			onChange(sync)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("sync file watch error", "error", err)
		}
	}
}
