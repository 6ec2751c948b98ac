// Package watcher reports debounced source changes for watch builds.
package watcher

import (
	"context"
	"fmt"
	"iter"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.trai.ch/kiln/internal/adapters/fs"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// DefaultDebounceWindow is the default time window for debouncing file events.
const DefaultDebounceWindow = 100 * time.Millisecond

// Watcher implements ports.Watcher using fsnotify.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	walker    *fs.Walker
	logger    ports.Logger
	debouncer *Debouncer
	ignores   []string

	batches  chan []string
	done     chan struct{}
	stopOnce sync.Once
}

var _ ports.Watcher = (*Watcher)(nil)

// NewWatcher creates a watcher. Directories whose base name matches one of
// ignores are never watched. No file handles are opened until Start.
func NewWatcher(walker *fs.Walker, logger ports.Logger, window time.Duration, ignores ...string) *Watcher {
	w := &Watcher{
		walker:  walker,
		logger:  logger,
		ignores: ignores,
		batches: make(chan []string),
		done:    make(chan struct{}),
	}
	w.debouncer = NewDebouncer(window, w.deliver)
	return w
}

// Start watches every directory below roots and begins processing events.
func (w *Watcher) Start(ctx context.Context, roots []string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return zerr.Wrap(err, "failed to create file watcher")
	}
	w.fsWatcher = fsw

	for _, root := range roots {
		for dir := range w.walker.WalkDirs(root, w.ignores) {
			if err := w.fsWatcher.Add(dir); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to watch directory"), "path", dir)
			}
		}
	}

	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and releases all resources.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		if w.fsWatcher != nil {
			err = w.fsWatcher.Close()
		}
	})
	return err
}

// Events yields debounced batches of changed paths until the watcher stops.
func (w *Watcher) Events() iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		for {
			select {
			case batch := <-w.batches:
				if !yield(batch) {
					return
				}
			case <-w.done:
				return
			}
		}
	}
}

func (w *Watcher) deliver(paths []string) {
	select {
	case w.batches <- paths:
	case <-w.done:
	}
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			ev := convertEvent(event)
			if ev == nil {
				continue
			}
			w.debouncer.Add(ev.Path)

			if ev.Operation == ports.OpCreate {
				w.watchNewDirectory(ev.Path)
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn(fmt.Sprintf("watcher: %v", err))
			}
		}
	}
}

func (w *Watcher) watchNewDirectory(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	for dir := range w.walker.WalkDirs(path, w.ignores) {
		_ = w.fsWatcher.Add(dir)
	}
}

// convertEvent maps an fsnotify event to a WatchEvent. Attribute-only
// changes yield nil.
func convertEvent(event fsnotify.Event) *ports.WatchEvent {
	switch {
	case event.Op.Has(fsnotify.Write):
		return &ports.WatchEvent{Path: event.Name, Operation: ports.OpWrite}
	case event.Op.Has(fsnotify.Create):
		return &ports.WatchEvent{Path: event.Name, Operation: ports.OpCreate}
	case event.Op.Has(fsnotify.Remove):
		return &ports.WatchEvent{Path: event.Name, Operation: ports.OpRemove}
	case event.Op.Has(fsnotify.Rename):
		return &ports.WatchEvent{Path: event.Name, Operation: ports.OpRename}
	default:
		return nil
	}
}
