// Package watcher implements the drop-directory ingestion source. New
// or rewritten files in the watched directory settle briefly and are
// then handed to the ingest callback, so a file still being copied in
// is not picked up half-written.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tutorstack/docproc/internal/logger"
)

// DefaultSettle is how long a file must stay quiet before ingestion.
const DefaultSettle = 500 * time.Millisecond

// Handler receives the path of a settled file.
type Handler func(ctx context.Context, path string) error

// Watcher observes one directory for dropped files.
type Watcher struct {
	dir     string
	settle  time.Duration
	handler Handler

	mu      sync.Mutex
	fs      *fsnotify.Watcher
	pending map[string]*time.Timer
	closed  bool

	wg sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettle overrides the quiet period before a file is ingested.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// New creates a watcher for dir. The handler runs once per settled
// file; its error is logged, not propagated, so one bad file cannot
// stop the watch loop.
func New(dir string, handler Handler, opts ...Option) *Watcher {
	w := &Watcher{
		dir:     dir,
		settle:  DefaultSettle,
		handler: handler,
		pending: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It returns once the watch is established; the
// event loop runs until the context is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch directory: %s is not a directory", w.dir)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("watcher is closed")
	}
	if w.fs != nil {
		w.mu.Unlock()
		return fmt.Errorf("watcher already started")
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := fs.Add(w.dir); err != nil {
		fs.Close()
		w.mu.Unlock()
		return fmt.Errorf("adding watch for %s: %w", w.dir, err)
	}
	w.fs = fs
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop(ctx, fs)

	logger.Info("watching %s for dropped files", w.dir)
	return nil
}

// Close stops the watcher and cancels pending ingestions. Idempotent.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	fs := w.fs
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	var err error
	if fs != nil {
		err = fs.Close()
	}
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context, fs *fsnotify.Watcher) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fs.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
				w.schedule(ctx, event.Name)
			}
		case err, ok := <-fs.Errors:
			if !ok {
				return
			}
			logger.Error("watch error: %v", err)
		}
	}
}

// schedule (re)arms the settle timer for a path. Repeated writes keep
// pushing ingestion back until the file goes quiet.
func (w *Watcher) schedule(ctx context.Context, path string) {
	if isHidden(path) {
		return
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.ingest(ctx, path)
	})
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	w.mu.Lock()
	delete(w.pending, path)
	closed := w.closed
	w.mu.Unlock()
	if closed || ctx.Err() != nil {
		return
	}

	logger.Debug("file settled: %s", path)
	if err := w.handler(ctx, path); err != nil {
		logger.Error("ingesting %s: %v", path, err)
	}
}

// isHidden reports whether the file name starts with a dot.
func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
