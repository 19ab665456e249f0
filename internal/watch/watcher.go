// Package watch reports files in a directory tree once they stop changing.
// Newly created subdirectories are watched as they appear. Files already
// present when watching starts are not reported.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Minimum sweep interval, so a tiny settle delay cannot spin the loop.
const minSweepInterval = 10 * time.Millisecond

// Backoff after watcher errors (e.g. inotify queue overflow).
const (
	errInitBackoff = 100 * time.Millisecond
	errMaxBackoff  = 5 * time.Second
)

// Watcher observes a directory tree with fsnotify.
type Watcher struct {
	root   string
	fs     *fsnotify.Watcher
	logger *slog.Logger

	mu      sync.Mutex
	filter  *Filter
	settle  time.Duration
	pending map[string]time.Time // path -> last change

	nowFunc func() time.Time
}

// New watches root and every non-excluded directory below it.
func New(root string, settle time.Duration, ignorePatterns []string, logger *slog.Logger) (*Watcher, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolving %s: %w", root, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", root)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: creating watcher: %w", err)
	}

	w := &Watcher{
		root:    root,
		fs:      fw,
		logger:  logger,
		filter:  NewFilter(ignorePatterns),
		settle:  settle,
		pending: make(map[string]time.Time),
		nowFunc: time.Now,
	}

	if err := w.addTree(root, false); err != nil {
		fw.Close()
		return nil, err
	}

	return w, nil
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string { return w.root }

// Reconfigure swaps the ignore patterns and settle delay. Directories that
// are already watched stay watched.
func (w *Watcher) Reconfigure(settle time.Duration, ignorePatterns []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.settle = settle
	w.filter = NewFilter(ignorePatterns)
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// Run delivers settled file paths to out until ctx is done. It returns nil
// on cancellation and an error only when the fsnotify watcher fails for
// good.
func (w *Watcher) Run(ctx context.Context, out chan<- string) error {
	ticker := time.NewTicker(w.sweepInterval())
	defer ticker.Stop()

	errBackoff := errInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}

			w.handleEvent(ev)

			errBackoff = errInitBackoff

		case err, ok := <-w.fs.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}

			w.logger.Warn("filesystem watcher error",
				slog.String("error", err.Error()),
				slog.Duration("backoff", errBackoff),
			)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(errBackoff):
			}

			errBackoff = min(errBackoff*2, errMaxBackoff)

		case <-ticker.C:
			for _, path := range w.settled() {
				select {
				case out <- path:
				case <-ctx.Done():
					return nil
				}
			}

			ticker.Reset(w.sweepInterval())
		}
	}
}

func (w *Watcher) sweepInterval() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	return max(w.settle/2, minSweepInterval)
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	// Mode changes alone say nothing about content.
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			w.logger.Debug("stat failed for created path",
				slog.String("path", ev.Name), slog.String("error", err.Error()))

			return
		}

		if info.IsDir() {
			// Files can land in the directory before its watch is added.
			if err := w.addTree(ev.Name, true); err != nil {
				w.logger.Warn("watching new directory failed",
					slog.String("path", ev.Name), slog.String("error", err.Error()))
			}

			return
		}

		w.touch(ev.Name)

	case ev.Has(fsnotify.Write):
		w.touch(ev.Name)

	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.mu.Lock()
		delete(w.pending, ev.Name)
		w.mu.Unlock()
	}
}

func (w *Watcher) touch(path string) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.filter.Excluded(rel, false) {
		w.logger.Debug("ignoring excluded file", slog.String("path", rel))
		return
	}

	w.pending[path] = w.nowFunc()
}

// settled removes and returns pending paths that have been quiet for the
// settle delay and are still regular files.
func (w *Watcher) settled() []string {
	w.mu.Lock()

	now := w.nowFunc()

	var ready []string

	for path, last := range w.pending {
		if now.Sub(last) >= w.settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}

	w.mu.Unlock()

	out := ready[:0]

	for _, path := range ready {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		out = append(out, path)
	}

	return out
}

// addTree watches dir and every non-excluded directory below it. With
// touchFiles set, files found on the way are marked as changed.
func (w *Watcher) addTree(dir string, touchFiles bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Vanished between event and walk.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		if !d.IsDir() {
			if touchFiles && d.Type().IsRegular() {
				w.touch(path)
			}

			return nil
		}

		if rel, relErr := filepath.Rel(w.root, path); relErr == nil && rel != "." {
			w.mu.Lock()
			excluded := w.filter.Excluded(rel, true)
			w.mu.Unlock()

			if excluded {
				return filepath.SkipDir
			}
		}

		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch: adding %s: %w", path, err)
		}

		w.logger.Debug("watching directory", slog.String("path", path))

		return nil
	})
}
