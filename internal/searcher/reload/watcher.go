// Package reload watches a snapshot directory and reloads the serving index
// when another process writes a new snapshot into it.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	defaultDebounce = 500 * time.Millisecond
	artifactExt     = ".bm25"
)

// Reloader installs the persisted snapshot if it changed.
type Reloader interface {
	Reload(ctx context.Context) (bool, error)
}

// Watcher debounces artifact writes in one directory into Reload calls. A
// snapshot is several files, so a reload runs only once the directory has
// been quiet for the debounce interval.
type Watcher struct {
	dir      string
	reloader Reloader
	debounce time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long the directory must be quiet before a reload.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

func New(dir string, reloader Reloader, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		reloader: reloader,
		debounce: defaultDebounce,
		logger:   slog.Default().With("component", "snapshot-watcher", "dir", dir),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching and returns once the watch is in place. Events are
// handled in the background until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching for new snapshots", "debounce", w.debounce)
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	defer fw.Close()
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if isArtifactWrite(ev) {
				w.logger.Debug("artifact changed", "op", ev.Op.String(), "path", ev.Name)
				w.schedule(ctx)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// isArtifactWrite ignores temp files; DirStore renames them into place.
func isArtifactWrite(ev fsnotify.Event) bool {
	if !strings.HasSuffix(filepath.Base(ev.Name), artifactExt) {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.reload(ctx) })
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	changed, err := w.reloader.Reload(ctx)
	if err != nil {
		w.logger.Error("snapshot reload failed, keeping current index", "error", err)
		return
	}
	if changed {
		w.logger.Info("snapshot reloaded")
	}
}
