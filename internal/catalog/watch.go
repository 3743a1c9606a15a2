package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce collapses bursts of writes from a single ingest into one reload.
const watchDebounce = 250 * time.Millisecond

// Watcher pre-warms a Cache when the SQLite database file changes on disk.
// Requests still check the record count themselves; the watcher only moves
// the reload off the request path.
type Watcher struct {
	path    string
	cache   *Cache
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher starts watching the directory holding the database at path.
// The directory is watched rather than the file so that journal and WAL files
// and replaced databases are seen too.
func NewWatcher(path string, cache *Cache, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return &Watcher{
		path:    path,
		cache:   cache,
		logger:  logger,
		watcher: fw,
	}, nil
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	base := filepath.Base(w.path)
	var refresh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			refresh = time.After(watchDebounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "path", w.path, "error", err)
		case <-refresh:
			refresh = nil
			if _, err := w.cache.Get(ctx); err != nil {
				w.logger.Warn("failed to refresh catalog after database change", "path", w.path, "error", err)
			}
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
