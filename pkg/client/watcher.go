package client

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/patchforge/opsync/logging"
)

// snapshotWatcher watches the snapshot file for writes and triggers a reload
// callback. It watches the parent directory rather than the file itself: the
// daemon replaces the file on every write (atomic rename), which would orphan
// a watch installed on the file's inode.
type snapshotWatcher struct {
	watcher    *fsnotify.Watcher
	path       string
	debounce   time.Duration
	lastChange time.Time
	mu         sync.Mutex
	logger     *logrus.Entry
	onChange   func()
}

// newSnapshotWatcher creates a watcher for the given snapshot path. It fails
// if the parent directory does not exist yet; the caller falls back to polling
// alone in that case.
func newSnapshotWatcher(path string, debounce time.Duration, onChange func()) (*snapshotWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	return &snapshotWatcher{
		watcher:  watcher,
		path:     path,
		debounce: debounce,
		logger:   logging.NewLogger("snapshot-watcher"),
		onChange: onChange,
	}, nil
}

// Start begins watching. It blocks until the context is cancelled.
func (w *snapshotWatcher) Start(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.handleChange()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Watcher error")
		case <-ctx.Done():
			w.watcher.Close()
			return
		}
	}
}

// handleChange fires the reload callback, coalescing rapid writes. Trailing
// writes suppressed by the debounce window are picked up by the poll fallback.
func (w *snapshotWatcher) handleChange() {
	w.mu.Lock()
	elapsed := time.Since(w.lastChange)
	if elapsed < w.debounce {
		w.mu.Unlock()
		return
	}
	w.lastChange = time.Now()
	w.mu.Unlock()

	w.logger.WithField("path", w.path).Debug("Snapshot changed")
	w.onChange()
}

// Close stops the watcher and releases resources.
func (w *snapshotWatcher) Close() error {
	return w.watcher.Close()
}
