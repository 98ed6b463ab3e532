// Package snapshot persists the operation state to a well-known JSON file
// shared across the process boundary. The daemon writes it on every mutation;
// consumers read it to bootstrap and to reconcile.
package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/patchforge/opsync/errors"
	"github.com/patchforge/opsync/logging"
	"github.com/patchforge/opsync/pkg/status"
)

// Store reads and writes the snapshot file. Writes are atomic
// (write-to-temp-then-rename) so a reader in another process never observes
// a half-written file. Each Store keeps the last successfully decoded state
// so a corrupt file degrades to stale data instead of an empty view.
//
// Store is safe for concurrent use: a consumer's poll, watch, and broadcast
// channels all funnel reloads through the same instance.
type Store struct {
	path   string
	logger *logrus.Entry

	mu       sync.Mutex
	lastGood *status.SystemState
}

// New creates a Store for the given snapshot path.
func New(path string) *Store {
	return &Store{
		path:   path,
		logger: logging.NewLogger("snapshot"),
	}
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return s.path
}

// Save atomically writes the state to the snapshot file. The file is made
// world-readable: the daemon runs privileged but consumers do not.
func (s *Store) Save(st *status.SystemState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSnapshotWrite, "failed to encode snapshot")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.SnapshotWriteFailed(s.path, err)
	}

	// Temp file in the same directory so the rename stays on one filesystem.
	tmp, err := os.CreateTemp(dir, ".operations-*.json")
	if err != nil {
		return errors.SnapshotWriteFailed(s.path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.SnapshotWriteFailed(s.path, err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.SnapshotWriteFailed(s.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.SnapshotWriteFailed(s.path, err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.SnapshotWriteFailed(s.path, err)
	}

	s.lastGood = st.Clone()
	return nil
}

// Load reads the snapshot file and returns the decoded state.
//
// A missing file yields an empty state, not an error: the daemon may simply
// not have written yet. Corrupt or partial content yields the last
// successfully decoded state when available, else an empty state; the decode
// failure is logged, never propagated, so the reload path cannot crash.
func (s *Store) Load() (*status.SystemState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return status.NewSystemState(), nil
		}
		s.logger.WithError(err).WithField("path", s.path).Warn("Snapshot read failed")
		return s.fallbackLocked(), errors.Wrap(err, errors.ErrCodeSnapshotRead, "failed to read snapshot")
	}

	var st status.SystemState
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.WithError(err).WithField("path", s.path).Warn("Snapshot is corrupt, using last-known-good state")
		return s.fallbackLocked(), errors.SnapshotCorrupt(s.path, err)
	}
	if st.Operations == nil {
		st.Operations = make(map[string]*status.Operation)
	}

	s.lastGood = st.Clone()
	return &st, nil
}

func (s *Store) fallbackLocked() *status.SystemState {
	if s.lastGood != nil {
		return s.lastGood.Clone()
	}
	return status.NewSystemState()
}
