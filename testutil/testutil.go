// Package testutil provides shared helpers for tests.
package testutil

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/patchforge/opsync/pkg/paths"
	"github.com/patchforge/opsync/pkg/snapshot"
	"github.com/patchforge/opsync/pkg/status"
)

// WithTempHome points OPSYNC_HOME at a temp directory for the duration of the
// test, isolating config, state, and runtime paths from the host.
func WithTempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("OPSYNC_HOME", home)
	return home
}

// TempSnapshotStore returns a snapshot store rooted in a temp directory.
func TempSnapshotStore(t *testing.T) *snapshot.Store {
	t.Helper()
	return snapshot.New(filepath.Join(t.TempDir(), "operations.json"))
}

// WriteSnapshot serializes the state to the store and fails the test on error.
func WriteSnapshot(t *testing.T, store *snapshot.Store, st *status.SystemState) {
	t.Helper()
	require.NoError(t, store.Save(st))
}

// WriteConfig writes raw YAML as the opsync.yml inside the temp home set by
// WithTempHome.
func WriteConfig(t *testing.T, content string) string {
	t.Helper()
	dir := paths.ConfigDir()
	require.NotEmpty(t, dir)
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, "opsync.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// Eventually polls the condition until it holds or the deadline passes.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

const letters = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomString returns a random lowercase alphanumeric string of length n.
func RandomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
