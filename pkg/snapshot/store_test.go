package snapshot

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opsyncerrors "github.com/patchforge/opsync/errors"
	"github.com/patchforge/opsync/pkg/status"
)

func sampleState(t *testing.T) *status.SystemState {
	t.Helper()
	st := status.NewSystemState()
	st.LastUpdate = time.Now().UTC()
	st.ProducerVersion = "opsyncd/0.0.0-test"
	st.Operations["fx_1"] = &status.Operation{
		ID:              "fx_1",
		LabelName:       "Firefox Install",
		AppName:         "Firefox",
		Status:          status.StatusDownloading,
		Phase:           status.Phase{Name: "Downloading", Progress: 0.25},
		OverallProgress: 0.1,
		StartTime:       time.Now().UTC().Add(-time.Minute),
		LastUpdate:      st.LastUpdate,
	}
	return st
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "operations.json")
	store := New(path)

	st := sampleState(t)
	require.NoError(t, store.Save(st))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded.Operations, 1)
	op := loaded.Operations["fx_1"]
	require.NotNil(t, op)
	assert.Equal(t, status.StatusDownloading, op.Status)
	assert.InDelta(t, 0.25, op.Phase.Progress, 1e-9)
	assert.Equal(t, "opsyncd/0.0.0-test", loaded.ProducerVersion)
}

func TestSaveIsWorldReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operations.json")
	store := New(path)
	require.NoError(t, store.Save(sampleState(t)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := New(filepath.Join(dir, "operations.json"))
	require.NoError(t, store.Save(sampleState(t)))
	require.NoError(t, store.Save(sampleState(t)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "operations.json", entries[0].Name())
}

func TestLoadMissingFile(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "operations.json"))

	st, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Empty(t, st.Operations)
}

func TestLoadCorruptFallsBackToLastGood(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operations.json")
	store := New(path)

	require.NoError(t, store.Save(sampleState(t)))
	_, err := store.Load()
	require.NoError(t, err)

	// Simulate a torn or garbage write by another party.
	require.NoError(t, os.WriteFile(path, []byte(`{"operations": {"fx_1"`), 0644))

	st, err := store.Load()
	assert.Equal(t, opsyncerrors.ErrCodeSnapshotDecode, opsyncerrors.GetCode(err))
	require.NotNil(t, st)
	require.Len(t, st.Operations, 1)
	assert.Equal(t, status.StatusDownloading, st.Operations["fx_1"].Status)
}

func TestLoadCorruptWithoutHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operations.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))

	st, err := New(path).Load()
	assert.Error(t, err)
	require.NotNil(t, st)
	assert.Empty(t, st.Operations)
}

func TestConcurrentLoadAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operations.json")
	store := New(path)
	require.NoError(t, store.Save(sampleState(t)))

	// Poll, watch, and broadcast reloads all share one store instance while
	// the writer keeps replacing the file; run under -race.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = store.Save(sampleState(t))
		}
	}()
	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				st, err := store.Load()
				assert.NoError(t, err)
				assert.NotNil(t, st)
			}
		}()
	}
	wg.Wait()
}

func TestLoadNullOperations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operations.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"operations": null, "lastUpdate": "2026-03-14T09:00:00Z"}`), 0644))

	st, err := New(path).Load()
	require.NoError(t, err)
	require.NotNil(t, st.Operations)
}
