package client

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchforge/opsync/internal/daemon/registry"
	"github.com/patchforge/opsync/internal/daemon/server"
	"github.com/patchforge/opsync/pkg/snapshot"
	"github.com/patchforge/opsync/pkg/status"
	"github.com/patchforge/opsync/testutil"
)

// shortTempDir returns a temp dir with a short absolute path; unix socket
// paths have a tight length limit.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "opsync")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestBroadcastEndToEnd(t *testing.T) {
	testutil.WithTempHome(t)
	dir := shortTempDir(t)
	socketPath := filepath.Join(dir, "opsyncd.sock")
	snapshotPath := filepath.Join(dir, "operations.json")

	reg := registry.New(snapshot.New(snapshotPath))
	srv := server.New(reg)
	go func() { _ = srv.ListenAndServe(socketPath) }()
	defer srv.Shutdown(context.Background())

	api := NewAPI(socketPath)
	testutil.Eventually(t, 2*time.Second, api.IsRunning, "daemon socket did not come up")

	f := NewFacade(Options{
		SnapshotPath: snapshotPath,
		SocketPath:   socketPath,
		PollInterval: time.Hour, // out of the picture: broadcast must carry this test
		ReconnectMin: 20 * time.Millisecond,
		DisableWatch: true,
	})
	require.NoError(t, f.Start(context.Background()))
	defer f.Close()

	ctx := context.Background()
	require.NoError(t, api.StartOperation(ctx, "fx_1", "Firefox Install", "Firefox"))
	require.NoError(t, api.ReportProgress(ctx, "fx_1", status.StatusDownloading, "Downloading", "", nil, 0.4))

	testutil.Eventually(t, 2*time.Second, func() bool {
		op := f.GetOperation("fx_1")
		return op != nil && op.Status == status.StatusDownloading
	}, "broadcast did not deliver the update")

	op := f.GetOperation("fx_1")
	assert.Equal(t, "Firefox Install", op.LabelName)
	assert.InDelta(t, 0.4, op.OverallProgress, 1e-9)

	require.NoError(t, api.RemoveOperation(ctx, "fx_1"))
	testutil.Eventually(t, 2*time.Second, func() bool {
		return f.GetOperation("fx_1") == nil
	}, "removal event did not evict the operation")
}

func TestDaemonRestartSupersedesStaleRecords(t *testing.T) {
	testutil.WithTempHome(t)
	path := filepath.Join(t.TempDir(), "operations.json")

	r1 := registry.New(snapshot.New(path))
	r1.Start("fx_1", "Firefox Install", "Firefox")
	require.NoError(t, r1.Update("fx_1", status.StatusDownloading, "Downloading", "", nil, 0.4))

	f := NewFacade(Options{
		SnapshotPath:     path,
		DisableBroadcast: true,
		DisableWatch:     true,
		DisablePoll:      true,
	})
	require.True(t, f.Reload())
	op := f.GetOperation("fx_1")
	require.NotNil(t, op)
	require.Equal(t, status.StatusDownloading, op.Status)

	// The daemon crashes and a new instance comes up over the same path.
	// Constructing the registry must be enough for consumers to stop showing
	// the crashed instance's record as active.
	time.Sleep(time.Millisecond)
	_ = registry.New(snapshot.New(path))

	require.True(t, f.Reload(), "the restarted daemon's snapshot must supersede the cache")
	assert.Nil(t, f.GetOperation("fx_1"), "record from the crashed instance must not remain active")
}

func TestAPIErrorSurface(t *testing.T) {
	testutil.WithTempHome(t)
	dir := shortTempDir(t)
	socketPath := filepath.Join(dir, "opsyncd.sock")

	reg := registry.New(snapshot.New(filepath.Join(dir, "operations.json")))
	srv := server.New(reg)
	go func() { _ = srv.ListenAndServe(socketPath) }()
	defer srv.Shutdown(context.Background())

	api := NewAPI(socketPath)
	testutil.Eventually(t, 2*time.Second, api.IsRunning, "daemon socket did not come up")

	ctx := context.Background()
	_, err := api.Operation(ctx, "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPERATION_NOT_FOUND")

	require.NoError(t, api.StartOperation(ctx, "fx_1", "Firefox Install", "Firefox"))
	require.NoError(t, api.CompleteOperation(ctx, "fx_1"))
	err = api.ReportProgress(ctx, "fx_1", status.StatusDownloading, "Downloading", "", nil, 0.1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPERATION_TERMINAL")
}

func TestAPIDaemonNotRunning(t *testing.T) {
	testutil.WithTempHome(t)
	api := NewAPI(filepath.Join(shortTempDir(t), "missing.sock"))
	assert.False(t, api.IsRunning())

	_, err := api.State(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DAEMON_NOT_RUNNING")
}
