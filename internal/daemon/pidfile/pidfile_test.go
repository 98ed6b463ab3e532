package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opsyncerrors "github.com/patchforge/opsync/errors"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "opsyncd.pid")

	require.NoError(t, Acquire(path))

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	running, pid, err := IsRunning(path)
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, Release(path))
	running, _, err = IsRunning(path)
	require.NoError(t, err)
	assert.False(t, running)
}

func TestAcquireRejectsLivePid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opsyncd.pid")
	require.NoError(t, Acquire(path))

	err := Acquire(path)
	require.Error(t, err)
	assert.Equal(t, opsyncerrors.ErrCodeDaemonAlreadyRunning, opsyncerrors.GetCode(err))
}

func TestAcquireCleansStalePid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opsyncd.pid")

	// A PID far above any plausible live process.
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(1<<22-1)), 0644))

	require.NoError(t, Acquire(path))
	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}
