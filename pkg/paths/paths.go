// Package paths provides XDG-compliant path resolution for opsync.
//
// Resolution order:
// 1. OPSYNC_HOME (portable root) → $OPSYNC_HOME/{config,state,cache,run}
// 2. XDG env vars → $XDG_*_HOME/opsync
// 3. Platform defaults → ~/.config/opsync, ~/.local/state/opsync, etc.
//
// The snapshot file and the daemon socket both live under these directories,
// so pointing OPSYNC_HOME somewhere shared is how the privileged daemon and
// unprivileged consumers agree on a rendezvous location.
package paths

import (
	"os"
	"path/filepath"
)

func getConfigHome() string {
	if home := os.Getenv("OPSYNC_HOME"); home != "" {
		return filepath.Join(home, "config")
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return xdg
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config")
	}
	return ""
}

func getStateHome() string {
	if home := os.Getenv("OPSYNC_HOME"); home != "" {
		return filepath.Join(home, "state")
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return xdg
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state")
	}
	return ""
}

func getCacheHome() string {
	if home := os.Getenv("OPSYNC_HOME"); home != "" {
		return filepath.Join(home, "cache")
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return xdg
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".cache")
	}
	return ""
}

// ConfigDir returns the opsync configuration directory (opsync.yml lives here).
func ConfigDir() string {
	base := getConfigHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "opsync")
}

// StateDir returns the opsync state directory.
// Used for the operations snapshot, the pidfile, and logs.
func StateDir() string {
	base := getStateHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "opsync")
}

// CacheDir returns the opsync cache directory.
func CacheDir() string {
	base := getCacheHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "opsync")
}

// RuntimeDir returns the directory for sockets and pipes.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if home := os.Getenv("OPSYNC_HOME"); home != "" {
		return filepath.Join(home, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "opsync")
	}
	return StateDir()
}

// LogDir returns the directory component loggers write to.
func LogDir() string {
	state := StateDir()
	if state == "" {
		return ""
	}
	return filepath.Join(state, "logs")
}

// SocketPath returns the path to the opsyncd unix socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "opsyncd.sock")
}

// PidFilePath returns the path to the opsyncd PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "opsyncd.pid")
}

// SnapshotPath returns the well-known path of the operations snapshot file.
func SnapshotPath() string {
	return filepath.Join(StateDir(), "operations.json")
}

// EnsureDirs creates all opsync directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), StateDir(), CacheDir(), RuntimeDir(), LogDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
