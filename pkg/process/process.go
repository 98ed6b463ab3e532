// Package process contains small helpers for inspecting other processes.
package process

import (
	"os"
	"syscall"
)

// IsAlive checks whether a process with the given PID is still running.
// Works on Unix-like systems (macOS, Linux) by sending signal 0, which
// probes for existence without delivering anything.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// nil error: alive and signalable. EPERM: alive but owned by someone
	// else (e.g. the privileged daemon probed from a user session).
	err = proc.Signal(syscall.Signal(0))
	return err == nil || os.IsPermission(err)
}
