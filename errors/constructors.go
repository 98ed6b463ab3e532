package errors

import "fmt"

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *OpsyncError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *OpsyncError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// OperationNotFound creates an unknown-operation error
func OperationNotFound(id string) *OpsyncError {
	return New(ErrCodeOperationNotFound, fmt.Sprintf("operation '%s' not found", id)).
		WithDetail("operationId", id)
}

// OperationTerminal signals an update attempted against a finished operation
func OperationTerminal(id, status string) *OpsyncError {
	return New(ErrCodeOperationTerminal,
		fmt.Sprintf("operation '%s' is already %s and accepts no further updates", id, status)).
		WithDetail("operationId", id).
		WithDetail("status", status)
}

// SnapshotWriteFailed wraps a snapshot persistence failure
func SnapshotWriteFailed(path string, err error) *OpsyncError {
	return Wrap(err, ErrCodeSnapshotWrite, fmt.Sprintf("failed to write snapshot: %s", path)).
		WithDetail("path", path)
}

// SnapshotCorrupt wraps a snapshot decode failure
func SnapshotCorrupt(path string, err error) *OpsyncError {
	return Wrap(err, ErrCodeSnapshotDecode, fmt.Sprintf("snapshot is corrupt or partially written: %s", path)).
		WithDetail("path", path)
}

// DaemonNotRunning signals that the daemon socket is not answering
func DaemonNotRunning(socket string) *OpsyncError {
	return New(ErrCodeDaemonNotRunning, "opsyncd is not running").
		WithDetail("socket", socket)
}

// DaemonAlreadyRunning signals a second daemon start attempt
func DaemonAlreadyRunning(pid int) *OpsyncError {
	return New(ErrCodeDaemonAlreadyRunning, fmt.Sprintf("opsyncd already running with PID %d", pid)).
		WithDetail("pid", pid)
}

// InvalidInput creates a request validation error
func InvalidInput(reason string) *OpsyncError {
	return New(ErrCodeInvalidInput, reason)
}
