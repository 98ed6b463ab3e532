// Package errors provides structured, coded errors shared across opsync.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// Snapshot errors
	ErrCodeSnapshotWrite  ErrorCode = "SNAPSHOT_WRITE"
	ErrCodeSnapshotRead   ErrorCode = "SNAPSHOT_READ"
	ErrCodeSnapshotDecode ErrorCode = "SNAPSHOT_DECODE"

	// Operation protocol errors
	ErrCodeOperationNotFound ErrorCode = "OPERATION_NOT_FOUND"
	ErrCodeOperationTerminal ErrorCode = "OPERATION_TERMINAL"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// Daemon errors
	ErrCodeDaemonNotRunning     ErrorCode = "DAEMON_NOT_RUNNING"
	ErrCodeDaemonAlreadyRunning ErrorCode = "DAEMON_ALREADY_RUNNING"
	ErrCodeSocketListen         ErrorCode = "SOCKET_LISTEN"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// OpsyncError represents a structured error with context
type OpsyncError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *OpsyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *OpsyncError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *OpsyncError) WithDetail(key string, value interface{}) *OpsyncError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *OpsyncError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new OpsyncError
func New(code ErrorCode, message string) *OpsyncError {
	return &OpsyncError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an OpsyncError
func Wrap(err error, code ErrorCode, message string) *OpsyncError {
	return &OpsyncError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error carries a specific code
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	opErr, ok := err.(*OpsyncError)
	if !ok {
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	return opErr.Code == code
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	opErr, ok := err.(*OpsyncError)
	if !ok {
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return opErr.Code
}
