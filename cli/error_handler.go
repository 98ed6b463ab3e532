package cli

import (
	"fmt"
	"os"

	"github.com/patchforge/opsync/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
	}
}

// Handle provides user-friendly error messages based on error type
func (h *ErrorHandler) Handle(err error) error {
	switch errors.GetCode(err) {
	case errors.ErrCodeDaemonNotRunning:
		fmt.Fprintf(os.Stderr, "❌ opsyncd is not running. Start it with 'opsync daemon start'.\n")
		return err

	case errors.ErrCodeDaemonAlreadyRunning:
		if opErr, ok := err.(*errors.OpsyncError); ok {
			fmt.Fprintf(os.Stderr, "❌ opsyncd is already running (PID %v)\n", opErr.Details["pid"])
			fmt.Fprintf(os.Stderr, "Stop it first with 'opsync daemon stop'.\n")
		}
		return err

	case errors.ErrCodeOperationNotFound:
		if opErr, ok := err.(*errors.OpsyncError); ok {
			fmt.Fprintf(os.Stderr, "❌ No operation with id '%v'\n", opErr.Details["operationId"])
			fmt.Fprintf(os.Stderr, "Run 'opsync ops list' to see tracked operations.\n")
		}
		return err

	case errors.ErrCodeOperationTerminal:
		if opErr, ok := err.(*errors.OpsyncError); ok {
			fmt.Fprintf(os.Stderr, "❌ Operation '%v' is already %v and accepts no further updates\n",
				opErr.Details["operationId"], opErr.Details["status"])
		}
		return err

	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(os.Stderr, "❌ Configuration file not found.\n")
		return err

	default:
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)

		if h.Verbose {
			if opErr, ok := err.(*errors.OpsyncError); ok {
				fmt.Fprintf(os.Stderr, "\nError details:\n%s\n", opErr.ToJSON())
			}
		}
		return err
	}
}
