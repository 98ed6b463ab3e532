package errors

import (
	"fmt"
	"testing"
)

func TestOpsyncError(t *testing.T) {
	err := New(ErrCodeOperationNotFound, "operation not found")
	if err.Code != ErrCodeOperationNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeOperationNotFound, err.Code)
	}

	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeSnapshotWrite, "snapshot write failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	if !Is(wrapped, ErrCodeSnapshotWrite) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeOperationNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	detailed := err.WithDetail("operationId", "fx_1").WithDetail("attempt", 2)
	if detailed.Details["operationId"] != "fx_1" {
		t.Error("WithDetail should add details")
	}
}

func TestErrorConstructors(t *testing.T) {
	err := OperationNotFound("fx_1")
	if err.Code != ErrCodeOperationNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeOperationNotFound, err.Code)
	}
	if err.Details["operationId"] != "fx_1" {
		t.Error("OperationNotFound should include operationId detail")
	}

	term := OperationTerminal("fx_1", "completed")
	if term.Code != ErrCodeOperationTerminal {
		t.Errorf("expected code %s, got %s", ErrCodeOperationTerminal, term.Code)
	}
	if term.Details["status"] != "completed" {
		t.Error("OperationTerminal should include status detail")
	}

	running := DaemonAlreadyRunning(4242)
	if running.Details["pid"] != 4242 {
		t.Error("DaemonAlreadyRunning should include pid detail")
	}
}

func TestGetCode(t *testing.T) {
	if GetCode(nil) != "" {
		t.Error("GetCode(nil) should be empty")
	}

	err := SnapshotCorrupt("/tmp/operations.json", fmt.Errorf("unexpected EOF"))
	if GetCode(err) != ErrCodeSnapshotDecode {
		t.Errorf("expected %s, got %s", ErrCodeSnapshotDecode, GetCode(err))
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if GetCode(wrapped) != ErrCodeSnapshotDecode {
		t.Error("GetCode should unwrap nested errors")
	}
}
