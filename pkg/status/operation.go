// Package status defines the shared data model for tracked operations:
// the operation record itself, its lifecycle state machine, the serializable
// system snapshot, and the broadcast event format. Both the daemon (producer)
// and any client (consumer) speak this vocabulary.
package status

import (
	"time"
)

// Status is the lifecycle state of an operation.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusUploading   Status = "uploading"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

// IsActive reports whether the operation is currently doing work.
func (s Status) IsActive() bool {
	switch s {
	case StatusDownloading, StatusProcessing, StatusUploading:
		return true
	}
	return false
}

// IsTerminal reports whether the status accepts no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusDownloading, StatusProcessing, StatusUploading,
		StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine permits moving from s to
// next. Terminal states accept nothing; nothing may return to idle. A direct
// idle -> completed jump is allowed for trivially fast operations.
func (s Status) CanTransitionTo(next Status) bool {
	if !next.Valid() || s.IsTerminal() {
		return false
	}
	return next != StatusIdle
}

// Phase describes the sub-status within the current lifecycle state.
//
// Phase progress is independent of the operation's overall progress: it
// resets to zero whenever the phase name changes, unless the caller supplies
// a value with the update.
type Phase struct {
	Name     string  `json:"name"`
	Progress float64 `json:"progress"`
	Detail   string  `json:"detail,omitempty"`
}

// Operation is one tracked unit of long-running daemon work, typically a
// single app install or update cycle (download, package, upload).
//
// ID, LabelName, AppName, and StartTime are immutable after creation.
// ErrorMessage is populated only while Status is StatusError.
type Operation struct {
	ID              string  `json:"id"`
	LabelName       string  `json:"labelName"`
	AppName         string  `json:"appName"`
	Status          Status  `json:"status"`
	Phase           Phase   `json:"phase"`
	OverallProgress float64 `json:"overallProgress"`

	StartTime  time.Time `json:"startTime"`
	LastUpdate time.Time `json:"lastUpdate"`

	ErrorMessage string `json:"errorMessage,omitempty"`

	// EstimatedSecondsRemaining is advisory only and may be absent.
	EstimatedSecondsRemaining *float64 `json:"estimatedTimeRemaining,omitempty"`
}

// Clone returns a deep copy of the operation.
func (o *Operation) Clone() *Operation {
	if o == nil {
		return nil
	}
	c := *o
	if o.EstimatedSecondsRemaining != nil {
		eta := *o.EstimatedSecondsRemaining
		c.EstimatedSecondsRemaining = &eta
	}
	return &c
}

// ClampProgress bounds a progress value to [0, 1].
func ClampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
