// Package registry holds the daemon's authoritative in-memory view of all
// tracked operations. Every mutation is serialized behind one mutex, persisted
// to the snapshot file, and fanned out to broadcast subscribers as a delta
// event. Persistence and broadcast are best-effort: status tracking must never
// abort the real work it describes.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/patchforge/opsync/errors"
	"github.com/patchforge/opsync/logging"
	"github.com/patchforge/opsync/pkg/snapshot"
	"github.com/patchforge/opsync/pkg/status"
	"github.com/patchforge/opsync/version"
)

// Registry is the producer-side operation tracker.
type Registry struct {
	mu          sync.RWMutex
	state       *status.SystemState
	store       *snapshot.Store
	subscribers map[chan status.Event]struct{}
	logger      *logrus.Entry
	now         func() time.Time
}

// New creates a Registry that persists through the given snapshot store.
// The registry starts empty: a restarted daemon never resumes in-flight
// operations from a previous process instance. The initial state is persisted
// right away so consumers see the new instance's start time instead of
// records left behind by a crashed predecessor.
func New(store *snapshot.Store) *Registry {
	r := &Registry{
		state:       status.NewSystemState(),
		store:       store,
		subscribers: make(map[chan status.Event]struct{}),
		logger:      logging.NewLogger("registry"),
		now:         time.Now,
	}
	r.state.ProducerVersion = "opsyncd/" + version.Version
	r.state.ProducerStartedAt = r.now().UTC()
	r.touch()
	r.persistLocked()
	return r
}

// Start registers a new operation in the idle state. An existing operation
// with the same id is replaced outright; nothing from the prior run survives.
// Start never fails: this is fire-and-forget tracking, not a gate on the
// caller's real work.
func (r *Registry) Start(id, labelName, appName string) {
	r.mu.Lock()
	now := r.touch()
	r.state.Operations[id] = &status.Operation{
		ID:         id,
		LabelName:  labelName,
		AppName:    appName,
		Status:     status.StatusIdle,
		StartTime:  now,
		LastUpdate: now,
	}
	ev := status.UpdateEvent(r.state.Operations[id])
	r.persistLocked()
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"operation": id,
		"label":     labelName,
		"app":       appName,
	}).Info("Operation started")
	r.broadcast(ev)
}

// Update transitions an operation's status and phase fields.
//
// phaseProgress may be nil: the existing phase progress is kept when the phase
// name is unchanged, and reset to zero when the phase changes. overallProgress
// is clamped to [0,1] and never lowered; only re-registration resets it.
// Updates against terminal operations are warned no-ops.
func (r *Registry) Update(id string, st status.Status, phaseName, phaseDetail string, phaseProgress *float64, overallProgress float64) error {
	r.mu.Lock()
	op, err := r.mutableLocked(id)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if !op.Status.CanTransitionTo(st) {
		r.mu.Unlock()
		r.logger.WithFields(logrus.Fields{
			"operation": id,
			"from":      op.Status,
			"to":        st,
		}).Warn("Rejected status transition")
		return errors.New(errors.ErrCodeInvalidTransition,
			fmt.Sprintf("operation '%s' cannot move from %s to %s", id, op.Status, st))
	}

	op.Status = st
	if phaseName != op.Phase.Name {
		op.Phase.Progress = 0
	}
	op.Phase.Name = phaseName
	op.Phase.Detail = phaseDetail
	if phaseProgress != nil {
		op.Phase.Progress = status.ClampProgress(*phaseProgress)
	}
	if p := status.ClampProgress(overallProgress); p > op.OverallProgress {
		op.OverallProgress = p
	}
	if st != status.StatusError {
		op.ErrorMessage = ""
	}
	op.LastUpdate = r.touch()

	ev := status.UpdateEvent(op)
	r.persistLocked()
	r.mu.Unlock()

	r.broadcast(ev)
	return nil
}

// UpdateDownloadProgress reports byte-counted download progress. A total of
// zero or less means the size is unknown; the progress is left unchanged and
// only the detail text advances.
func (r *Registry) UpdateDownloadProgress(id string, downloadedBytes, totalBytes int64) error {
	return r.updateTransfer(id, status.StatusDownloading, "Downloading", downloadedBytes, totalBytes)
}

// UpdateUploadProgress reports byte-counted upload progress.
func (r *Registry) UpdateUploadProgress(id string, uploadedBytes, totalBytes int64) error {
	return r.updateTransfer(id, status.StatusUploading, "Uploading", uploadedBytes, totalBytes)
}

func (r *Registry) updateTransfer(id string, st status.Status, phaseName string, done, total int64) error {
	var phaseProgress *float64
	detail := fmt.Sprintf("%s transferred", formatBytes(done))
	if total > 0 {
		ratio := status.ClampProgress(float64(done) / float64(total))
		phaseProgress = &ratio
		detail = fmt.Sprintf("%s of %s", formatBytes(done), formatBytes(total))
	}

	// Transfer reports drive phase progress only; overall progress stays
	// where the caller's explicit updates put it.
	return r.Update(id, st, phaseName, detail, phaseProgress, 0)
}

// Complete marks the operation finished with full progress.
func (r *Registry) Complete(id string) error {
	full := 1.0
	return r.Update(id, status.StatusCompleted, "Completed", "", &full, 1.0)
}

// Fail marks the operation failed and records the message.
func (r *Registry) Fail(id, errorMessage string) error {
	r.mu.Lock()
	op, err := r.mutableLocked(id)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	op.Status = status.StatusError
	op.ErrorMessage = errorMessage
	op.LastUpdate = r.touch()

	ev := status.UpdateEvent(op)
	r.persistLocked()
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"operation": id,
		"error":     errorMessage,
	}).Warn("Operation failed")
	r.broadcast(ev)
	return nil
}

// Cancel marks the operation cancelled.
func (r *Registry) Cancel(id string) error {
	return r.Update(id, status.StatusCancelled, "Cancelled", "", nil, 0)
}

// Remove deletes the record entirely and emits a removal event so consumers
// evict it immediately instead of waiting for the next snapshot.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	if _, ok := r.state.Operations[id]; !ok {
		r.mu.Unlock()
		return errors.OperationNotFound(id)
	}
	delete(r.state.Operations, id)
	r.touch()
	r.persistLocked()
	r.mu.Unlock()

	r.logger.WithField("operation", id).Info("Operation removed")
	r.broadcast(status.RemovalEvent(id))
	return nil
}

// Operation returns a copy of one operation.
func (r *Registry) Operation(id string) (*status.Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.state.Operations[id]
	if !ok {
		return nil, errors.OperationNotFound(id)
	}
	return op.Clone(), nil
}

// Snapshot returns a deep copy of the full system state.
func (r *Registry) Snapshot() *status.SystemState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}

// Subscribe registers a buffered channel receiving every broadcast event.
func (r *Registry) Subscribe() chan status.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan status.Event, 100)
	r.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (r *Registry) Unsubscribe(ch chan status.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subscribers[ch]; ok {
		delete(r.subscribers, ch)
		close(ch)
	}
}

// mutableLocked returns the operation if it may still be mutated.
func (r *Registry) mutableLocked(id string) (*status.Operation, error) {
	op, ok := r.state.Operations[id]
	if !ok {
		r.logger.WithField("operation", id).Warn("Update for unknown operation")
		return nil, errors.OperationNotFound(id)
	}
	if op.Status.IsTerminal() {
		r.logger.WithFields(logrus.Fields{
			"operation": id,
			"status":    op.Status,
		}).Warn("Update for terminal operation ignored")
		return nil, errors.OperationTerminal(id, string(op.Status))
	}
	return op, nil
}

// touch advances the state's lastUpdate, bumping by a nanosecond when the
// clock has not moved so the value stays strictly monotonic.
func (r *Registry) touch() time.Time {
	now := r.now().UTC()
	if !now.After(r.state.LastUpdate) {
		now = r.state.LastUpdate.Add(time.Nanosecond)
	}
	r.state.LastUpdate = now
	return now
}

// persistLocked writes the snapshot while still holding the mutex, so the
// serialized state can never be a torn view of the map. Write failures are
// logged and swallowed: the in-memory state stays authoritative.
func (r *Registry) persistLocked() {
	if err := r.store.Save(r.state); err != nil {
		r.logger.WithError(err).Warn("Snapshot write failed, in-memory state remains authoritative")
	}
}

// broadcast delivers an event to all subscribers without blocking; a slow
// subscriber drops events and recovers from the snapshot.
func (r *Registry) broadcast(ev status.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for ch := range r.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
