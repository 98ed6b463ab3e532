package client

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/patchforge/opsync/config"
	"github.com/patchforge/opsync/logging"
	"github.com/patchforge/opsync/pkg/snapshot"
	"github.com/patchforge/opsync/pkg/status"
)

// abandonedMessage is surfaced on records left behind by a daemon restart.
const abandonedMessage = "abandoned by producer restart"

// Options configures a Facade's delivery channels.
type Options struct {
	SnapshotPath string
	SocketPath   string

	PollInterval  time.Duration
	WatchDebounce time.Duration
	ReconnectMin  time.Duration
	ReconnectMax  time.Duration

	// Individual channels can be turned off. The poll fallback should stay on
	// in production: it bounds staleness when the other two fail silently.
	DisableBroadcast bool
	DisableWatch     bool
	DisablePoll      bool
}

// OptionsFromConfig derives facade options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	min, max := cfg.Client.ReconnectBackoff()
	return Options{
		SnapshotPath:  cfg.ResolvedSnapshotPath(),
		SocketPath:    cfg.ResolvedSocketPath(),
		PollInterval:  cfg.Client.PollInterval(),
		WatchDebounce: cfg.Client.WatchDebounce(),
		ReconnectMin:  min,
		ReconnectMax:  max,
	}
}

// Facade is the consumer's reactive cached view of all tracked operations.
//
// Three independent sources feed it: broadcast deltas (lowest latency), the
// snapshot file watcher, and an unconditional poll ticker. All three funnel
// into one merge path guarded by a single mutex; merges are idempotent with
// respect to the snapshot's lastUpdate, so the sources can race freely.
type Facade struct {
	mu          sync.RWMutex
	opts        Options
	store       *snapshot.Store
	state       *status.SystemState
	subscribers map[chan struct{}]struct{}
	logger      *logrus.Entry

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFacade creates a facade. Call Start to begin receiving updates.
func NewFacade(opts Options) *Facade {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Facade{
		opts:        opts,
		store:       snapshot.New(opts.SnapshotPath),
		state:       status.NewSystemState(),
		subscribers: make(map[chan struct{}]struct{}),
		logger:      logging.NewLogger("facade"),
	}
}

// Start performs an initial load and launches the delivery channels.
func (f *Facade) Start(ctx context.Context) error {
	ctx, f.cancel = context.WithCancel(ctx)

	f.Reload()

	if !f.opts.DisablePoll {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.pollLoop(ctx)
		}()
	}

	if !f.opts.DisableWatch {
		w, err := newSnapshotWatcher(f.opts.SnapshotPath, f.opts.WatchDebounce, func() { f.Reload() })
		if err != nil {
			// Directory may not exist yet; polling alone still converges.
			f.logger.WithError(err).Warn("Snapshot watch unavailable, relying on poll fallback")
		} else {
			f.wg.Add(1)
			go func() {
				defer f.wg.Done()
				w.Start(ctx)
			}()
		}
	}

	if !f.opts.DisableBroadcast {
		stream := newEventStream(f.opts.SocketPath, f.opts.ReconnectMin, f.opts.ReconnectMax,
			f.applyEvent,
			func() { f.Reload() })
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			stream.Start(ctx)
		}()
	}

	return nil
}

// Close stops all delivery channels and waits for them to finish.
func (f *Facade) Close() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()

	f.mu.Lock()
	for ch := range f.subscribers {
		close(ch)
	}
	f.subscribers = make(map[chan struct{}]struct{})
	f.mu.Unlock()
}

// Reload loads the snapshot and merges it into the cached state. It reports
// whether the cache changed. Applying an older or identical snapshot is a
// no-op: state never regresses.
func (f *Facade) Reload() bool {
	st, err := f.store.Load()
	if err != nil {
		// The store already returned the best state it has (last-known-good
		// or empty) and logged the failure.
		f.logger.WithError(err).Debug("Snapshot reload degraded")
	}

	f.mu.Lock()
	if !st.LastUpdate.After(f.state.LastUpdate) {
		f.mu.Unlock()
		return false
	}
	markAbandoned(st)
	f.state = st
	f.mu.Unlock()

	f.notify()
	return true
}

// GetOperation returns the cached operation, or nil if unknown.
func (f *Facade) GetOperation(id string) *status.Operation {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.Operations[id].Clone()
}

// GetActiveOperations returns operations still doing work, sorted by start
// time ascending so the longest-running surfaces first.
func (f *Facade) GetActiveOperations() []*status.Operation {
	f.mu.RLock()
	ops := make([]*status.Operation, 0, len(f.state.Operations))
	for _, op := range f.state.Operations {
		if op.Status.IsActive() {
			ops = append(ops, op.Clone())
		}
	}
	f.mu.RUnlock()

	sort.Slice(ops, func(i, j int) bool {
		return ops[i].StartTime.Before(ops[j].StartTime)
	})
	return ops
}

// GetAllOperations returns every cached operation, most recently touched first.
func (f *Facade) GetAllOperations() []*status.Operation {
	f.mu.RLock()
	ops := make([]*status.Operation, 0, len(f.state.Operations))
	for _, op := range f.state.Operations {
		ops = append(ops, op.Clone())
	}
	f.mu.RUnlock()

	sort.Slice(ops, func(i, j int) bool {
		return ops[i].LastUpdate.After(ops[j].LastUpdate)
	})
	return ops
}

// State returns a deep copy of the cached system state.
func (f *Facade) State() *status.SystemState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state.Clone()
}

// Subscribe returns a channel that receives a signal on every effective
// change, whatever source delivered it. Signals are coalesced: a slow
// consumer sees at least one signal for any burst of changes.
func (f *Facade) Subscribe() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{}, 1)
	f.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (f *Facade) Unsubscribe(ch chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subscribers[ch]; ok {
		delete(f.subscribers, ch)
		close(ch)
	}
}

func (f *Facade) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(f.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Reload()
		}
	}
}

// applyEvent merges a broadcast delta into the cache. The cached state's
// lastUpdate is deliberately left alone: the snapshot remains the source of
// truth, and the next reload reconciles whatever the delta touched.
func (f *Facade) applyEvent(ev status.Event) {
	f.mu.Lock()

	switch ev.Action {
	case status.ActionRemoved:
		if _, ok := f.state.Operations[ev.OperationID]; !ok {
			f.mu.Unlock()
			return
		}
		delete(f.state.Operations, ev.OperationID)
		f.mu.Unlock()
		f.notify()
		return

	case status.ActionUpdate:
		op, ok := f.state.Operations[ev.OperationID]
		if !ok {
			f.mu.Unlock()
			// A delta cannot synthesize a full record (no startTime, no
			// labelName); bootstrap it from the snapshot instead.
			f.logger.WithField("operation", ev.OperationID).Debug("Delta for unknown operation, reloading snapshot")
			f.Reload()
			return
		}
		if ev.Status != nil {
			op.Status = *ev.Status
		}
		if ev.PhaseName != nil {
			op.Phase.Name = *ev.PhaseName
		}
		if ev.PhaseProgress != nil {
			op.Phase.Progress = *ev.PhaseProgress
		}
		if ev.OverallProgress != nil {
			op.OverallProgress = *ev.OverallProgress
		}
		if ev.ErrorMessage != nil {
			op.ErrorMessage = *ev.ErrorMessage
		} else if ev.Status != nil && *ev.Status != status.StatusError {
			op.ErrorMessage = ""
		}
		f.mu.Unlock()
		f.notify()
		return
	}

	f.mu.Unlock()
}

func (f *Facade) notify() {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// markAbandoned downgrades records left over from a previous daemon instance:
// anything non-terminal whose last update precedes the producer's current
// start time will never advance again.
func markAbandoned(st *status.SystemState) {
	if st.ProducerStartedAt.IsZero() {
		return
	}
	for _, op := range st.Operations {
		if !op.Status.IsTerminal() && op.LastUpdate.Before(st.ProducerStartedAt) {
			op.Status = status.StatusError
			op.ErrorMessage = abandonedMessage
		}
	}
}
