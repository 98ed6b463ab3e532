package status

import "time"

// SystemState is the complete serializable view of all tracked operations.
// It is what the daemon writes to the snapshot file and what a late-joining
// client loads to bootstrap its cache.
type SystemState struct {
	Operations map[string]*Operation `json:"operations"`

	// LastUpdate is the timestamp of the most recent mutation across all
	// operations. It increases monotonically; clients compare it against
	// their cached value to decide whether a reload is worth applying.
	LastUpdate time.Time `json:"lastUpdate"`

	// ProducerVersion identifies the writing daemon, for diagnostics only.
	ProducerVersion string `json:"producerVersion,omitempty"`

	// ProducerStartedAt is when the writing daemon process started. Records
	// last touched before this instant belong to a previous daemon instance
	// and are treated as abandoned by consumers.
	ProducerStartedAt time.Time `json:"producerStartedAt,omitempty"`
}

// NewSystemState returns an empty state with an initialized operations map.
func NewSystemState() *SystemState {
	return &SystemState{Operations: make(map[string]*Operation)}
}

// Clone returns a deep copy of the state.
func (s *SystemState) Clone() *SystemState {
	if s == nil {
		return nil
	}
	c := &SystemState{
		Operations:        make(map[string]*Operation, len(s.Operations)),
		LastUpdate:        s.LastUpdate,
		ProducerVersion:   s.ProducerVersion,
		ProducerStartedAt: s.ProducerStartedAt,
	}
	for id, op := range s.Operations {
		c.Operations[id] = op.Clone()
	}
	return c
}
