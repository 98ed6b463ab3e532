package status

// Action discriminates broadcast events.
type Action string

const (
	ActionUpdate  Action = "update"
	ActionRemoved Action = "removed"
)

// Event is the minimal delta pushed over the broadcast channel when an
// operation changes. It deliberately omits immutable fields (labelName,
// appName, startTime): a consumer that receives an update for an unknown
// operation cannot synthesize a full record from a delta and must reload
// from the snapshot instead.
type Event struct {
	OperationID string `json:"operationId"`
	Action      Action `json:"action"`

	Status          *Status  `json:"status,omitempty"`
	PhaseName       *string  `json:"phaseName,omitempty"`
	PhaseProgress   *float64 `json:"phaseProgress,omitempty"`
	OverallProgress *float64 `json:"overallProgress,omitempty"`
	ErrorMessage    *string  `json:"errorMessage,omitempty"`
}

// UpdateEvent builds the delta event describing op's current state.
func UpdateEvent(op *Operation) Event {
	st := op.Status
	phaseName := op.Phase.Name
	phaseProgress := op.Phase.Progress
	overall := op.OverallProgress

	ev := Event{
		OperationID:     op.ID,
		Action:          ActionUpdate,
		Status:          &st,
		PhaseName:       &phaseName,
		PhaseProgress:   &phaseProgress,
		OverallProgress: &overall,
	}
	if op.ErrorMessage != "" {
		msg := op.ErrorMessage
		ev.ErrorMessage = &msg
	}
	return ev
}

// RemovalEvent builds the event that tells consumers to evict an operation
// immediately rather than waiting for it to be absent from the next snapshot.
func RemovalEvent(operationID string) Event {
	return Event{OperationID: operationID, Action: ActionRemoved}
}
