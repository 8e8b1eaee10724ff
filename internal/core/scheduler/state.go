package scheduler

import (
	"errors"
	"time"
)

// ItemState is the firing state of a queued item.
type ItemState string

const (
	// StatePending means the item is queued and awaiting evaluation.
	StatePending ItemState = "pending"
	// StateEvaluating means the item is being evaluated this cycle.
	StateEvaluating ItemState = "evaluating"
	// StateWaiting means the fire condition did not hold; the item returns
	// to pending on the next cycle.
	StateWaiting ItemState = "waiting"
	// StateFired is terminal: the broadcast succeeded and the item left the
	// queue.
	StateFired ItemState = "fired"
	// StateSkipped is terminal: the item's fingerprint was already in the
	// ledger, so it left the queue without a broadcast.
	StateSkipped ItemState = "skipped"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions. Key is the current
// state, value is the list of valid next states. Fired and skipped are
// terminal.
var ValidTransitions = map[ItemState][]ItemState{
	StatePending:    {StateEvaluating},
	StateEvaluating: {StateFired, StateWaiting, StateSkipped, StatePending},
	StateWaiting:    {StatePending},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to ItemState) bool {
	validTargets, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      ItemState
	To        ItemState
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to ItemState, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// Decision is the per-item outcome reported in log lines.
type Decision string

const (
	DecisionFire Decision = "OK"
	DecisionWait Decision = "WAIT"
	DecisionErr  Decision = "ERR"
	DecisionSkip Decision = "SKIP"
)
