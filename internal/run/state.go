// Package run models one supervised acquisition run: its identity,
// directory layout, lifecycle state machine, and artifact claiming.
package run

// State represents the current state of a run.
type State int

const (
	// StateStarting is the initial state while subprocesses launch and
	// readiness is awaited.
	StateStarting State = iota

	// StateAcquiring indicates both subprocesses are running and frames
	// are being captured.
	StateAcquiring

	// StateStopping indicates the ordered shutdown sequence is executing.
	StateStopping

	// StateProcessing indicates the downstream batch conversion and
	// plotting collaborators are running.
	StateProcessing

	// StateDone is the successful terminal state.
	StateDone

	// StateFailed is the failed terminal state. The run directory is left
	// in place for postmortem.
	StateFailed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateAcquiring:
		return "acquiring"
	case StateStopping:
		return "stopping"
	case StateProcessing:
		return "processing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for the final states.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether moving from s to next is a legal forward
// transition. Terminal states admit nothing; there are no cycles back to
// acquiring once stopping has begun.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateStarting:
		return next == StateAcquiring || next == StateFailed
	case StateAcquiring:
		return next == StateStopping
	case StateStopping:
		return next == StateProcessing || next == StateFailed
	case StateProcessing:
		return next == StateDone || next == StateFailed
	default:
		return false
	}
}
