package workflow

import "errors"

var (
	// ErrNotFound is returned when a document has no workflow record
	ErrNotFound = errors.New("workflow not found")

	// ErrInvalidTransition marks a (stage, event) pair outside the transition table
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrStaleState is returned when a concurrent writer committed first
	ErrStaleState = errors.New("stale workflow state: already decided by someone else")

	// ErrTransientDispatch wraps infrastructure failures of side effects that may succeed on retry
	ErrTransientDispatch = errors.New("transient dispatch failure")

	// ErrInvariantViolation marks a write that would break a workflow invariant
	ErrInvariantViolation = errors.New("workflow invariant violation")

	// ErrInvalidStage is returned when a stored stage is not in the stage set
	ErrInvalidStage = errors.New("invalid stage")

	// ErrInvalidSignal is returned when an inbound event is malformed
	ErrInvalidSignal = errors.New("invalid signal")
)
