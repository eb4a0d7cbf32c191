package work

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the store, scheduler and staleness tracker.
var (
	// ErrNotFound indicates a referenced spec, item, entry or path is absent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrCycleDetected indicates a dependency edge that would close a cycle.
	ErrCycleDetected = errors.New("dependency cycle detected")
	// ErrMalformedDocument indicates unparsable or invalid frontmatter or JSON.
	ErrMalformedDocument = errors.New("malformed document")
	// ErrTimestampUnresolvable indicates neither git nor the filesystem could
	// date a path.
	ErrTimestampUnresolvable = errors.New("timestamp unresolvable")
	// ErrScopeReserved indicates another in-progress item holds an
	// overlapping file reservation.
	ErrScopeReserved = errors.New("scope reserved by another item")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	Ref    string
	From   string
	To     string
	Detail string
}

// Error returns a human-readable description of the rejected transition.
func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s: %s -> %s", e.Ref, e.From, e.To)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return ErrInvalidTransition.Error() + ": " + msg
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// ValidationError records why a document failed to load.
type ValidationError struct {
	Path  string
	Field string
	Err   error
}

// Error returns the document path, the offending field if known, and the cause.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return e.Path + ": " + e.Field + ": " + e.Err.Error()
	}
	return e.Path + ": " + e.Err.Error()
}

// Unwrap returns ErrMalformedDocument so every validation failure matches it,
// while keeping the underlying cause reachable through errors.As.
func (e *ValidationError) Unwrap() []error {
	return []error{ErrMalformedDocument, e.Err}
}
