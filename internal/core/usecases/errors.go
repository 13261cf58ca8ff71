package usecases

import "fmt"

// ErrorKind classifies a pathfinding failure per the taxonomy of §7:
// InvariantViolation aborts the query with diagnostics, NoPath/Cancelled are
// ordinary outcomes the caller distinguishes from a real error.
type ErrorKind int

const (
	// ErrInvariantViolation marks a fatal, data-or-logic inconsistency that
	// aborts the query outright (e.g. a trip that would board before it
	// leaves).
	ErrInvariantViolation ErrorKind = iota
	// ErrNoPath marks a query that completed normally but found nothing
	// connecting origin to destination. Never wrapped as a Go error by
	// FindPath — callers see it as a nil Path with a nil error.
	ErrNoPath
	// ErrCancelled marks a query abandoned because its context was done.
	ErrCancelled
)

// PathfindError is the error type FindPath returns for InvariantViolation
// outcomes; NoPath and Cancelled outcomes reach the caller as a nil Path
// with a nil error.
type PathfindError struct {
	Kind ErrorKind
	Msg  string
}

func (e *PathfindError) Error() string { return e.Msg }

func errInvariant(format string, args ...any) error {
	return &PathfindError{Kind: ErrInvariantViolation, Msg: fmt.Sprintf(format, args...)}
}

func errNoPath(format string, args ...any) error {
	return &PathfindError{Kind: ErrNoPath, Msg: fmt.Sprintf(format, args...)}
}

func errCancelled() error {
	return &PathfindError{Kind: ErrCancelled, Msg: "pathfinder: query cancelled"}
}
