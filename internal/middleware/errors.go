package middleware

import (
	"errors"
	"fmt"
)

// Pipeline errors.
var (
	// ErrDuplicateStage is returned when a stage name is already registered.
	ErrDuplicateStage = errors.New("duplicate middleware name")

	// ErrStageNotFound is returned when a named stage is not registered.
	ErrStageNotFound = errors.New("middleware not found")

	// ErrInvalidStage is returned for an unknown stage type or an empty name.
	ErrInvalidStage = errors.New("invalid middleware config")

	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("middleware handler cannot be nil")

	// ErrNextCalledTwice is returned when a stage calls next more than once.
	ErrNextCalledTwice = errors.New("next called more than once")

	// ErrStagePanic is matched by a StageFailure wrapping a recovered panic.
	ErrStagePanic = errors.New("middleware panicked")
)

// Built-in stage errors.
var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrRateLimited is returned when an event exceeds its rate budget.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUnauthorizedSource is returned when the emitting source is not allowed.
	ErrUnauthorizedSource = errors.New("unauthorized source")
)

// StageFailure wraps an error produced by a stage itself, as opposed to an
// error passed up through its next continuation.
type StageFailure struct {
	// Name is the stage name.
	Name string

	// Stage is the stage type.
	Stage Stage

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StageFailure) Error() string {
	return fmt.Sprintf("%s middleware %q: %v", e.Stage, e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageFailure) Unwrap() error {
	return e.Err
}

// ValidationError describes a rejected payload.
type ValidationError struct {
	// Event is the event name.
	Event string

	// Path is the JSON path that failed, if any.
	Path string

	// Reason describes the failure.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("validation failed for %q: %s", e.Event, e.Reason)
	}
	return fmt.Sprintf("validation failed for %q at %s: %s", e.Event, e.Path, e.Reason)
}

// Is allows errors.Is to match ValidationError with ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
