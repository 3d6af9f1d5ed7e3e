package router

import (
	"errors"
	"fmt"
	"time"
)

// Router errors.
var (
	// ErrRouteNotFound is returned for an unknown route ID.
	ErrRouteNotFound = errors.New("route not found")

	// ErrTargetNotFound is returned for an unknown target ID.
	ErrTargetNotFound = errors.New("target not found")

	// ErrInvalidPattern is returned for an empty or malformed pattern.
	ErrInvalidPattern = errors.New("invalid route pattern")

	// ErrNilCallback is returned when adding a target without a callback.
	ErrNilCallback = errors.New("target callback cannot be nil")

	// ErrUnknownStrategy is returned when parsing an unknown strategy name.
	ErrUnknownStrategy = errors.New("unknown distribution strategy")

	// ErrTargetSaturated is recorded when a selected target has no free slot.
	ErrTargetSaturated = errors.New("target at max concurrency")

	// ErrTargetPanic is matched by errors from panicking callbacks.
	ErrTargetPanic = errors.New("target panicked")

	// ErrTimeout is matched by every *TimeoutError.
	ErrTimeout = errors.New("target timed out")
)

// TimeoutError is recorded when an attempt exceeds its timeout.
type TimeoutError struct {
	RouteID  string
	TargetID string
	Timeout  time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("target %s on route %s timed out after %s", e.TargetID, e.RouteID, e.Timeout)
}

// Is allows errors.Is to match TimeoutError with ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
