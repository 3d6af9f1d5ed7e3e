package event

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidName rejects empty names and names with empty segments.
	ErrInvalidName      = errors.New("invalid event name")
	ErrNilHandler       = errors.New("handler cannot be nil")
	ErrHandlerPanic     = errors.New("handler panicked")
	ErrSubscriberClosed = errors.New("subscriber is closed")
)

// DeliveryError is reported for a listener that failed on one event. When the
// handler panicked, Panic holds the recovered value and errors.Is matches
// ErrHandlerPanic.
type DeliveryError struct {
	Listener string
	Event    string
	Err      error

	Panic any
	Stack string
}

func (e *DeliveryError) Error() string {
	if e.Panicked() {
		return fmt.Sprintf("listener %s on %q panicked: %v", e.Listener, e.Event, e.Panic)
	}
	return fmt.Sprintf("listener %s on %q: %v", e.Listener, e.Event, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Panicked reports whether the handler panicked rather than returning an error.
func (e *DeliveryError) Panicked() bool { return e.Panic != nil }

func (e *DeliveryError) Is(target error) bool {
	return target == ErrHandlerPanic && e.Panicked()
}
