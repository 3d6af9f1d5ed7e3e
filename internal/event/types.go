package event

import "context"

// Handler processes events delivered by the bus.
type Handler interface {
	// Handle processes an event. Returning an error marks the delivery as
	// failed; it never affects other handlers.
	Handle(ctx context.Context, ev Event) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, ev Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// PayloadFunc handles the payload of an event when it has type T.
type PayloadFunc[T any] func(ctx context.Context, ev Event, payload T) error

// PayloadHandler adapts a PayloadFunc into a Handler.
// Events whose payload is not a T are skipped silently.
func PayloadHandler[T any](fn PayloadFunc[T]) Handler {
	return HandlerFunc(func(ctx context.Context, ev Event) error {
		payload, ok := ev.Payload.(T)
		if !ok {
			return nil
		}
		return fn(ctx, ev, payload)
	})
}

// FilterFunc decides whether an event is delivered to a subscription.
type FilterFunc func(ev Event) bool

// ErrorHandler is called for every failed delivery after it is logged.
// err is always a *DeliveryError.
type ErrorHandler func(ev Event, sub Subscription, err error)

// Stats is a snapshot of bus counters.
type Stats struct {
	// Emitted counts Emit calls that reached the registry.
	Emitted uint64 `json:"emitted"`

	// Dropped counts Emit calls discarded while paused or for invalid names.
	Dropped uint64 `json:"dropped"`

	// Delivered counts handler invocations.
	Delivered uint64 `json:"delivered"`

	// HandlerErrors counts invocations that returned an error.
	HandlerErrors uint64 `json:"handler_errors"`

	// HandlerPanics counts invocations that panicked.
	HandlerPanics uint64 `json:"handler_panics"`

	// AvgDeliveryNs is the mean handler duration in nanoseconds.
	AvgDeliveryNs int64 `json:"avg_delivery_ns"`

	// Listeners is the number of registered subscriptions.
	Listeners int `json:"listeners"`
}
