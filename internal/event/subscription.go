package event

import (
	"sync/atomic"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/event/topic"
)

// SubscriptionState is where a listener is in its life: active, paused, or
// cancelled. Cancelled is terminal.
type SubscriptionState int32

const (
	SubscriptionStateActive SubscriptionState = iota
	SubscriptionStatePaused
	SubscriptionStateCancelled
)

var subscriptionStateNames = [...]string{"active", "paused", "cancelled"}

func (s SubscriptionState) String() string {
	if s >= 0 && int(s) < len(subscriptionStateNames) {
		return subscriptionStateNames[s]
	}
	return "unknown"
}

// Subscription is the handle returned by On and Once.
type Subscription interface {
	ID() string
	// Name is the fully qualified event name, namespace included.
	Name() topic.Name
	State() SubscriptionState

	// Pause and Resume toggle delivery without giving up the slot in the
	// listener order.
	Pause()
	Resume()

	// Unsubscribe is idempotent.
	Unsubscribe()
}

type listenOptions struct {
	filter FilterFunc
	once   bool
}

// SubscriptionOption tunes a single On/Once call.
type SubscriptionOption func(*listenOptions)

// WithFilter only delivers events for which f returns true. Filtered-out
// events do not consume a once listener.
func WithFilter(f FilterFunc) SubscriptionOption {
	return func(o *listenOptions) { o.filter = f }
}

// WithOnce removes the listener before its first delivery.
func WithOnce() SubscriptionOption {
	return func(o *listenOptions) { o.once = true }
}

type subscription struct {
	id      string
	name    topic.Name
	handler Handler
	filter  FilterFunc
	once    bool

	state atomic.Int32
	fired atomic.Bool
	owner *Registry
}

func newSubscription(id string, name topic.Name, h Handler, owner *Registry, opts ...SubscriptionOption) *subscription {
	var o listenOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &subscription{
		id:      id,
		name:    name,
		handler: h,
		filter:  o.filter,
		once:    o.once,
		owner:   owner,
	}
}

func (s *subscription) ID() string       { return s.id }
func (s *subscription) Name() topic.Name { return s.name }

func (s *subscription) State() SubscriptionState {
	return SubscriptionState(s.state.Load())
}

func (s *subscription) Pause() {
	s.state.CompareAndSwap(int32(SubscriptionStateActive), int32(SubscriptionStatePaused))
}

func (s *subscription) Resume() {
	s.state.CompareAndSwap(int32(SubscriptionStatePaused), int32(SubscriptionStateActive))
}

func (s *subscription) Unsubscribe() {
	if s.owner != nil {
		s.owner.Remove(s.id)
	}
	s.cancel()
}

func (s *subscription) cancel() {
	s.state.Store(int32(SubscriptionStateCancelled))
}

// accept decides whether ev goes to this listener. For once listeners only
// the first accepted event wins, even under concurrent emits.
func (s *subscription) accept(ev Event) bool {
	if s.State() != SubscriptionStateActive {
		return false
	}
	if s.filter != nil && !s.filter(ev) {
		return false
	}
	return !s.once || s.fired.CompareAndSwap(false, true)
}
