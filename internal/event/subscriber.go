package event

import (
	"sync"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/event/topic"
)

// Subscriber groups subscriptions made through one bus view so they can be
// released together.
type Subscriber struct {
	bus           *Bus
	subscriptions []Subscription
	mu            sync.Mutex
	closed        bool
}

// NewSubscriber creates a Subscriber over bus.
func NewSubscriber(bus *Bus) *Subscriber {
	return &Subscriber{bus: bus}
}

// On subscribes handler and tracks the subscription for Close.
func (s *Subscriber) On(name topic.Name, handler Handler, opts ...SubscriptionOption) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSubscriberClosed
	}

	sub, err := s.bus.On(name, handler, opts...)
	if err != nil {
		return nil, err
	}
	s.subscriptions = append(s.subscriptions, sub)
	return sub, nil
}

// Once subscribes handler for a single delivery and tracks it for Close.
func (s *Subscriber) Once(name topic.Name, handler Handler, opts ...SubscriptionOption) (Subscription, error) {
	return s.On(name, handler, append(opts, WithOnce())...)
}

// Off removes tracked subscriptions for name, or all of them when subs is empty.
func (s *Subscriber) Off(name topic.Name, subs ...Subscription) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	full := s.bus.Qualify(name)
	removed := 0
	kept := s.subscriptions[:0]
	for _, sub := range s.subscriptions {
		if sub.Name() == full && (len(subs) == 0 || containsSub(subs, sub)) {
			if sub.State() != SubscriptionStateCancelled {
				removed++
			}
			sub.Unsubscribe()
			continue
		}
		kept = append(kept, sub)
	}
	s.subscriptions = kept
	return removed
}

func containsSub(subs []Subscription, target Subscription) bool {
	for _, s := range subs {
		if s != nil && s.ID() == target.ID() {
			return true
		}
	}
	return false
}

// Count returns the number of live tracked subscriptions.
func (s *Subscriber) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sub := range s.subscriptions {
		if sub.State() != SubscriptionStateCancelled {
			n++
		}
	}
	return n
}

// Close unsubscribes everything. Further subscriptions fail with ErrSubscriberClosed.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for _, sub := range s.subscriptions {
		sub.Unsubscribe()
	}
	s.subscriptions = nil
}

// IsClosed reports whether Close has been called.
func (s *Subscriber) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
