package event

import (
	"slices"
	"sort"
	"sync"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/event/topic"
)

// Registry stores subscriptions per exact event name in registration order.
// It is safe for concurrent use and shared by every namespaced view of a bus.
type Registry struct {
	mu     sync.RWMutex
	byName map[topic.Name][]*subscription
	byID   map[string]*subscription
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[topic.Name][]*subscription),
		byID:   make(map[string]*subscription),
	}
}

// Add appends a subscription to its name's listener list.
func (r *Registry) Add(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byName[sub.name] = append(r.byName[sub.name], sub)
	r.byID[sub.id] = sub
}

// Remove removes a subscription by ID.
func (r *Registry) Remove(subID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, exists := r.byID[subID]
	if !exists {
		return false
	}
	delete(r.byID, subID)

	subs := r.byName[sub.name]
	for i, s := range subs {
		if s.id == subID {
			subs = slices.Delete(subs, i, i+1)
			break
		}
	}
	if len(subs) == 0 {
		delete(r.byName, sub.name)
	} else {
		r.byName[sub.name] = subs
	}
	sub.cancel()
	return true
}

// RemoveName removes every subscription for name and returns how many were removed.
func (r *Registry) RemoveName(name topic.Name) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.byName[name]
	for _, s := range subs {
		delete(r.byID, s.id)
		s.cancel()
	}
	delete(r.byName, name)
	return len(subs)
}

// Listeners returns a snapshot of the subscriptions for name in registration order.
// The snapshot is safe to iterate while handlers mutate the registry.
func (r *Registry) Listeners(name topic.Name) []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.byName[name]
	if len(subs) == 0 {
		return nil
	}
	return slices.Clone(subs)
}

// Get returns the subscription with the given ID.
func (r *Registry) Get(subID string) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.byID[subID]
	if !ok {
		return nil, false
	}
	return sub, true
}

// Count returns the total number of subscriptions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// CountName returns the number of subscriptions for name.
func (r *Registry) CountName(name topic.Name) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName[name])
}

// Names returns every name with at least one subscription, sorted.
func (r *Registry) Names() []topic.Name {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]topic.Name, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Clear removes every subscription.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.byID {
		s.cancel()
	}
	r.byName = make(map[topic.Name][]*subscription)
	r.byID = make(map[string]*subscription)
}
