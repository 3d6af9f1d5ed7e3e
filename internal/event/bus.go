package event

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/event/dispatch"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/event/topic"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/trace"
)

// busCore is the state shared by a bus and all of its namespaced views.
type busCore struct {
	registry *Registry
	exec     *dispatch.Executor
	config   busConfig

	paused        atomic.Bool
	emitted       atomic.Uint64
	dropped       atomic.Uint64
	delivered     atomic.Uint64
	handlerErrors atomic.Uint64
	handlerPanics atomic.Uint64
	deliveryNs    atomic.Int64
}

// Bus is the publish/subscribe event bus.
//
// A Bus returned by Namespace is a view over the same listeners whose names
// are prefixed with the namespace.
type Bus struct {
	core      *busCore
	namespace topic.Name
}

// NewBus creates a new event bus.
func NewBus(opts ...BusOption) *Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &Bus{
		core: &busCore{
			registry: NewRegistry(),
			exec:     dispatch.NewExecutor(dispatch.WithExecutorPanicHandler(config.panicHandler)),
			config:   config,
		},
	}
}

// Namespace returns a view of the bus whose names are prefixed with "ns:".
// Views nest: b.Namespace("a").Namespace("b") uses the "a:b:" prefix.
func (b *Bus) Namespace(ns string) *Bus {
	return &Bus{
		core:      b.core,
		namespace: b.namespace.Qualify(topic.Name(ns)),
	}
}

// Prefix returns the namespace of this view, or "" for the root bus.
func (b *Bus) Prefix() topic.Name {
	return b.namespace
}

// Qualify returns name as seen from the root bus.
func (b *Bus) Qualify(name topic.Name) topic.Name {
	return b.namespace.Qualify(name)
}

// On registers handler for name. The returned Subscription's Unsubscribe
// removes it again.
func (b *Bus) On(name topic.Name, handler Handler, opts ...SubscriptionOption) (Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	full := b.Qualify(name)
	if !full.IsValid() {
		return nil, ErrInvalidName
	}

	sub := newSubscription(uuid.NewString(), full, handler, b.core.registry, opts...)
	b.core.registry.Add(sub)
	return sub, nil
}

// OnFunc registers a function handler for name.
func (b *Bus) OnFunc(name topic.Name, fn HandlerFunc, opts ...SubscriptionOption) (Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	return b.On(name, fn, opts...)
}

// Once registers handler for a single delivery. The subscription is removed
// before the handler runs.
func (b *Bus) Once(name topic.Name, handler Handler, opts ...SubscriptionOption) (Subscription, error) {
	return b.On(name, handler, append(opts, WithOnce())...)
}

// Off removes the given subscriptions from name. With no subscriptions it
// removes every listener for name. It returns the number removed.
func (b *Bus) Off(name topic.Name, subs ...Subscription) int {
	full := b.Qualify(name)
	if len(subs) == 0 {
		return b.core.registry.RemoveName(full)
	}

	removed := 0
	for _, sub := range subs {
		if sub == nil || sub.Name() != full {
			continue
		}
		if b.core.registry.Remove(sub.ID()) {
			removed++
		}
	}
	return removed
}

// Emit delivers data to every listener registered for name, synchronously and
// in registration order. It returns one Result per invoked handler. A failed
// or panicking handler is logged, reported to the error handler, and does not
// stop the remaining handlers.
func (b *Bus) Emit(ctx context.Context, name topic.Name, data any, opts ...EmitOption) []dispatch.Result {
	c := b.core
	full := b.Qualify(name)
	log := c.config.logger

	if !full.IsValid() {
		c.dropped.Add(1)
		log.Warn().Str("event", string(full)).Msg("dropping emit with invalid name")
		return nil
	}
	if c.paused.Load() {
		c.dropped.Add(1)
		return nil
	}
	c.emitted.Add(1)

	ev := NewEvent(full, data, opts...)
	subs := c.registry.Listeners(full)

	ctx, span := c.config.tracer.Start(ctx, trace.KindEmit, string(full), map[string]any{
		"event_id":  ev.ID,
		"source":    ev.Source,
		"listeners": len(subs),
	})

	var (
		results []dispatch.Result
		errs    []error
	)
	for _, sub := range subs {
		if !sub.accept(ev) {
			continue
		}
		if sub.once {
			c.registry.Remove(sub.id)
		}

		res := b.deliver(ctx, sub, ev)
		if res.Error != nil {
			errs = append(errs, res.Error)
		}
		results = append(results, res)
	}

	span.SetAttr("delivered", len(results))
	span.End(errors.Join(errs...))
	return results
}

func (b *Bus) deliver(ctx context.Context, sub *subscription, ev Event) dispatch.Result {
	c := b.core

	hctx, span := c.config.tracer.Start(ctx, trace.KindHandler, string(ev.Name), map[string]any{
		"subscription": sub.id,
	})
	res := c.exec.ExecuteWithTimeout(hctx, string(ev.Name), func(ctx context.Context) error {
		return sub.handler.Handle(ctx, ev)
	}, c.config.handlerTimeout)

	c.delivered.Add(1)
	c.deliveryNs.Add(res.Duration.Nanoseconds())

	switch res.Outcome() {
	case dispatch.OutcomePanicked:
		c.handlerPanics.Add(1)
		res.Error = &DeliveryError{
			Listener: sub.id,
			Event:    string(ev.Name),
			Err:      res.Error,
			Panic:    res.PanicValue,
			Stack:    string(res.PanicStack),
		}
	case dispatch.OutcomeFailed, dispatch.OutcomeSkipped:
		c.handlerErrors.Add(1)
		res.Error = &DeliveryError{
			Listener: sub.id,
			Event:    string(ev.Name),
			Err:      res.Error,
		}
	}
	span.End(res.Error)

	if res.Error != nil {
		c.config.logger.Error().
			Err(res.Error).
			Str("event", string(ev.Name)).
			Str("subscription", sub.id).
			Stringer("outcome", res.Outcome()).
			Msg("event handler failed")
		if c.config.errorHandler != nil {
			c.config.errorHandler(ev, sub, res.Error)
		}
	}
	return res
}

// Pause drops every emit until Resume is called. It affects all views.
func (b *Bus) Pause() {
	b.core.paused.Store(true)
}

// Resume restarts delivery after Pause.
func (b *Bus) Resume() {
	b.core.paused.Store(false)
}

// IsPaused reports whether the bus is paused.
func (b *Bus) IsPaused() bool {
	return b.core.paused.Load()
}

// ListenerCount returns the number of listeners for name.
func (b *Bus) ListenerCount(name topic.Name) int {
	return b.core.registry.CountName(b.Qualify(name))
}

// HasListeners reports whether name has at least one listener.
func (b *Bus) HasListeners(name topic.Name) bool {
	return b.ListenerCount(name) > 0
}

// Names returns the names with listeners inside this view, relative to it.
func (b *Bus) Names() []topic.Name {
	all := b.core.registry.Names()
	if b.namespace == "" {
		return all
	}
	names := make([]topic.Name, 0, len(all))
	for _, n := range all {
		if rel, ok := n.Unqualify(b.namespace); ok {
			names = append(names, rel)
		}
	}
	return names
}

// Clear removes every listener inside this view. On the root bus it removes
// all listeners.
func (b *Bus) Clear() {
	if b.namespace == "" {
		b.core.registry.Clear()
		return
	}
	for _, n := range b.Names() {
		b.core.registry.RemoveName(b.Qualify(n))
	}
}

// Stats returns a snapshot of bus counters. Counters are shared across views.
func (b *Bus) Stats() Stats {
	c := b.core
	delivered := c.delivered.Load()
	var avg int64
	if delivered > 0 {
		avg = c.deliveryNs.Load() / int64(delivered)
	}
	return Stats{
		Emitted:       c.emitted.Load(),
		Dropped:       c.dropped.Load(),
		Delivered:     delivered,
		HandlerErrors: c.handlerErrors.Load(),
		HandlerPanics: c.handlerPanics.Load(),
		AvgDeliveryNs: avg,
		Listeners:     c.registry.Count(),
	}
}

// ResetStats zeroes all counters.
func (b *Bus) ResetStats() {
	c := b.core
	c.emitted.Store(0)
	c.dropped.Store(0)
	c.delivered.Store(0)
	c.handlerErrors.Store(0)
	c.handlerPanics.Store(0)
	c.deliveryNs.Store(0)
}
