package router

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/event/dispatch"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/trace"
)

// Router holds routes and dispatches events to their targets.
// It is safe for concurrent use.
type Router struct {
	mu     sync.RWMutex
	routes map[string]*route
	order  []*route

	exec     *dispatch.Executor
	logger   zerolog.Logger
	tracer   trace.Tracer
	defaults DistributionConfig

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

// WithTracer sets the tracer for dispatch and target spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Router) {
		r.tracer = trace.OrNop(t)
	}
}

// WithRand sets the random source of the random and weighted strategies.
func WithRand(rnd *rand.Rand) Option {
	return func(r *Router) {
		if rnd != nil {
			r.rnd = rnd
		}
	}
}

// WithDefaults sets the policy used by DispatchDefault.
func WithDefaults(cfg DistributionConfig) Option {
	return func(r *Router) {
		r.defaults = cfg
	}
}

// New creates an empty router.
func New(opts ...Option) *Router {
	r := &Router{
		routes:   make(map[string]*route),
		logger:   zerolog.Nop(),
		tracer:   trace.Nop(),
		defaults: DefaultDistributionConfig(),
		rnd:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.exec = dispatch.NewExecutor(dispatch.WithExecutorPanicHandler(func(label string, v any, _ []byte) {
		r.logger.Error().Str("target_id", label).Interface("panic", v).Msg("target panicked")
	}))
	return r
}

// Defaults returns the policy used by DispatchDefault.
func (r *Router) Defaults() DistributionConfig {
	return r.defaults
}

// RegisterRoute adds a route and returns its ID.
func (r *Router) RegisterRoute(p Pattern, opts ...RouteOption) (string, error) {
	if !p.valid() {
		return "", ErrInvalidPattern
	}
	cfg := RouteConfig{Enabled: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	rt := &route{id: uuid.NewString(), pattern: p, cfg: cfg}
	rt.enabled.Store(cfg.Enabled)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[rt.id] = rt
	r.order = append(r.order, rt)

	r.logger.Debug().Str("route_id", rt.id).Str("pattern", p.String()).Msg("route registered")
	return rt.id, nil
}

// UnregisterRoute removes a route and its targets.
func (r *Router) UnregisterRoute(routeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.routes[routeID]; !ok {
		return ErrRouteNotFound
	}
	delete(r.routes, routeID)
	r.order = slices.DeleteFunc(r.order, func(rt *route) bool { return rt.id == routeID })
	return nil
}

func (r *Router) route(routeID string) (*route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routes[routeID]
	if !ok {
		return nil, ErrRouteNotFound
	}
	return rt, nil
}

func (r *Router) target(routeID, targetID string) (*Target, error) {
	rt, err := r.route(routeID)
	if err != nil {
		return nil, err
	}
	t := rt.target(targetID)
	if t == nil {
		return nil, ErrTargetNotFound
	}
	return t, nil
}

// AddTarget binds a callback to a route and returns the target ID.
func (r *Router) AddTarget(routeID string, cb Callback, opts ...TargetOption) (string, error) {
	if cb == nil {
		return "", ErrNilCallback
	}
	rt, err := r.route(routeID)
	if err != nil {
		return "", err
	}
	t := newTarget(uuid.NewString(), cb, opts...)
	rt.addTarget(t)
	return t.id, nil
}

// RemoveTarget unbinds a target. In-flight invocations finish normally.
func (r *Router) RemoveTarget(routeID, targetID string) error {
	rt, err := r.route(routeID)
	if err != nil {
		return err
	}
	if !rt.removeTarget(targetID) {
		return ErrTargetNotFound
	}
	return nil
}

// EnableRoute turns a route on.
func (r *Router) EnableRoute(routeID string) error {
	return r.setRouteEnabled(routeID, true)
}

// DisableRoute turns a route off.
func (r *Router) DisableRoute(routeID string) error {
	return r.setRouteEnabled(routeID, false)
}

func (r *Router) setRouteEnabled(routeID string, on bool) error {
	rt, err := r.route(routeID)
	if err != nil {
		return err
	}
	rt.enabled.Store(on)
	return nil
}

// EnableTarget turns a target on.
func (r *Router) EnableTarget(routeID, targetID string) error {
	return r.setTargetEnabled(routeID, targetID, true)
}

// DisableTarget turns a target off.
func (r *Router) DisableTarget(routeID, targetID string) error {
	return r.setTargetEnabled(routeID, targetID, false)
}

func (r *Router) setTargetEnabled(routeID, targetID string, on bool) error {
	t, err := r.target(routeID, targetID)
	if err != nil {
		return err
	}
	t.enabled.Store(on)
	return nil
}

// TargetStats returns the counters of one target.
func (r *Router) TargetStats(routeID, targetID string) (TargetStats, error) {
	t, err := r.target(routeID, targetID)
	if err != nil {
		return TargetStats{}, err
	}
	return t.Stats(), nil
}

// ResetStats zeroes the counters of every target. In-flight slot counts are kept.
func (r *Router) ResetStats() {
	for _, rt := range r.snapshot() {
		for _, t := range rt.allTargets() {
			t.resetStats()
		}
	}
}

// Routes returns snapshots of every route in registration order.
func (r *Router) Routes() []RouteInfo {
	routes := r.snapshot()
	out := make([]RouteInfo, len(routes))
	for i, rt := range routes {
		out[i] = rt.info()
	}
	return out
}

func (r *Router) snapshot() []*route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Match is one ranked route for an event.
type Match struct {
	RouteID   string
	RouteName string

	// Score is the pattern score; Rank adds the route priority.
	Score int
	Rank  int

	// EventName and EventData are what the targets receive, after any transform.
	EventName string
	EventData any

	// TargetIDs are the enabled targets in registration order.
	TargetIDs []string

	route   *route
	targets []*Target
}

// MatchRoutes returns the routes matching the event, ranked by score plus
// priority, ties in registration order.
func (r *Router) MatchRoutes(name string, data any) []Match {
	var matches []Match
	for _, rt := range r.snapshot() {
		if !rt.enabled.Load() {
			continue
		}
		if rt.cfg.Condition != nil && !rt.cfg.Condition(name, data) {
			continue
		}
		score, ok := rt.pattern.Score(name, data)
		if !ok {
			continue
		}

		m := Match{
			RouteID:   rt.id,
			RouteName: rt.cfg.Name,
			Score:     score,
			Rank:      score + rt.cfg.Priority,
			EventName: name,
			EventData: data,
			route:     rt,
			targets:   rt.enabledTargets(),
		}
		if rt.cfg.Transform != nil {
			m.EventName, m.EventData = rt.cfg.Transform(name, data)
		}
		m.TargetIDs = make([]string, len(m.targets))
		for i, t := range m.targets {
			m.TargetIDs[i] = t.id
		}
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Rank > matches[j].Rank
	})
	return matches
}

// DispatchDefault dispatches with the router's default policy.
func (r *Router) DispatchDefault(ctx context.Context, name string, data any) []DistributionResult {
	return r.Dispatch(ctx, name, data, r.defaults)
}

// Dispatch routes an event. Matches are processed in rank order; for each,
// the strategy selects targets that are then invoked. It returns one result
// per selected target, in selection order, even when every target fails.
func (r *Router) Dispatch(ctx context.Context, name string, data any, cfg DistributionConfig) []DistributionResult {
	ctx, span := r.tracer.Start(ctx, trace.KindDispatch, name, map[string]any{
		"strategy": string(cfg.Strategy),
	})

	sel := selector{pick: r.pick}
	var results []DistributionResult
	for _, m := range r.MatchRoutes(name, data) {
		selected := sel.choose(cfg.Strategy, m.route, m.targets)
		if len(selected) == 0 {
			r.logger.Debug().Str("event", name).Str("route_id", m.RouteID).Msg("no available targets")
			continue
		}
		results = append(results, r.invokeBatches(ctx, m, selected, cfg)...)
	}

	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}
	}
	span.SetAttr("results", len(results))
	span.SetAttr("failed", failed)
	span.End(nil)
	return results
}

func (r *Router) pick(fn func(rnd *rand.Rand) int) int {
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return fn(r.rnd)
}

// invokeBatches runs the selected targets, in batches when BatchSize is exceeded.
func (r *Router) invokeBatches(ctx context.Context, m Match, selected []*Target, cfg DistributionConfig) []DistributionResult {
	results := make([]DistributionResult, len(selected))

	size := len(selected)
	if cfg.BatchSize > 0 && len(selected) > cfg.BatchSize {
		size = cfg.BatchSize
	}

	for start := 0; start < len(selected); start += size {
		if start > 0 {
			if err := sleepCtx(ctx, cfg.BatchDelay); err != nil {
				for i := start; i < len(selected); i++ {
					results[i] = DistributionResult{RouteID: m.RouteID, TargetID: selected[i].id, Error: err}
				}
				return results
			}
		}

		end := min(start+size, len(selected))
		var g errgroup.Group
		if cfg.MaxConcurrency > 0 {
			g.SetLimit(cfg.MaxConcurrency)
		}
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = r.invoke(ctx, m, selected[i], cfg)
				return nil
			})
		}
		_ = g.Wait()
	}
	return results
}

// invoke runs one target: claim a slot, attempt with timeout, retry within
// budget, release the slot and record stats.
func (r *Router) invoke(ctx context.Context, m Match, t *Target, cfg DistributionConfig) DistributionResult {
	res := DistributionResult{RouteID: m.RouteID, TargetID: t.id}
	log := r.logger.With().Str("event", m.EventName).Str("route_id", m.RouteID).Str("target_id", t.id).Logger()

	if !t.acquire() {
		res.Error = ErrTargetSaturated
		return res
	}

	ctx, span := r.tracer.Start(ctx, trace.KindTarget, m.EventName, map[string]any{
		"route_id":  m.RouteID,
		"target_id": t.id,
	})

	timeout := attemptTimeout(t, cfg)
	retries, delay := retryBudget(t, cfg)
	start := time.Now()
	timeouts := 0

	attempt := 0
	for {
		var value any
		out := r.exec.Race(ctx, t.id, func(ctx context.Context) error {
			v, err := t.callback(ctx, m.EventName, m.EventData)
			value = v
			return err
		}, timeout)

		err := out.Error
		switch {
		case err == nil:
			res.Success = true
			res.Value = value
		case out.TimedOut:
			timeouts++
			err = &TimeoutError{RouteID: m.RouteID, TargetID: t.id, Timeout: timeout}
		case out.Panicked:
			err = fmt.Errorf("%w: %v", ErrTargetPanic, out.PanicValue)
		}
		res.Error = err

		if res.Success || attempt >= retries || ctx.Err() != nil {
			break
		}

		log.Warn().Err(err).Int("attempt", attempt+1).Int("retries", retries).Msg("target failed, retrying")
		if serr := sleepCtx(ctx, delay); serr != nil {
			res.Error = errors.Join(err, serr)
			break
		}
		attempt++
	}

	res.RetryCount = attempt
	res.ExecutionTime = time.Since(start)
	t.release(res.ExecutionTime, attempt+1, timeouts, res.Success)

	if !res.Success {
		log.Error().Err(res.Error).Int("attempt", attempt+1).Msg("target failed")
	}
	span.SetAttr("retries", attempt)
	span.End(res.Error)
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
