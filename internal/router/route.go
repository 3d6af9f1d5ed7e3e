package router

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Condition gates a route per event.
type Condition func(name string, data any) bool

// Transform rewrites the event a route's targets receive.
type Transform func(name string, data any) (string, any)

// RouteConfig configures a route at registration.
type RouteConfig struct {
	Name      string
	Priority  int
	Enabled   bool
	Condition Condition
	Transform Transform
}

// RouteOption configures a route.
type RouteOption func(*RouteConfig)

// WithName labels the route.
func WithName(name string) RouteOption {
	return func(c *RouteConfig) {
		c.Name = name
	}
}

// WithRoutePriority adds to the route's match score.
func WithRoutePriority(p int) RouteOption {
	return func(c *RouteConfig) {
		c.Priority = p
	}
}

// WithCondition gates the route.
func WithCondition(fn Condition) RouteOption {
	return func(c *RouteConfig) {
		c.Condition = fn
	}
}

// WithTransform rewrites events for the route's targets.
func WithTransform(fn Transform) RouteOption {
	return func(c *RouteConfig) {
		c.Transform = fn
	}
}

// WithRouteDisabled registers the route disabled.
func WithRouteDisabled() RouteOption {
	return func(c *RouteConfig) {
		c.Enabled = false
	}
}

// route is a registered pattern with its targets.
type route struct {
	id      string
	pattern Pattern
	cfg     RouteConfig
	enabled atomic.Bool

	// rr is advanced once per round-robin decision.
	rr atomic.Uint64

	mu      sync.RWMutex
	targets []*Target
}

func (r *route) addTarget(t *Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, t)
}

func (r *route) removeTarget(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.targets {
		if t.id == id {
			r.targets = slices.Delete(r.targets, i, i+1)
			return true
		}
	}
	return false
}

func (r *route) target(id string) *Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.targets {
		if t.id == id {
			return t
		}
	}
	return nil
}

// enabledTargets returns the enabled targets in registration order.
func (r *route) enabledTargets() []*Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Target, 0, len(r.targets))
	for _, t := range r.targets {
		if t.enabled.Load() {
			out = append(out, t)
		}
	}
	return out
}

func (r *route) allTargets() []*Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.targets)
}

// RouteInfo is a read-only snapshot of a route.
type RouteInfo struct {
	ID       string       `json:"id"`
	Name     string       `json:"name,omitempty"`
	Pattern  string       `json:"pattern"`
	Kind     string       `json:"kind"`
	Priority int          `json:"priority"`
	Enabled  bool         `json:"enabled"`
	Targets  []TargetInfo `json:"targets"`
}

// TargetInfo is a read-only snapshot of a target.
type TargetInfo struct {
	ID             string      `json:"id"`
	Priority       int         `json:"priority"`
	Enabled        bool        `json:"enabled"`
	MaxConcurrency int         `json:"max_concurrency"`
	Timeout        string      `json:"timeout,omitempty"`
	Stats          TargetStats `json:"stats"`
}

func (r *route) info() RouteInfo {
	targets := r.allTargets()
	info := RouteInfo{
		ID:       r.id,
		Name:     r.cfg.Name,
		Pattern:  r.pattern.String(),
		Kind:     r.pattern.Kind().String(),
		Priority: r.cfg.Priority,
		Enabled:  r.enabled.Load(),
		Targets:  make([]TargetInfo, 0, len(targets)),
	}
	for _, t := range targets {
		ti := TargetInfo{
			ID:             t.id,
			Priority:       t.cfg.Priority,
			Enabled:        t.enabled.Load(),
			MaxConcurrency: t.cfg.MaxConcurrency,
			Stats:          t.Stats(),
		}
		if t.cfg.Timeout > 0 {
			ti.Timeout = t.cfg.Timeout.String()
		}
		info.Targets = append(info.Targets, ti)
	}
	return info
}
