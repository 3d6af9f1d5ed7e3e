package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter enforces a per-key budget of events within a sliding window.
// It is safe for concurrent use.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

// NewRateLimiter allows limit events per window for each key.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records an event for key and reports whether it fits the budget.
// Rejected events do not consume budget.
func (r *RateLimiter) Allow(key string) bool {
	if r.limit <= 0 || r.window <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	hits := r.hits[key]
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]

	if len(hits) >= r.limit {
		r.hits[key] = hits
		return false
	}
	r.hits[key] = append(hits, now)
	return true
}

// Remaining returns how many events key may still emit in the current window.
func (r *RateLimiter) Remaining(key string) int {
	if r.limit <= 0 || r.window <= 0 {
		return -1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.window)
	n := 0
	for _, t := range r.hits[key] {
		if t.After(cutoff) {
			n++
		}
	}
	return r.limit - n
}

// Reset forgets every recorded event.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = make(map[string][]time.Time)
}

// RateLimitOptions configures the rate limit stage.
type RateLimitOptions struct {
	Limit  int
	Window time.Duration

	// PerSource keys the budget by event name and source instead of name only.
	PerSource bool

	// Events limits the stage to names matching these globs.
	Events []string
}

// RateLimit returns a before stage rejecting events over budget with ErrRateLimited.
func RateLimit(opts RateLimitOptions) (Registration, *RateLimiter) {
	limiter := NewRateLimiter(opts.Limit, opts.Window)
	return Registration{
		Config: Config{
			Name:      NameRateLimit,
			Stage:     StageBefore,
			Priority:  PriorityRateLimit,
			Enabled:   true,
			Condition: forEvents(opts.Events),
		},
		Handler: func(ctx context.Context, mc *Context, next Next) error {
			key := mc.EventName
			if opts.PerSource {
				key = mc.Source + "|" + key
			}
			if !limiter.Allow(key) {
				return fmt.Errorf("%w: %s allows %d per %s", ErrRateLimited, mc.EventName, opts.Limit, opts.Window)
			}
			return next()
		},
	}, limiter
}
