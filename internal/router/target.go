package router

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxConcurrency is the slot count of a target without an explicit bound.
const DefaultMaxConcurrency = 10

// Callback is the work a target performs for one event.
type Callback func(ctx context.Context, name string, data any) (any, error)

// RetryPolicy overrides the dispatch retry settings for one target.
type RetryPolicy struct {
	Count int
	Delay time.Duration
}

// TargetConfig configures a target.
type TargetConfig struct {
	// Priority doubles as the weight for the weighted strategy.
	Priority int

	Enabled bool

	// MaxConcurrency bounds in-flight invocations.
	MaxConcurrency int

	// Timeout overrides the dispatch timeout when positive.
	Timeout time.Duration

	// Retry overrides the dispatch retry budget when set, even if the
	// dispatch has retries disabled.
	Retry *RetryPolicy
}

// TargetOption configures a target at registration.
type TargetOption func(*TargetConfig)

// WithPriority sets the target priority (and weight).
func WithPriority(p int) TargetOption {
	return func(c *TargetConfig) {
		c.Priority = p
	}
}

// WithWeight is WithPriority under its weighted-strategy name.
func WithWeight(w int) TargetOption {
	return WithPriority(w)
}

// WithMaxConcurrency bounds in-flight invocations of the target.
func WithMaxConcurrency(n int) TargetOption {
	return func(c *TargetConfig) {
		if n > 0 {
			c.MaxConcurrency = n
		}
	}
}

// WithTimeout overrides the dispatch timeout.
func WithTimeout(d time.Duration) TargetOption {
	return func(c *TargetConfig) {
		c.Timeout = d
	}
}

// WithRetry overrides the dispatch retry budget.
func WithRetry(count int, delay time.Duration) TargetOption {
	return func(c *TargetConfig) {
		c.Retry = &RetryPolicy{Count: max(count, 0), Delay: delay}
	}
}

// WithTargetDisabled registers the target disabled.
func WithTargetDisabled() TargetOption {
	return func(c *TargetConfig) {
		c.Enabled = false
	}
}

// TargetStats are the bookkeeping counters of a target.
type TargetStats struct {
	TotalCalls         uint64        `json:"total_calls"`
	SuccessCalls       uint64        `json:"success_calls"`
	ErrorCalls         uint64        `json:"error_calls"`
	Attempts           uint64        `json:"attempts"`
	Timeouts           uint64        `json:"timeouts"`
	AvgExecTime        time.Duration `json:"avg_exec_time"`
	CurrentConcurrency int           `json:"current_concurrency"`
	PeakConcurrency    int           `json:"peak_concurrency"`
	LastExecuted       time.Time     `json:"last_executed,omitzero"`
}

// Target is one callable endpoint bound to a route.
type Target struct {
	id       string
	callback Callback
	cfg      TargetConfig
	enabled  atomic.Bool

	mu    sync.Mutex
	stats TargetStats
}

func newTarget(id string, cb Callback, opts ...TargetOption) *Target {
	cfg := TargetConfig{
		Priority:       1,
		Enabled:        true,
		MaxConcurrency: DefaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	t := &Target{id: id, callback: cb, cfg: cfg}
	t.enabled.Store(cfg.Enabled)
	return t
}

// ID returns the target ID.
func (t *Target) ID() string {
	return t.id
}

// Config returns the target configuration.
func (t *Target) Config() TargetConfig {
	cfg := t.cfg
	cfg.Enabled = t.enabled.Load()
	return cfg
}

// Stats returns a snapshot of the target counters.
func (t *Target) Stats() TargetStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// weight returns the weighted-strategy weight; non-positive priorities count as 1.
func (t *Target) weight() int {
	if t.cfg.Priority <= 0 {
		return 1
	}
	return t.cfg.Priority
}

// available reports whether the target is enabled and has a free slot.
func (t *Target) available() bool {
	if !t.enabled.Load() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats.CurrentConcurrency < t.cfg.MaxConcurrency
}

// load returns the fraction of slots in use.
func (t *Target) load() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.stats.CurrentConcurrency) / float64(t.cfg.MaxConcurrency)
}

// acquire claims a slot. It fails when every slot is taken.
func (t *Target) acquire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stats.CurrentConcurrency >= t.cfg.MaxConcurrency {
		return false
	}
	t.stats.CurrentConcurrency++
	t.stats.PeakConcurrency = max(t.stats.PeakConcurrency, t.stats.CurrentConcurrency)
	return true
}

// release frees a slot and records one finished invocation.
func (t *Target) release(elapsed time.Duration, attempts int, timeouts int, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.CurrentConcurrency--
	t.stats.TotalCalls++
	t.stats.Attempts += uint64(attempts)
	t.stats.Timeouts += uint64(timeouts)
	if success {
		t.stats.SuccessCalls++
	} else {
		t.stats.ErrorCalls++
	}
	n := time.Duration(t.stats.TotalCalls)
	t.stats.AvgExecTime += (elapsed - t.stats.AvgExecTime) / n
	t.stats.LastExecuted = time.Now()
}

func (t *Target) resetStats() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = TargetStats{CurrentConcurrency: t.stats.CurrentConcurrency}
}
