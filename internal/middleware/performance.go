package middleware

import (
	"context"
	"math"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// recentWindow is how many of the latest samples feed the percentiles.
const recentWindow = 512

// LatencyStats summarizes the measured dispatches of one event (or all of
// them). Percentiles cover only the most recent samples.
type LatencyStats struct {
	Count    uint64        `json:"count"`
	Failures uint64        `json:"failures"`
	Total    time.Duration `json:"total"`
	Min      time.Duration `json:"min"`
	Max      time.Duration `json:"max"`
	Mean     time.Duration `json:"mean"`
	P50      time.Duration `json:"p50"`
	P95      time.Duration `json:"p95"`
	P99      time.Duration `json:"p99"`
}

type latencySeries struct {
	mu       sync.Mutex
	stats    LatencyStats
	recent   [recentWindow]time.Duration
	recentN  int
	writeIdx int
}

func (ls *latencySeries) add(d time.Duration, failed bool) {
	d = max(d, 0)

	ls.mu.Lock()
	defer ls.mu.Unlock()

	s := &ls.stats
	if s.Count == 0 || d < s.Min {
		s.Min = d
	}
	s.Max = max(s.Max, d)
	s.Count++
	s.Total += d
	if failed {
		s.Failures++
	}

	ls.recent[ls.writeIdx] = d
	ls.writeIdx = (ls.writeIdx + 1) % recentWindow
	ls.recentN = min(ls.recentN+1, recentWindow)
}

func (ls *latencySeries) snapshot() LatencyStats {
	ls.mu.Lock()
	out := ls.stats
	window := slices.Clone(ls.recent[:ls.recentN])
	ls.mu.Unlock()

	if out.Count == 0 {
		return out
	}
	out.Mean = out.Total / time.Duration(out.Count)

	slices.Sort(window)
	out.P50 = nearestRank(window, 50)
	out.P95 = nearestRank(window, 95)
	out.P99 = nearestRank(window, 99)
	return out
}

// nearestRank expects sorted to be in ascending order and non-empty.
func nearestRank(sorted []time.Duration, pct int) time.Duration {
	rank := (pct*len(sorted)+99)/100 - 1
	return sorted[min(max(rank, 0), len(sorted)-1)]
}

// PerformanceMonitor keeps latency series per event name for the sampled
// share of dispatches and warns about slow ones.
type PerformanceMonitor struct {
	logger zerolog.Logger

	samplePercent atomic.Int32
	sampleTick    atomic.Uint64
	slowNanos     atomic.Int64

	mu     sync.RWMutex
	all    *latencySeries
	events map[string]*latencySeries
	onSlow func(event string, d time.Duration)
}

// NewPerformanceMonitor measures every dispatch and flags anything over
// 100ms until told otherwise.
func NewPerformanceMonitor(logger zerolog.Logger) *PerformanceMonitor {
	pm := &PerformanceMonitor{
		logger: logger,
		all:    &latencySeries{},
		events: make(map[string]*latencySeries),
	}
	pm.samplePercent.Store(100)
	pm.slowNanos.Store(int64(100 * time.Millisecond))
	return pm
}

// SetSampleRate takes a fraction in [0,1]; values outside are clamped.
// Sampling is by count, so 0.25 measures exactly 25 of every 100 dispatches.
func (pm *PerformanceMonitor) SetSampleRate(rate float64) {
	pm.samplePercent.Store(int32(math.Round(min(max(rate, 0), 1) * 100)))
}

// SetSlowThreshold sets the warning threshold. Zero disables warnings.
func (pm *PerformanceMonitor) SetSlowThreshold(d time.Duration) {
	pm.slowNanos.Store(int64(d))
}

// OnSlow registers fn to run after each slow dispatch is logged.
func (pm *PerformanceMonitor) OnSlow(fn func(event string, d time.Duration)) {
	pm.mu.Lock()
	pm.onSlow = fn
	pm.mu.Unlock()
}

func (pm *PerformanceMonitor) sampled() bool {
	pct := pm.samplePercent.Load()
	switch {
	case pct >= 100:
		return true
	case pct <= 0:
		return false
	}
	return int32((pm.sampleTick.Add(1)-1)%100) < pct
}

// Record adds one measurement for event.
func (pm *PerformanceMonitor) Record(event string, d time.Duration, failed bool) {
	pm.all.add(d, failed)
	pm.series(event).add(d, failed)

	slow := time.Duration(pm.slowNanos.Load())
	if slow <= 0 || d <= slow {
		return
	}
	pm.logger.Warn().
		Str("event", event).
		Dur("took", d).
		Dur("threshold", slow).
		Msg("slow dispatch")

	pm.mu.RLock()
	fn := pm.onSlow
	pm.mu.RUnlock()
	if fn != nil {
		fn(event, d)
	}
}

func (pm *PerformanceMonitor) series(event string) *latencySeries {
	pm.mu.RLock()
	s := pm.events[event]
	pm.mu.RUnlock()
	if s != nil {
		return s
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	if s = pm.events[event]; s == nil {
		s = &latencySeries{}
		pm.events[event] = s
	}
	return s
}

// GlobalStats covers every measured dispatch.
func (pm *PerformanceMonitor) GlobalStats() LatencyStats {
	return pm.all.snapshot()
}

// EventStats returns nil for events that were never measured.
func (pm *PerformanceMonitor) EventStats(event string) *LatencyStats {
	pm.mu.RLock()
	s := pm.events[event]
	pm.mu.RUnlock()
	if s == nil {
		return nil
	}
	st := s.snapshot()
	return &st
}

// EventLatency pairs an event with its statistics.
type EventLatency struct {
	Event string       `json:"event"`
	Stats LatencyStats `json:"stats"`
}

// SlowestEvents ranks events by mean latency, highest first. n <= 0 returns
// all of them.
func (pm *PerformanceMonitor) SlowestEvents(n int) []EventLatency {
	pm.mu.RLock()
	out := make([]EventLatency, 0, len(pm.events))
	for name, s := range pm.events {
		out = append(out, EventLatency{Event: name, Stats: s.snapshot()})
	}
	pm.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Stats.Mean != out[j].Stats.Mean {
			return out[i].Stats.Mean > out[j].Stats.Mean
		}
		return out[i].Event < out[j].Event
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

const metaPerfStart = "perf_start"

// Performance returns three stages around a dispatch: a start marker that runs
// before everything else, plus recorders on the after and error paths.
func Performance(pm *PerformanceMonitor) []Registration {
	start := func(ctx context.Context, mc *Context, next Next) error {
		if pm.sampled() {
			mc.Set(metaPerfStart, time.Now())
		}
		return next()
	}

	record := func(failed bool) Handler {
		return func(ctx context.Context, mc *Context, next Next) error {
			if t, ok := mc.Metadata[metaPerfStart].(time.Time); ok {
				delete(mc.Metadata, metaPerfStart)
				pm.Record(mc.EventName, time.Since(t), failed)
			}
			return next()
		}
	}

	return []Registration{
		{
			Config:  Config{Name: NamePerformanceStart, Stage: StageBefore, Priority: PriorityPerformance, Enabled: true},
			Handler: start,
		},
		{
			Config:  Config{Name: NamePerformanceRecord, Stage: StageAfter, Priority: math.MinInt32, Enabled: true},
			Handler: record(false),
		},
		{
			Config:  Config{Name: NamePerformanceError, Stage: StageError, Priority: PriorityPerformance, Enabled: true},
			Handler: record(true),
		},
	}
}
