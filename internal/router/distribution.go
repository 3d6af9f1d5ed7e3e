package router

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"strings"
	"time"
)

// Strategy selects which targets of a matched route are invoked.
type Strategy string

// Distribution strategies.
const (
	StrategyAll          Strategy = "all"
	StrategyFirst        Strategy = "first"
	StrategyRandom       Strategy = "random"
	StrategyRoundRobin   Strategy = "round-robin"
	StrategyWeighted     Strategy = "weighted"
	StrategyLoadBalanced Strategy = "load-balanced"
)

// Strategies lists every strategy.
var Strategies = []Strategy{
	StrategyAll, StrategyFirst, StrategyRandom,
	StrategyRoundRobin, StrategyWeighted, StrategyLoadBalanced,
}

// ParseStrategy parses a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Strategies {
		if st == known {
			return st, nil
		}
	}
	return "", ErrUnknownStrategy
}

// DistributionConfig is the fan-out policy of one dispatch.
type DistributionConfig struct {
	Strategy Strategy `yaml:"strategy"`

	// MaxConcurrency bounds how many selected targets run at once. Zero is unbounded.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Timeout bounds each attempt unless the target overrides it. Zero disables it.
	Timeout time.Duration `yaml:"timeout"`

	RetryEnabled bool          `yaml:"retry_enabled"`
	RetryCount   int           `yaml:"retry_count"`
	RetryDelay   time.Duration `yaml:"retry_delay"`

	// BatchSize, when positive and exceeded, invokes selected targets in
	// successive batches with BatchDelay between them.
	BatchSize  int           `yaml:"batch_size"`
	BatchDelay time.Duration `yaml:"batch_delay"`
}

// DefaultDistributionConfig returns the default policy.
func DefaultDistributionConfig() DistributionConfig {
	return DistributionConfig{
		Strategy:       StrategyAll,
		MaxConcurrency: 10,
		Timeout:        5 * time.Second,
		RetryEnabled:   true,
		RetryCount:     3,
		RetryDelay:     time.Second,
	}
}

// DistributionResult is the outcome of one selected target.
type DistributionResult struct {
	Success       bool          `json:"success"`
	RouteID       string        `json:"route_id"`
	TargetID      string        `json:"target_id"`
	ExecutionTime time.Duration `json:"execution_time"`
	Error         error         `json:"-"`
	RetryCount    int           `json:"retry_count"`
	Value         any           `json:"value,omitempty"`
}

type plainResult DistributionResult

// MarshalJSON encodes Error as its message under "error".
func (r DistributionResult) MarshalJSON() ([]byte, error) {
	var msg string
	if r.Error != nil {
		msg = r.Error.Error()
	}
	return json.Marshal(struct {
		plainResult
		Error string `json:"error,omitempty"`
	}{plainResult(r), msg})
}

// UnmarshalJSON restores Error from its message. The error identity is lost:
// errors.Is against router sentinels no longer matches.
func (r *DistributionResult) UnmarshalJSON(data []byte) error {
	aux := struct {
		*plainResult
		Error string `json:"error,omitempty"`
	}{plainResult: (*plainResult)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Error = nil
	if aux.Error != "" {
		r.Error = errors.New(aux.Error)
	}
	return nil
}

// retryBudget returns how many retries t gets under cfg and the pause between them.
func retryBudget(t *Target, cfg DistributionConfig) (int, time.Duration) {
	if p := t.cfg.Retry; p != nil {
		delay := p.Delay
		if delay <= 0 {
			delay = cfg.RetryDelay
		}
		return p.Count, delay
	}
	if !cfg.RetryEnabled {
		return 0, 0
	}
	return max(cfg.RetryCount, 0), cfg.RetryDelay
}

func attemptTimeout(t *Target, cfg DistributionConfig) time.Duration {
	if t.cfg.Timeout > 0 {
		return t.cfg.Timeout
	}
	return cfg.Timeout
}

// selector picks targets for one match. rnd must only be used under the
// router's random lock, which callers take through pick.
type selector struct {
	pick func(fn func(rnd *rand.Rand) int) int
}

func (s selector) choose(strategy Strategy, rt *route, targets []*Target) []*Target {
	available := make([]*Target, 0, len(targets))
	for _, t := range targets {
		if t.available() {
			available = append(available, t)
		}
	}
	if len(available) == 0 {
		return nil
	}

	switch strategy {
	case StrategyFirst:
		return available[:1]

	case StrategyRandom:
		i := s.pick(func(rnd *rand.Rand) int { return rnd.IntN(len(available)) })
		return []*Target{available[i]}

	case StrategyRoundRobin:
		n := rt.rr.Add(1) - 1
		return []*Target{available[n%uint64(len(available))]}

	case StrategyWeighted:
		total := 0
		for _, t := range available {
			total += t.weight()
		}
		r := s.pick(func(rnd *rand.Rand) int { return rnd.IntN(total) })
		for _, t := range available {
			r -= t.weight()
			if r < 0 {
				return []*Target{t}
			}
		}
		return available[len(available)-1:]

	case StrategyLoadBalanced:
		best := available[0]
		bestLoad := best.load()
		for _, t := range available[1:] {
			if l := t.load(); l < bestLoad {
				best, bestLoad = t, l
			}
		}
		return []*Target{best}

	default:
		return available
	}
}
