package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/config"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/debugger"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/event"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/event/topic"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/middleware"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/middleware/cachestore"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/router"
)

// EmitResult is the pipeline result of an Emit.
type EmitResult struct {
	// Delivered is the number of bus handlers invoked.
	Delivered int `json:"delivered"`

	// HandlerErrors holds the failures of individual handlers.
	HandlerErrors []error `json:"-"`

	// Routes holds one result per routed target.
	Routes []router.DistributionResult `json:"routes,omitempty"`
}

// Engine owns one bus, pipeline, router and recorder.
type Engine struct {
	cfg    *config.Config
	logger zerolog.Logger

	root     *event.Bus
	bus      *event.Bus
	pipeline *middleware.Pipeline
	router   *router.Router
	recorder *debugger.Recorder

	store     cachestore.Store
	ownsStore bool
	perf      *middleware.PerformanceMonitor
	limiter   *middleware.RateLimiter

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New builds an engine from cfg. A nil cfg uses config.Default.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{cfg: cfg, logger: o.logger}
	b := &bootstrapper{eng: e, opts: o}
	if err := b.bootstrap(); err != nil {
		return nil, err
	}
	e.ownsStore = b.ownsStore

	e.logger.Debug().
		Str("namespace", cfg.Namespace).
		Strs("middleware", e.pipelineNames()).
		Bool("recorder", e.recorder != nil).
		Msg("engine ready")
	return e, nil
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config { return e.cfg }

// Bus returns the bus view scoped to the configured namespace.
func (e *Engine) Bus() *event.Bus { return e.bus }

// Pipeline returns the middleware pipeline.
func (e *Engine) Pipeline() *middleware.Pipeline { return e.pipeline }

// Router returns the router.
func (e *Engine) Router() *router.Router { return e.router }

// Recorder returns the span recorder, or nil when the debugger is disabled.
func (e *Engine) Recorder() *debugger.Recorder { return e.recorder }

// Performance returns the performance monitor, or nil when disabled.
func (e *Engine) Performance() *middleware.PerformanceMonitor { return e.perf }

// RateLimiter returns the rate limiter, or nil when disabled.
func (e *Engine) RateLimiter() *middleware.RateLimiter { return e.limiter }

// Qualify returns name with the engine namespace applied.
func (e *Engine) Qualify(name string) string {
	return string(e.bus.Qualify(topic.Name(name)))
}

// Emit runs the pipeline around bus delivery followed by router dispatch with
// the default distribution config. Only stage failures (validation, rate
// limit, unauthorized source) are returned. Handler failures go to the error
// stages and never fail the emit; failed targets surface in their results.
func (e *Engine) Emit(ctx context.Context, name string, data any, opts ...event.EmitOption) error {
	_, err := e.EmitResult(ctx, name, data, opts...)
	return err
}

// EmitResult is Emit returning the handler and routing outcome.
func (e *Engine) EmitResult(ctx context.Context, name string, data any, opts ...event.EmitOption) (EmitResult, error) {
	if e.closed.Load() {
		return EmitResult{}, ErrClosed
	}

	ev := event.NewEvent(e.bus.Qualify(topic.Name(name)), data, opts...)
	if !ev.Name.IsValid() {
		return EmitResult{}, fmt.Errorf("%w: %q", event.ErrInvalidName, ev.Name)
	}
	mc := middleware.NewContext(string(ev.Name), data, ev.Source, ev.Metadata)
	mc.Set(middleware.MetaCacheScope, fmt.Sprintf("emit %+v", e.router.Defaults()))

	var out EmitResult
	err := e.pipeline.Execute(ctx, mc, func(ctx context.Context, mc *middleware.Context) error {
		results := e.root.Emit(ctx, topic.Name(mc.EventName), mc.EventData,
			event.WithID(ev.ID),
			event.WithTimestamp(ev.Timestamp),
			event.WithSource(mc.Source),
			event.WithMetadataMap(mc.Metadata),
		)
		out.Delivered = len(results)
		for _, res := range results {
			if res.Error != nil {
				out.HandlerErrors = append(out.HandlerErrors, res.Error)
			}
		}
		out.Routes = e.router.DispatchDefault(ctx, mc.EventName, mc.EventData)
		if len(out.HandlerErrors) > 0 || anyFailed(out.Routes) {
			mc.Set(middleware.MetaCacheSkip, true)
		}
		mc.Result = EmitResult{Delivered: out.Delivered, Routes: slices.Clone(out.Routes)}
		return nil
	})
	if err != nil {
		return out, err
	}
	if mc.ShortCircuited {
		return emitResult(mc.Result)
	}

	for _, herr := range out.HandlerErrors {
		if unhandled := e.pipeline.RunErrorStages(ctx, mc, herr); unhandled != nil {
			e.logger.Debug().Err(unhandled).Str("event", mc.EventName).Msg("handler failure not handled by middleware")
		}
	}
	return out, nil
}

// Dispatch runs the pipeline around router dispatch only. A cached result is
// returned when the cache stage short-circuits.
func (e *Engine) Dispatch(ctx context.Context, name string, data any, dcfg router.DistributionConfig, opts ...event.EmitOption) ([]router.DistributionResult, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	ev := event.NewEvent(e.bus.Qualify(topic.Name(name)), data, opts...)
	if !ev.Name.IsValid() {
		return nil, fmt.Errorf("%w: %q", event.ErrInvalidName, ev.Name)
	}
	mc := middleware.NewContext(string(ev.Name), data, ev.Source, ev.Metadata)
	mc.Set(middleware.MetaCacheScope, fmt.Sprintf("dispatch %+v", dcfg))

	err := e.pipeline.Execute(ctx, mc, func(ctx context.Context, mc *middleware.Context) error {
		results := e.router.Dispatch(ctx, mc.EventName, mc.EventData, dcfg)
		if anyFailed(results) {
			mc.Set(middleware.MetaCacheSkip, true)
		}
		mc.Result = results
		return nil
	})
	if err != nil {
		return nil, err
	}
	return distributionResults(mc.Result)
}

func anyFailed(results []router.DistributionResult) bool {
	return slices.ContainsFunc(results, func(r router.DistributionResult) bool { return !r.Success })
}

// distributionResults converts a pipeline result back to dispatch results.
// The returned slice never aliases a cached value.
func distributionResults(v any) ([]router.DistributionResult, error) {
	if r, ok := v.([]router.DistributionResult); ok {
		return slices.Clone(r), nil
	}
	return decodeCached[[]router.DistributionResult](v)
}

func emitResult(v any) (EmitResult, error) {
	if r, ok := v.(EmitResult); ok {
		r.Routes = slices.Clone(r.Routes)
		return r, nil
	}
	return decodeCached[EmitResult](v)
}

// decodeCached turns a cached value into T. Values read back from a cache
// store may arrive JSON-shaped rather than typed.
func decodeCached[T any](v any) (T, error) {
	var out T
	if v == nil {
		return out, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("decode cached result: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode cached result: %w", err)
	}
	return out, nil
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Bus      event.Stats               `json:"bus"`
	Routes   int                       `json:"routes"`
	Latency  *middleware.LatencyStats  `json:"latency,omitempty"`
	Recorder *debugger.Stats           `json:"recorder,omitempty"`
	Stages   []middleware.Info         `json:"stages"`
	Slowest  []middleware.EventLatency `json:"slowest,omitempty"`
}

// Stats collects statistics from every component.
func (e *Engine) Stats() Stats {
	st := Stats{
		Bus:    e.root.Stats(),
		Routes: len(e.router.Routes()),
		Stages: e.pipeline.List(),
	}
	if e.perf != nil {
		g := e.perf.GlobalStats()
		st.Latency = &g
		st.Slowest = e.perf.SlowestEvents(5)
	}
	if e.recorder != nil {
		rs := e.recorder.Stats()
		st.Recorder = &rs
	}
	return st
}

func (e *Engine) pipelineNames() []string {
	var names []string
	for _, info := range e.pipeline.List() {
		names = append(names, info.Name)
	}
	sort.Strings(names)
	return names
}

// Close clears the bus and releases the cache store it created. Later calls
// return the first result.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.root.Clear()

		var errs []error
		if e.store != nil && e.ownsStore {
			if err := e.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close cache store: %w", err))
			}
		}
		e.closeErr = errors.Join(errs...)
		e.logger.Debug().Err(e.closeErr).Msg("engine closed")
	})
	return e.closeErr
}
