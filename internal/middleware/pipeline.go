package middleware

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/event/dispatch"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/trace"
)

// Stage is the phase a middleware runs in.
type Stage int

const (
	// StageBefore runs ahead of the invoker.
	StageBefore Stage = iota

	// StageAfter runs once the invoker (or a short-circuit) has produced a result.
	StageAfter

	// StageError runs when a before stage, the invoker or an after stage fails.
	StageError
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageBefore:
		return "before"
	case StageAfter:
		return "after"
	case StageError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseStage parses a stage name.
func ParseStage(s string) (Stage, error) {
	switch strings.ToLower(s) {
	case "before":
		return StageBefore, nil
	case "after":
		return StageAfter, nil
	case "error":
		return StageError, nil
	default:
		return 0, ErrInvalidStage
	}
}

func (s Stage) valid() bool {
	return s >= StageBefore && s <= StageError
}

// Next continues the chain and returns the error of everything after the caller.
type Next func() error

// Handler is a middleware body.
type Handler func(ctx context.Context, mc *Context, next Next) error

// Invoker is the terminal step the before chain wraps.
type Invoker func(ctx context.Context, mc *Context) error

// Config describes a registered middleware.
type Config struct {
	// Name identifies the middleware. It is unique per pipeline.
	Name string

	// Stage is the phase the middleware runs in.
	Stage Stage

	// Priority orders middleware within a stage, higher first.
	Priority int

	// Enabled controls whether the middleware runs.
	Enabled bool

	// Condition, if set, must return true for the middleware to run.
	Condition func(mc *Context) bool
}

// Registration pairs a Config with its Handler.
type Registration struct {
	Config  Config
	Handler Handler
}

// Info is a read-only view of a registered middleware.
type Info struct {
	Name     string `json:"name"`
	Stage    string `json:"stage"`
	Priority int    `json:"priority"`
	Enabled  bool   `json:"enabled"`
}

type entry struct {
	cfg     Config
	handler Handler
	enabled atomic.Bool
}

func (e *entry) applies(mc *Context) bool {
	if !e.enabled.Load() {
		return false
	}
	return e.cfg.Condition == nil || e.cfg.Condition(mc)
}

// Pipeline runs registered middleware around an invoker.
type Pipeline struct {
	mu     sync.RWMutex
	stages [3][]*entry
	byName map[string]*entry

	exec   *dispatch.Executor
	logger zerolog.Logger
	tracer trace.Tracer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithTracer sets the tracer for pipeline and stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = trace.OrNop(t)
	}
}

// New creates an empty pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		byName: make(map[string]*entry),
		logger: zerolog.Nop(),
		tracer: trace.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.exec = dispatch.NewExecutor(dispatch.WithExecutorPanicHandler(func(label string, v any, _ []byte) {
		p.logger.Error().Str("middleware", label).Interface("panic", v).Msg("middleware panicked")
	}))
	return p
}

// Register adds a middleware.
func (p *Pipeline) Register(cfg Config, h Handler) error {
	if cfg.Name == "" || !cfg.Stage.valid() {
		return ErrInvalidStage
	}
	if h == nil {
		return ErrNilHandler
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byName[cfg.Name]; exists {
		return ErrDuplicateStage
	}

	e := &entry{cfg: cfg, handler: h}
	e.enabled.Store(cfg.Enabled)
	p.byName[cfg.Name] = e

	list := append(p.stages[cfg.Stage], e)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].cfg.Priority > list[j].cfg.Priority
	})
	p.stages[cfg.Stage] = list
	return nil
}

// Use registers several middleware, stopping at the first failure.
func (p *Pipeline) Use(regs ...Registration) error {
	for _, r := range regs {
		if err := p.Register(r.Config, r.Handler); err != nil {
			return err
		}
	}
	return nil
}

// Unregister removes a middleware by name.
func (p *Pipeline) Unregister(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.byName[name]
	if !ok {
		return false
	}
	delete(p.byName, name)

	list := p.stages[e.cfg.Stage]
	for i, s := range list {
		if s == e {
			p.stages[e.cfg.Stage] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return true
}

// Enable turns a middleware on.
func (p *Pipeline) Enable(name string) error {
	return p.setEnabled(name, true)
}

// Disable turns a middleware off without unregistering it.
func (p *Pipeline) Disable(name string) error {
	return p.setEnabled(name, false)
}

func (p *Pipeline) setEnabled(name string, on bool) error {
	p.mu.RLock()
	e, ok := p.byName[name]
	p.mu.RUnlock()
	if !ok {
		return ErrStageNotFound
	}
	e.enabled.Store(on)
	return nil
}

// Names returns the middleware names of a stage in execution order.
func (p *Pipeline) Names(stage Stage) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !stage.valid() {
		return nil
	}
	names := make([]string, len(p.stages[stage]))
	for i, e := range p.stages[stage] {
		names[i] = e.cfg.Name
	}
	return names
}

// List returns every middleware grouped by stage in execution order.
func (p *Pipeline) List() []Info {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []Info
	for stage, list := range p.stages {
		for _, e := range list {
			out = append(out, Info{
				Name:     e.cfg.Name,
				Stage:    Stage(stage).String(),
				Priority: e.cfg.Priority,
				Enabled:  e.enabled.Load(),
			})
		}
	}
	return out
}

func (p *Pipeline) snapshot(stage Stage) []*entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*entry, len(p.stages[stage]))
	copy(out, p.stages[stage])
	return out
}

// Execute runs the before stages, invoke, and the after stages, with error
// stages on failure. The returned error is nil if every phase succeeded or an
// error stage marked the failure handled.
func (p *Pipeline) Execute(ctx context.Context, mc *Context, invoke Invoker) error {
	ctx, span := p.tracer.Start(ctx, trace.KindPipeline, mc.EventName, map[string]any{
		"source": mc.Source,
	})

	before := &chain{p: p, stage: StageBefore, stages: p.snapshot(StageBefore), mc: mc, terminal: invoke}
	err := before.run(ctx, 0)
	if err == nil {
		if !before.reached {
			mc.ShortCircuited = true
		}
		after := &chain{p: p, stage: StageAfter, stages: p.snapshot(StageAfter), mc: mc}
		err = after.run(ctx, 0)
	}

	if err != nil {
		err = p.RunErrorStages(ctx, mc, err)
	}

	span.SetAttr("short_circuited", mc.ShortCircuited)
	span.End(err)
	return err
}

// RunErrorStages runs the error stages for err without aborting anything.
// It returns nil when a stage marks the error handled, err otherwise. An error
// returned by an error stage itself is joined to err.
func (p *Pipeline) RunErrorStages(ctx context.Context, mc *Context, err error) error {
	mc.Err = err
	mc.Handled = false

	errs := &chain{p: p, stage: StageError, stages: p.snapshot(StageError), mc: mc}
	if stageErr := errs.run(ctx, 0); stageErr != nil {
		p.logger.Error().Err(stageErr).Str("event", mc.EventName).Msg("error middleware failed")
		return errors.Join(err, stageErr)
	}
	if mc.Handled {
		p.logger.Debug().Err(err).Str("event", mc.EventName).Msg("error handled by middleware")
		return nil
	}
	return err
}

// chain walks one stage list by index. Each stage's next continues from the
// following index; the terminal step runs after the last applicable stage.
type chain struct {
	p        *Pipeline
	stage    Stage
	stages   []*entry
	mc       *Context
	terminal Invoker
	reached  bool
}

func (c *chain) run(ctx context.Context, i int) error {
	for ; i < len(c.stages); i++ {
		e := c.stages[i]
		if !e.applies(c.mc) {
			continue
		}
		return c.invoke(ctx, e, i)
	}

	c.reached = true
	if c.terminal == nil {
		return nil
	}
	return c.terminal(ctx, c.mc)
}

func (c *chain) invoke(ctx context.Context, e *entry, i int) error {
	sctx, span := c.p.tracer.Start(ctx, trace.KindStage, e.cfg.Name, map[string]any{
		"stage":    c.stage.String(),
		"priority": e.cfg.Priority,
	})

	var (
		called  bool
		nextErr error
	)
	next := func() error {
		if called {
			return ErrNextCalledTwice
		}
		called = true
		nextErr = c.run(sctx, i+1)
		return nextErr
	}

	res := c.p.exec.Execute(sctx, e.cfg.Name, func(ctx context.Context) error {
		return e.handler(ctx, c.mc, next)
	})

	err := res.Error
	switch {
	case res.Panicked:
		err = &StageFailure{Name: e.cfg.Name, Stage: c.stage, Err: errors.Join(ErrStagePanic, res.Error)}
	case err != nil && (!called || err != nextErr):
		var se *StageFailure
		if !errors.As(err, &se) || se.Name != e.cfg.Name {
			err = &StageFailure{Name: e.cfg.Name, Stage: c.stage, Err: err}
		}
	}

	span.SetAttr("called_next", called)
	span.End(err)
	return err
}
