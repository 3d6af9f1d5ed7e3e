package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/config"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/debugger"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/event"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/logging"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/middleware"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/middleware/cachestore"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/router"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/trace"
)

// redisDialTimeout bounds the initial Redis ping.
const redisDialTimeout = 5 * time.Second

// bootstrapper builds the engine components in dependency order and closes
// what it already built when a later step fails.
type bootstrapper struct {
	eng       *Engine
	opts      options
	initOrder []string
	ownsStore bool
}

func (b *bootstrapper) bootstrap() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"recorder", b.initRecorder},
		{"bus", b.initBus},
		{"router", b.initRouter},
		{"cache", b.initCache},
		{"pipeline", b.initPipeline},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			b.cleanup()
			return fmt.Errorf("init %s: %w", step.name, err)
		}
		b.initOrder = append(b.initOrder, step.name)
	}
	return nil
}

func (b *bootstrapper) cleanup() {
	for i := len(b.initOrder) - 1; i >= 0; i-- {
		if b.initOrder[i] == "cache" && b.ownsStore && b.eng.store != nil {
			if err := b.eng.store.Close(); err != nil {
				b.eng.logger.Warn().Err(err).Msg("closing cache store after failed init")
			}
		}
	}
}

func (b *bootstrapper) tracer() trace.Tracer {
	if b.eng.recorder == nil {
		return trace.Nop()
	}
	return b.eng.recorder
}

func (b *bootstrapper) initRecorder() error {
	cfg := b.eng.cfg.Debugger
	if !cfg.Enabled {
		return nil
	}
	b.eng.recorder = debugger.New(cfg.Capacity,
		debugger.WithLogger(logging.WithComponent(b.eng.logger, "debugger")))
	return nil
}

func (b *bootstrapper) initBus() error {
	b.eng.root = event.NewBus(
		event.WithLogger(logging.WithComponent(b.eng.logger, "bus")),
		event.WithTracer(b.tracer()),
	)
	b.eng.bus = b.eng.root
	if ns := b.eng.cfg.Namespace; ns != "" {
		b.eng.bus = b.eng.root.Namespace(ns)
	}
	return nil
}

func (b *bootstrapper) initRouter() error {
	opts := []router.Option{
		router.WithLogger(logging.WithComponent(b.eng.logger, "router")),
		router.WithTracer(b.tracer()),
		router.WithDefaults(b.eng.cfg.Distribution),
	}
	if b.opts.rnd != nil {
		opts = append(opts, router.WithRand(b.opts.rnd))
	}
	b.eng.router = router.New(opts...)
	return nil
}

func (b *bootstrapper) initCache() error {
	cfg := b.eng.cfg.Middleware.Cache
	if !cfg.Enabled {
		return nil
	}
	if b.opts.store != nil {
		b.eng.store = b.opts.store
		return nil
	}

	b.ownsStore = true
	switch cfg.Backend {
	case config.CacheRedis:
		ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
		defer cancel()
		store, err := cachestore.NewRedis(ctx, cachestore.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logging.WithComponent(b.eng.logger, "cache"))
		if err != nil {
			return err
		}
		b.eng.store = store
	default:
		b.eng.store = cachestore.NewMemory(cfg.MaxEntries)
	}
	return nil
}

func (b *bootstrapper) initPipeline() error {
	e := b.eng
	m := e.cfg.Middleware
	log := logging.WithComponent(e.logger, "middleware")

	e.pipeline = middleware.New(middleware.WithLogger(log), middleware.WithTracer(b.tracer()))

	var regs []middleware.Registration
	if m.Logging.Enabled {
		regs = append(regs, middleware.Logging(log)...)
	}
	if m.Performance.Enabled {
		e.perf = middleware.NewPerformanceMonitor(log)
		e.perf.SetSampleRate(m.Performance.SampleRate)
		e.perf.SetSlowThreshold(m.Performance.SlowThreshold)
		regs = append(regs, middleware.Performance(e.perf)...)
	}
	if m.Security.Enabled {
		regs = append(regs, middleware.Security(middleware.SecurityOptions{
			AllowedSources: m.Security.AllowedSources,
			Events:         m.Security.Events,
		}))
	}
	if m.RateLimit.Enabled {
		reg, limiter := middleware.RateLimit(middleware.RateLimitOptions{
			Limit:     m.RateLimit.Limit,
			Window:    m.RateLimit.Window,
			PerSource: m.RateLimit.PerSource,
			Events:    m.RateLimit.Events,
		})
		e.limiter = limiter
		regs = append(regs, reg)
	}
	if m.Validation.Enabled || len(b.opts.checks) > 0 {
		regs = append(regs, middleware.Validation(middleware.NewValidator(b.validationRules()...)))
	}
	if e.store != nil {
		regs = append(regs, middleware.Cache(middleware.CacheOptions{
			Store:  e.store,
			TTL:    m.Cache.TTL,
			Events: m.Cache.Events,
			Logger: log,
		})...)
	}
	regs = append(regs, b.opts.middleware...)

	return e.pipeline.Use(regs...)
}

func (b *bootstrapper) validationRules() []middleware.Rule {
	var rules []middleware.Rule
	if b.eng.cfg.Middleware.Validation.Enabled {
		rules = append(rules, b.eng.cfg.Middleware.Validation.Rules...)
	}

	pending := make(map[string]func(string, any) error, len(b.opts.checks))
	for ev, check := range b.opts.checks {
		pending[ev] = check
	}
	for i := range rules {
		if check, ok := pending[rules[i].Event]; ok {
			rules[i].Check = check
			delete(pending, rules[i].Event)
		}
	}
	for _, ev := range sortedKeys(pending) {
		rules = append(rules, middleware.Rule{Event: ev, Check: pending[ev]})
	}
	return rules
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
