package engine

import (
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/middleware"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/middleware/cachestore"
)

// Option configures an Engine.
type Option func(*options)

type options struct {
	logger     zerolog.Logger
	store      cachestore.Store
	rnd        *rand.Rand
	middleware []middleware.Registration
	checks     map[string]func(name string, data any) error
}

// WithLogger sets the root logger. Components log under their own component tag.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithCacheStore overrides the configured cache backend.
func WithCacheStore(s cachestore.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithRand sets the random source for the random and weighted strategies.
func WithRand(rnd *rand.Rand) Option {
	return func(o *options) {
		o.rnd = rnd
	}
}

// WithMiddleware registers extra stages after the built-ins.
func WithMiddleware(regs ...middleware.Registration) Option {
	return func(o *options) {
		o.middleware = append(o.middleware, regs...)
	}
}

// WithValidationCheck attaches a custom check to the validation rule whose
// event glob equals event. A rule is created when none exists.
func WithValidationCheck(event string, check func(name string, data any) error) Option {
	return func(o *options) {
		if o.checks == nil {
			o.checks = make(map[string]func(string, any) error)
		}
		o.checks[event] = check
	}
}
