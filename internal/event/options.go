package event

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/event/dispatch"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/trace"
)

// BusOption configures an event Bus.
type BusOption func(*busConfig)

// busConfig contains configuration for the event bus.
type busConfig struct {
	// logger receives swallowed handler failures.
	logger zerolog.Logger

	// errorHandler is called for every failed delivery.
	errorHandler ErrorHandler

	// tracer observes emits and handler invocations.
	tracer trace.Tracer

	// handlerTimeout bounds a single handler invocation. Zero disables it.
	handlerTimeout time.Duration

	// panicHandler is called when a handler panics.
	panicHandler dispatch.PanicHandler
}

// defaultBusConfig returns sensible default configuration.
func defaultBusConfig() busConfig {
	return busConfig{
		logger: zerolog.Nop(),
		tracer: trace.Nop(),
	}
}

// WithLogger sets the logger used for swallowed handler failures.
func WithLogger(l zerolog.Logger) BusOption {
	return func(c *busConfig) {
		c.logger = l
	}
}

// WithErrorHandler sets a callback for failed deliveries.
func WithErrorHandler(h ErrorHandler) BusOption {
	return func(c *busConfig) {
		c.errorHandler = h
	}
}

// WithTracer sets the tracer for emit and handler spans.
func WithTracer(t trace.Tracer) BusOption {
	return func(c *busConfig) {
		c.tracer = trace.OrNop(t)
	}
}

// WithHandlerTimeout bounds every handler invocation.
func WithHandlerTimeout(timeout time.Duration) BusOption {
	return func(c *busConfig) {
		c.handlerTimeout = timeout
	}
}

// WithBusPanicHandler sets the panic handler for the bus.
func WithBusPanicHandler(h dispatch.PanicHandler) BusOption {
	return func(c *busConfig) {
		if h != nil {
			c.panicHandler = h
		}
	}
}
