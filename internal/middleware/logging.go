package middleware

import (
	"context"

	"github.com/rs/zerolog"
)

// Logging returns before, after and error stages that log each dispatch.
func Logging(l zerolog.Logger) []Registration {
	return []Registration{
		{
			Config: Config{Name: NameLoggingBefore, Stage: StageBefore, Priority: PriorityLogging, Enabled: true},
			Handler: func(ctx context.Context, mc *Context, next Next) error {
				l.Debug().
					Str("event", mc.EventName).
					Str("source", mc.Source).
					Msg("dispatch start")
				return next()
			},
		},
		{
			Config: Config{Name: NameLoggingAfter, Stage: StageAfter, Priority: PriorityLogging, Enabled: true},
			Handler: func(ctx context.Context, mc *Context, next Next) error {
				l.Debug().
					Str("event", mc.EventName).
					Bool("short_circuited", mc.ShortCircuited).
					Dur("elapsed", mc.Elapsed()).
					Msg("dispatch complete")
				return next()
			},
		},
		{
			Config: Config{Name: NameLoggingError, Stage: StageError, Priority: PriorityLogging, Enabled: true},
			Handler: func(ctx context.Context, mc *Context, next Next) error {
				l.Error().
					Err(mc.Err).
					Str("event", mc.EventName).
					Str("source", mc.Source).
					Msg("dispatch failed")
				return next()
			},
		},
	}
}
