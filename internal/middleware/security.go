package middleware

import (
	"context"
	"fmt"
)

// SecurityOptions configures the source allow-list.
type SecurityOptions struct {
	// AllowedSources are globs over event sources.
	AllowedSources []string

	// Events limits the check to names matching these globs.
	Events []string
}

// Security returns a before stage that rejects events from sources outside
// the allow-list with ErrUnauthorizedSource. An empty allow-list admits nothing.
func Security(opts SecurityOptions) Registration {
	return Registration{
		Config: Config{
			Name:      NameSecurity,
			Stage:     StageBefore,
			Priority:  PrioritySecurity,
			Enabled:   true,
			Condition: forEvents(opts.Events),
		},
		Handler: func(ctx context.Context, mc *Context, next Next) error {
			if len(opts.AllowedSources) == 0 || !matchAny(opts.AllowedSources, mc.Source) {
				return fmt.Errorf("%w: %q may not emit %s", ErrUnauthorizedSource, mc.Source, mc.EventName)
			}
			return next()
		},
	}
}
