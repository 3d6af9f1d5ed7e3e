package middleware

import "github.com/tidwall/match"

// Standard built-in priorities. Before stages run highest first.
const (
	PriorityPerformance = 1100 // Measure everything else
	PriorityLogging     = 1050
	PrioritySecurity    = 1000 // Reject unknown sources early
	PriorityRateLimit   = 900
	PriorityValidation  = 800
	PriorityCache       = 500
)

// Built-in middleware names.
const (
	NameLoggingBefore     = "logging.before"
	NameLoggingAfter      = "logging.after"
	NameLoggingError      = "logging.error"
	NameValidation        = "validation"
	NameCacheLookup       = "cache.lookup"
	NameCacheStore        = "cache.store"
	NameRateLimit         = "ratelimit"
	NameSecurity          = "security"
	NamePerformanceStart  = "performance.start"
	NamePerformanceRecord = "performance.record"
	NamePerformanceError  = "performance.error"
)

// matchAny reports whether name matches one of the glob patterns.
// An empty pattern list matches everything.
func matchAny(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if match.Match(name, p) {
			return true
		}
	}
	return false
}

// forEvents returns a condition limiting a stage to events matching patterns.
func forEvents(patterns []string) func(*Context) bool {
	if len(patterns) == 0 {
		return nil
	}
	return func(mc *Context) bool {
		return matchAny(patterns, mc.EventName)
	}
}
