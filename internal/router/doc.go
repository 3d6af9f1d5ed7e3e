// Package router fans events out to registered targets.
//
// A route binds a Pattern to an ordered list of targets. Patterns are a
// tagged variant:
//
//	Glob("app:*")            exact literal 100, wildcard match 50
//	Regex(`^data:sync$`)     75
//	Predicate(fn)            60
//
// MatchRoutes ranks matching routes by score plus route priority. Dispatch
// walks the ranked matches in order, selects targets with the configured
// Strategy and invokes them under a per-target concurrency bound, a timeout
// and an optional retry budget.
//
// # Timeouts
//
// Each attempt runs under a child context that is cancelled when the timeout
// fires. The router stops waiting at that point and records a failed attempt;
// it does not wait for the callback to return. A callback that ignores its
// context keeps running detached, still holding no concurrency slot.
package router
