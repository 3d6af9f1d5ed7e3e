// Package middleware implements the ordered, conditional pipeline that wraps
// every dispatch.
//
// Stages are registered with a Config naming their type (before, after or
// error), a priority and an optional condition. Within a stage type stages run
// in descending priority; ties keep registration order.
//
// A stage receives the shared *Context and a next continuation:
//
//	func(ctx context.Context, mc *Context, next Next) error {
//	    // work before the rest of the chain
//	    err := next()
//	    // work after the rest of the chain
//	    return err
//	}
//
// A before stage that returns without calling next short-circuits the
// dispatch: the invoker is not called, mc.ShortCircuited is set and after
// stages still run. Any error aborts the current phase and runs the error
// stages with mc.Err set; an error stage can set mc.Handled to swallow it.
//
// The built-in stages (Logging, Validation, Cache, RateLimit, Security,
// Performance) are ordinary stages and use no private hooks.
package middleware
