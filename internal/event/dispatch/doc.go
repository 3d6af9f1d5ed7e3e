// Package dispatch runs event handlers and route targets with panic recovery,
// timing, and timeouts.
//
// # Executor
//
// Executor runs a unit of work (a Func) and captures the outcome in a Result.
// A panicking Func never crashes the caller; the panic is reported through a
// configurable PanicHandler and surfaced as Result.Panicked.
//
// Two execution modes are provided:
//
//   - Execute runs the Func in the caller's goroutine. A timeout, if any, is
//     applied through the context and only works for Funcs that watch it.
//
//   - Race runs the Func in its own goroutine and returns as soon as the Func
//     finishes or the timeout elapses, whichever comes first. On timeout the
//     Func's context is cancelled, but the Func is not waited for: work that
//     ignores its context keeps running detached.
//
// Result.Outcome folds a Result into one of ok, failed, panicked, timed_out
// or skipped, which is what the bus and router log and count.
//
//	exec := dispatch.NewExecutor(
//	    dispatch.WithExecutorPanicHandler(func(label string, v any, stack []byte) {
//	        logger.Error().Str("handler", label).Interface("panic", v).Msg("handler panicked")
//	    }),
//	)
//	res := exec.ExecuteWithTimeout(ctx, "window:open", handle, time.Second)
package dispatch
