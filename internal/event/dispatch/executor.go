package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// Executor runs Funcs, turning panics into Results and timing each run.
// The zero value is not usable; call NewExecutor.
type Executor struct {
	panicHandler PanicHandler
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorPanicHandler installs h to observe recovered panics. A nil h
// keeps the current handler.
func WithExecutorPanicHandler(h PanicHandler) ExecutorOption {
	return func(e *Executor) {
		if h != nil {
			e.panicHandler = h
		}
	}
}

// NewExecutor returns an Executor that ignores panics unless a handler is
// installed with WithExecutorPanicHandler.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{panicHandler: ignorePanic}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs fn on the calling goroutine. If ctx is already done fn is not
// called and the Result is marked Skipped.
func (e *Executor) Execute(ctx context.Context, label string, fn Func) Result {
	if err := ctx.Err(); err != nil {
		return Result{Error: err, Skipped: true}
	}

	began := time.Now()
	res := e.capture(label, func() error { return fn(ctx) })
	res.Duration = time.Since(began)
	return res
}

func (e *Executor) capture(label string, call func() error) (res Result) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		stack := debug.Stack()
		res = Result{
			Error:      fmt.Errorf("panic: %v", v),
			Panicked:   true,
			PanicValue: v,
			PanicStack: stack,
		}
		e.notifyPanic(label, v, stack)
	}()

	err := call()
	return Result{Success: err == nil, Error: err}
}

// notifyPanic shields the caller from a panic inside the handler itself.
func (e *Executor) notifyPanic(label string, v any, stack []byte) {
	defer func() { _ = recover() }()
	e.panicHandler(label, v, stack)
}

// ExecuteWithTimeout runs fn under a context that expires after timeout.
// fn must respect context cancellation for the timeout to take effect.
func (e *Executor) ExecuteWithTimeout(ctx context.Context, label string, fn Func, timeout time.Duration) Result {
	if timeout <= 0 {
		return e.Execute(ctx, label, fn)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return e.Execute(ctx, label, fn)
}

// Race runs fn in a separate goroutine and waits for it or for the timeout,
// whichever comes first. When the timeout wins, fn's context is cancelled and
// the result reports ErrTimeout; fn itself is not waited for.
// A non-positive timeout waits for fn indefinitely (or until ctx is done).
func (e *Executor) Race(ctx context.Context, label string, fn Func, timeout time.Duration) Result {
	select {
	case <-ctx.Done():
		return Result{Error: ctx.Err(), Skipped: true}
	default:
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		done <- e.Execute(runCtx, label, fn)
	}()

	select {
	case r := <-done:
		if r.Error != nil && errors.Is(r.Error, context.DeadlineExceeded) &&
			ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			r.TimedOut = true
			r.Error = ErrTimeout
		}
		return r
	case <-runCtx.Done():
		elapsed := time.Since(start)
		if err := ctx.Err(); err != nil {
			return Result{Error: err, Duration: elapsed}
		}
		return Result{Error: ErrTimeout, TimedOut: true, Duration: elapsed}
	}
}
