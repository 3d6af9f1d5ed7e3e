package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult_Outcome(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   Outcome
	}{
		{"success", Result{Success: true}, OutcomeOK},
		{"error", Result{Error: errors.New("boom")}, OutcomeFailed},
		{"panic", Result{Panicked: true, Error: errors.New("panic: x")}, OutcomePanicked},
		{"timeout", Result{TimedOut: true, Error: ErrTimeout}, OutcomeTimedOut},
		{"skipped", Result{Skipped: true, Error: context.Canceled}, OutcomeSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.Outcome())
			assert.Equal(t, tt.want == OutcomeOK, tt.result.OK())
		})
	}
	assert.Equal(t, "timed_out", OutcomeTimedOut.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}

func TestExecutor_Execute(t *testing.T) {
	e := NewExecutor()

	r := e.Execute(context.Background(), "ok", func(ctx context.Context) error {
		time.Sleep(time.Millisecond)
		return nil
	})
	assert.True(t, r.OK())
	assert.Greater(t, r.Duration, time.Duration(0))

	want := errors.New("handler failed")
	r = e.Execute(context.Background(), "err", func(ctx context.Context) error {
		return want
	})
	assert.False(t, r.Success)
	assert.ErrorIs(t, r.Error, want)
}

func TestExecutor_Execute_Panic(t *testing.T) {
	var (
		mu       sync.Mutex
		gotLabel string
		gotValue any
		gotStack []byte
	)
	e := NewExecutor(WithExecutorPanicHandler(func(label string, v any, stack []byte) {
		mu.Lock()
		defer mu.Unlock()
		gotLabel, gotValue, gotStack = label, v, stack
	}))

	r := e.Execute(context.Background(), "window:open", func(ctx context.Context) error {
		panic("kaboom")
	})

	assert.True(t, r.Panicked)
	assert.False(t, r.Success)
	assert.Equal(t, "kaboom", r.PanicValue)
	assert.NotEmpty(t, r.PanicStack)
	require.Error(t, r.Error)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "window:open", gotLabel)
	assert.Equal(t, "kaboom", gotValue)
	assert.NotEmpty(t, gotStack)
}

func TestExecutor_Execute_PanicHandlerPanics(t *testing.T) {
	e := NewExecutor(WithExecutorPanicHandler(func(string, any, []byte) {
		panic("handler also panics")
	}))

	assert.NotPanics(t, func() {
		r := e.Execute(context.Background(), "x", func(ctx context.Context) error {
			panic("first")
		})
		assert.True(t, r.Panicked)
	})
}

func TestExecutor_Execute_ContextCancelled(t *testing.T) {
	e := NewExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var called atomic.Bool
	r := e.Execute(ctx, "x", func(ctx context.Context) error {
		called.Store(true)
		return nil
	})

	assert.True(t, r.Skipped)
	assert.ErrorIs(t, r.Error, context.Canceled)
	assert.False(t, called.Load())
}

func TestExecutor_ExecuteWithTimeout(t *testing.T) {
	e := NewExecutor()

	r := e.ExecuteWithTimeout(context.Background(), "slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	}, 20*time.Millisecond)

	assert.ErrorIs(t, r.Error, context.DeadlineExceeded)
	assert.Less(t, r.Duration, 500*time.Millisecond)
}

func TestExecutor_Race_CompletesBeforeTimeout(t *testing.T) {
	e := NewExecutor()

	r := e.Race(context.Background(), "fast", func(ctx context.Context) error {
		return nil
	}, time.Second)

	assert.True(t, r.OK())
	assert.False(t, r.TimedOut)
}

func TestExecutor_Race_TimeoutDoesNotWaitForWork(t *testing.T) {
	e := NewExecutor()
	release := make(chan struct{})
	defer close(release)

	var cancelled atomic.Bool
	start := time.Now()
	r := e.Race(context.Background(), "stuck", func(ctx context.Context) error {
		<-ctx.Done()
		cancelled.Store(true)
		<-release
		return nil
	}, 30*time.Millisecond)
	elapsed := time.Since(start)

	assert.True(t, r.TimedOut)
	assert.ErrorIs(t, r.Error, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)

	assert.Eventually(t, cancelled.Load, time.Second, 5*time.Millisecond,
		"work context should be cancelled on timeout")
}

func TestExecutor_Race_ContextAwareWorkReportsTimeout(t *testing.T) {
	e := NewExecutor()

	r := e.Race(context.Background(), "aware", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 20*time.Millisecond)

	assert.True(t, r.TimedOut)
	assert.ErrorIs(t, r.Error, ErrTimeout)
}

func TestExecutor_Race_ParentCancelled(t *testing.T) {
	e := NewExecutor()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	r := e.Race(ctx, "parent", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, time.Second)

	assert.False(t, r.TimedOut)
	assert.ErrorIs(t, r.Error, context.Canceled)
}

func TestExecutor_Race_Panic(t *testing.T) {
	e := NewExecutor()

	r := e.Race(context.Background(), "panics", func(ctx context.Context) error {
		panic("bad target")
	}, time.Second)

	assert.True(t, r.Panicked)
	assert.False(t, r.TimedOut)
}
