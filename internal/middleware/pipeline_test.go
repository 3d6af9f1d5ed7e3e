package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder returns a handler that appends name to log and calls next.
func recorder(log *[]string, name string) Handler {
	return func(ctx context.Context, mc *Context, next Next) error {
		*log = append(*log, name)
		return next()
	}
}

func invokeRecorder(log *[]string) Invoker {
	return func(ctx context.Context, mc *Context) error {
		*log = append(*log, "invoke")
		mc.Result = "done"
		return nil
	}
}

func TestPipeline_Order(t *testing.T) {
	p := New()
	var log []string

	require.NoError(t, p.Register(Config{Name: "low", Stage: StageBefore, Priority: 1, Enabled: true}, recorder(&log, "low")))
	require.NoError(t, p.Register(Config{Name: "high", Stage: StageBefore, Priority: 10, Enabled: true}, recorder(&log, "high")))
	require.NoError(t, p.Register(Config{Name: "tie", Stage: StageBefore, Priority: 10, Enabled: true}, recorder(&log, "tie")))
	require.NoError(t, p.Register(Config{Name: "after-a", Stage: StageAfter, Priority: 5, Enabled: true}, recorder(&log, "after-a")))
	require.NoError(t, p.Register(Config{Name: "after-b", Stage: StageAfter, Priority: 7, Enabled: true}, recorder(&log, "after-b")))

	mc := NewContext("window:open", nil, "wm", nil)
	require.NoError(t, p.Execute(context.Background(), mc, invokeRecorder(&log)))

	assert.Equal(t, []string{"high", "tie", "low", "invoke", "after-b", "after-a"}, log)
	assert.Equal(t, "done", mc.Result)
	assert.False(t, mc.ShortCircuited)
	assert.Equal(t, []string{"high", "tie", "low"}, p.Names(StageBefore))
}

func TestPipeline_NextWrapsRestOfChain(t *testing.T) {
	p := New()
	var log []string

	require.NoError(t, p.Register(Config{Name: "outer", Stage: StageBefore, Priority: 2, Enabled: true},
		func(ctx context.Context, mc *Context, next Next) error {
			log = append(log, "outer-in")
			err := next()
			log = append(log, "outer-out")
			return err
		}))
	require.NoError(t, p.Register(Config{Name: "inner", Stage: StageBefore, Priority: 1, Enabled: true}, recorder(&log, "inner")))

	require.NoError(t, p.Execute(context.Background(), NewContext("e", nil, "", nil), invokeRecorder(&log)))
	assert.Equal(t, []string{"outer-in", "inner", "invoke", "outer-out"}, log)
}

func TestPipeline_ShortCircuitStillRunsAfter(t *testing.T) {
	p := New()
	var log []string

	require.NoError(t, p.Register(Config{Name: "stop", Stage: StageBefore, Priority: 5, Enabled: true},
		func(ctx context.Context, mc *Context, next Next) error {
			log = append(log, "stop")
			mc.Result = "cached"
			return nil
		}))
	require.NoError(t, p.Register(Config{Name: "never", Stage: StageBefore, Priority: 1, Enabled: true}, recorder(&log, "never")))
	require.NoError(t, p.Register(Config{Name: "after", Stage: StageAfter, Enabled: true}, recorder(&log, "after")))

	mc := NewContext("e", nil, "", nil)
	require.NoError(t, p.Execute(context.Background(), mc, invokeRecorder(&log)))

	assert.Equal(t, []string{"stop", "after"}, log)
	assert.True(t, mc.ShortCircuited)
	assert.Equal(t, "cached", mc.Result)
}

func TestPipeline_DisabledAndConditional(t *testing.T) {
	p := New()
	var log []string

	require.NoError(t, p.Register(Config{Name: "off", Stage: StageBefore, Enabled: false}, recorder(&log, "off")))
	require.NoError(t, p.Register(Config{
		Name: "cond", Stage: StageBefore, Enabled: true,
		Condition: func(mc *Context) bool { return mc.Source == "tray" },
	}, recorder(&log, "cond")))

	require.NoError(t, p.Execute(context.Background(), NewContext("e", nil, "dock", nil), invokeRecorder(&log)))
	assert.Equal(t, []string{"invoke"}, log)

	log = nil
	require.NoError(t, p.Enable("off"))
	require.NoError(t, p.Execute(context.Background(), NewContext("e", nil, "tray", nil), invokeRecorder(&log)))
	assert.Equal(t, []string{"off", "cond", "invoke"}, log)

	log = nil
	require.NoError(t, p.Disable("cond"))
	require.NoError(t, p.Execute(context.Background(), NewContext("e", nil, "tray", nil), invokeRecorder(&log)))
	assert.Equal(t, []string{"off", "invoke"}, log)

	assert.ErrorIs(t, p.Enable("missing"), ErrStageNotFound)
}

func TestPipeline_RegisterErrors(t *testing.T) {
	p := New()
	h := recorder(new([]string), "x")

	require.NoError(t, p.Register(Config{Name: "a", Stage: StageBefore, Enabled: true}, h))
	assert.ErrorIs(t, p.Register(Config{Name: "a", Stage: StageAfter, Enabled: true}, h), ErrDuplicateStage)
	assert.ErrorIs(t, p.Register(Config{Name: "", Stage: StageBefore}, h), ErrInvalidStage)
	assert.ErrorIs(t, p.Register(Config{Name: "b", Stage: Stage(9)}, h), ErrInvalidStage)
	assert.ErrorIs(t, p.Register(Config{Name: "b", Stage: StageBefore}, nil), ErrNilHandler)

	assert.True(t, p.Unregister("a"))
	assert.False(t, p.Unregister("a"))
	assert.Empty(t, p.Names(StageBefore))
	require.NoError(t, p.Register(Config{Name: "a", Stage: StageAfter, Enabled: true}, h))
}

func TestPipeline_ErrorRunsErrorStages(t *testing.T) {
	p := New()
	var log []string
	boom := errors.New("boom")

	require.NoError(t, p.Register(Config{Name: "fail", Stage: StageBefore, Enabled: true},
		func(ctx context.Context, mc *Context, next Next) error { return boom }))
	require.NoError(t, p.Register(Config{Name: "after", Stage: StageAfter, Enabled: true}, recorder(&log, "after")))
	require.NoError(t, p.Register(Config{Name: "err-low", Stage: StageError, Priority: 1, Enabled: true}, recorder(&log, "err-low")))
	require.NoError(t, p.Register(Config{Name: "err-high", Stage: StageError, Priority: 9, Enabled: true},
		func(ctx context.Context, mc *Context, next Next) error {
			log = append(log, "err-high")
			assert.ErrorIs(t, mc.Err, boom)
			return next()
		}))

	mc := NewContext("e", nil, "", nil)
	err := p.Execute(context.Background(), mc, invokeRecorder(&log))

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var se *StageFailure
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "fail", se.Name)
	assert.Equal(t, StageBefore, se.Stage)
	assert.Equal(t, []string{"err-high", "err-low"}, log)
}

func TestPipeline_ErrorStageHandles(t *testing.T) {
	p := New()
	boom := errors.New("boom")

	require.NoError(t, p.Register(Config{Name: "handle", Stage: StageError, Enabled: true},
		func(ctx context.Context, mc *Context, next Next) error {
			mc.Handled = true
			return next()
		}))

	mc := NewContext("e", nil, "", nil)
	err := p.Execute(context.Background(), mc, func(ctx context.Context, mc *Context) error { return boom })
	assert.NoError(t, err)
	assert.True(t, mc.Handled)
	assert.ErrorIs(t, mc.Err, boom)
}

func TestPipeline_InvokerErrorPassesThroughUnwrapped(t *testing.T) {
	p := New()
	boom := errors.New("boom")
	require.NoError(t, p.Register(Config{Name: "pass", Stage: StageBefore, Enabled: true}, recorder(new([]string), "pass")))

	err := p.Execute(context.Background(), NewContext("e", nil, "", nil),
		func(ctx context.Context, mc *Context) error { return boom })

	assert.Same(t, boom, err)
}

func TestPipeline_AfterErrorRunsErrorStages(t *testing.T) {
	p := New()
	var log []string
	boom := errors.New("after failed")

	require.NoError(t, p.Register(Config{Name: "after", Stage: StageAfter, Enabled: true},
		func(ctx context.Context, mc *Context, next Next) error { return boom }))
	require.NoError(t, p.Register(Config{Name: "err", Stage: StageError, Enabled: true}, recorder(&log, "err")))

	err := p.Execute(context.Background(), NewContext("e", nil, "", nil), invokeRecorder(&log))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"invoke", "err"}, log)
}

func TestPipeline_StagePanicBecomesError(t *testing.T) {
	p := New()
	require.NoError(t, p.Register(Config{Name: "panics", Stage: StageBefore, Enabled: true},
		func(ctx context.Context, mc *Context, next Next) error { panic("bad stage") }))

	err := p.Execute(context.Background(), NewContext("e", nil, "", nil), invokeRecorder(new([]string)))
	assert.ErrorIs(t, err, ErrStagePanic)
}

func TestPipeline_NextCalledTwice(t *testing.T) {
	p := New()
	var second error
	require.NoError(t, p.Register(Config{Name: "twice", Stage: StageBefore, Enabled: true},
		func(ctx context.Context, mc *Context, next Next) error {
			if err := next(); err != nil {
				return err
			}
			second = next()
			return nil
		}))

	calls := 0
	err := p.Execute(context.Background(), NewContext("e", nil, "", nil),
		func(ctx context.Context, mc *Context) error {
			calls++
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, second, ErrNextCalledTwice)
}

func TestPipeline_RunErrorStages(t *testing.T) {
	p := New()
	var seen error
	require.NoError(t, p.Register(Config{Name: "observe", Stage: StageError, Enabled: true},
		func(ctx context.Context, mc *Context, next Next) error {
			seen = mc.Err
			return next()
		}))

	boom := errors.New("handler failed")
	mc := NewContext("e", nil, "", nil)
	err := p.RunErrorStages(context.Background(), mc, boom)
	assert.ErrorIs(t, err, boom)
	assert.Same(t, boom, seen)
}

func TestPipeline_List(t *testing.T) {
	p := New()
	require.NoError(t, p.Use(Logging(testLogger())...))

	infos := p.List()
	require.Len(t, infos, 3)
	assert.Equal(t, Info{Name: NameLoggingBefore, Stage: "before", Priority: PriorityLogging, Enabled: true}, infos[0])
	assert.Equal(t, "after", infos[1].Stage)
	assert.Equal(t, "error", infos[2].Stage)
}

func TestParseStage(t *testing.T) {
	s, err := ParseStage("After")
	require.NoError(t, err)
	assert.Equal(t, StageAfter, s)

	_, err = ParseStage("during")
	assert.ErrorIs(t, err, ErrInvalidStage)
}
