package middleware

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/middleware/cachestore"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestLogging_WritesLines(t *testing.T) {
	var buf bytes.Buffer
	p := New()
	require.NoError(t, p.Use(Logging(zerolog.New(&buf).Level(zerolog.DebugLevel))...))

	require.NoError(t, p.Execute(context.Background(), NewContext("window:open", nil, "wm", nil),
		func(ctx context.Context, mc *Context) error { return nil }))

	out := buf.String()
	assert.Contains(t, out, `"message":"dispatch start"`)
	assert.Contains(t, out, `"message":"dispatch complete"`)
	assert.Contains(t, out, `"event":"window:open"`)
}

func TestValidation(t *testing.T) {
	v := NewValidator(Rule{
		Event:    "notify:*",
		Required: []string{"title"},
		Types:    map[string]string{"title": "string", "timeout": "number"},
		Defaults: map[string]any{"timeout": 5000},
	})

	t.Run("defaults applied", func(t *testing.T) {
		out, err := v.Validate("notify:show", map[string]any{"title": "hi"})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"title": "hi", "timeout": float64(5000)}, out)
	})

	t.Run("missing required", func(t *testing.T) {
		_, err := v.Validate("notify:show", map[string]any{"body": "x"})
		require.ErrorIs(t, err, ErrValidation)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "title", ve.Path)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := v.Validate("notify:show", map[string]any{"title": 3})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unmatched event untouched", func(t *testing.T) {
		data := map[string]any{"x": 1}
		out, err := v.Validate("window:open", data)
		require.NoError(t, err)
		assert.Equal(t, data, out)
	})
}

func TestValidation_StageRejects(t *testing.T) {
	p := New()
	require.NoError(t, p.Use(Validation(NewValidator(Rule{Event: "*", Required: []string{"id"}}))))

	invoked := false
	err := p.Execute(context.Background(), NewContext("window:open", map[string]any{}, "wm", nil),
		func(ctx context.Context, mc *Context) error {
			invoked = true
			return nil
		})
	assert.ErrorIs(t, err, ErrValidation)
	assert.False(t, invoked)
}

func TestCache_HitShortCircuits(t *testing.T) {
	store := cachestore.NewMemory(16)
	p := New()
	require.NoError(t, p.Use(Cache(CacheOptions{Store: store, TTL: time.Minute, Logger: testLogger()})...))

	calls := 0
	invoke := func(ctx context.Context, mc *Context) error {
		calls++
		mc.Result = map[string]any{"files": 3}
		return nil
	}

	first := NewContext("fs:list", map[string]any{"dir": "/home"}, "finder", nil)
	require.NoError(t, p.Execute(context.Background(), first, invoke))
	assert.Equal(t, CacheMiss, first.GetString(MetaCache))
	assert.Equal(t, 1, store.Len())

	second := NewContext("fs:list", map[string]any{"dir": "/home"}, "finder", nil)
	require.NoError(t, p.Execute(context.Background(), second, invoke))
	assert.Equal(t, CacheHit, second.GetString(MetaCache))
	assert.True(t, second.ShortCircuited)
	assert.Equal(t, map[string]any{"files": 3}, second.Result)
	assert.Equal(t, 1, calls)

	other := NewContext("fs:list", map[string]any{"dir": "/tmp"}, "finder", nil)
	require.NoError(t, p.Execute(context.Background(), other, invoke))
	assert.Equal(t, 2, calls)
}

func TestCacheKey(t *testing.T) {
	a, err := CacheKey("", "x", map[string]any{"a": 1})
	require.NoError(t, err)
	b, err := CacheKey("", "x", map[string]any{"a": 1})
	require.NoError(t, err)
	c, err := CacheKey("", "y", map[string]any{"a": 1})
	require.NoError(t, err)
	d, err := CacheKey("dispatch", "x", map[string]any{"a": 1})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Len(t, a, 64)

	_, err = CacheKey("", "x", make(chan int))
	assert.Error(t, err)
}

func TestCache_ScopeAndSkip(t *testing.T) {
	store := cachestore.NewMemory(16)
	p := New()
	require.NoError(t, p.Use(Cache(CacheOptions{Store: store, Logger: testLogger()})...))

	calls := 0
	invoke := func(ctx context.Context, mc *Context) error {
		calls++
		mc.Result = calls
		return nil
	}
	run := func(scope string, skip bool) *Context {
		mc := NewContext("fs:stat", "/home", "", map[string]any{MetaCacheScope: scope})
		require.NoError(t, p.Execute(context.Background(), mc, func(ctx context.Context, mc *Context) error {
			if skip {
				mc.Set(MetaCacheSkip, true)
			}
			return invoke(ctx, mc)
		}))
		return mc
	}

	run("emit", false)
	assert.Equal(t, CacheMiss, run("dispatch", false).GetString(MetaCache))
	assert.Equal(t, CacheHit, run("emit", false).GetString(MetaCache))
	assert.Equal(t, 2, calls)

	run("flaky", true)
	assert.Equal(t, CacheMiss, run("flaky", false).GetString(MetaCache))
	assert.Equal(t, 4, calls)
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	now := time.Unix(0, 0)
	r := NewRateLimiter(2, time.Second)
	r.now = func() time.Time { return now }

	assert.True(t, r.Allow("k"))
	now = now.Add(400 * time.Millisecond)
	assert.True(t, r.Allow("k"))
	assert.False(t, r.Allow("k"))
	assert.Equal(t, 0, r.Remaining("k"))
	assert.True(t, r.Allow("other"))

	now = now.Add(700 * time.Millisecond)
	assert.Equal(t, 1, r.Remaining("k"))
	assert.True(t, r.Allow("k"))
	assert.False(t, r.Allow("k"))

	r.Reset()
	assert.True(t, r.Allow("k"))
}

func TestRateLimit_Stage(t *testing.T) {
	reg, _ := RateLimit(RateLimitOptions{Limit: 1, Window: time.Hour, PerSource: true})
	p := New()
	require.NoError(t, p.Use(reg))

	ok := func(ctx context.Context, mc *Context) error { return nil }
	require.NoError(t, p.Execute(context.Background(), NewContext("a:b", nil, "one", nil), ok))
	require.NoError(t, p.Execute(context.Background(), NewContext("a:b", nil, "two", nil), ok))

	err := p.Execute(context.Background(), NewContext("a:b", nil, "one", nil), ok)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestSecurity_Stage(t *testing.T) {
	p := New()
	require.NoError(t, p.Use(Security(SecurityOptions{
		AllowedSources: []string{"system", "app:*"},
		Events:         []string{"system:*"},
	})))

	ok := func(ctx context.Context, mc *Context) error { return nil }
	assert.NoError(t, p.Execute(context.Background(), NewContext("system:shutdown", nil, "system", nil), ok))
	assert.NoError(t, p.Execute(context.Background(), NewContext("system:shutdown", nil, "app:notes", nil), ok))
	assert.NoError(t, p.Execute(context.Background(), NewContext("window:open", nil, "rogue", nil), ok))

	err := p.Execute(context.Background(), NewContext("system:shutdown", nil, "rogue", nil), ok)
	assert.ErrorIs(t, err, ErrUnauthorizedSource)
}

func TestPerformance_RecordsAndWarns(t *testing.T) {
	pm := NewPerformanceMonitor(testLogger())
	pm.SetSlowThreshold(5 * time.Millisecond)
	var slow []string
	pm.OnSlow(func(event string, d time.Duration) { slow = append(slow, event) })

	p := New()
	require.NoError(t, p.Use(Performance(pm)...))

	fast := func(ctx context.Context, mc *Context) error { return nil }
	sleepy := func(ctx context.Context, mc *Context) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	}

	require.NoError(t, p.Execute(context.Background(), NewContext("a:fast", nil, "", nil), fast))
	require.NoError(t, p.Execute(context.Background(), NewContext("a:slow", nil, "", nil), sleepy))

	assert.Equal(t, []string{"a:slow"}, slow)
	assert.Equal(t, uint64(2), pm.GlobalStats().Count)
	require.NotNil(t, pm.EventStats("a:slow"))
	assert.GreaterOrEqual(t, pm.EventStats("a:slow").Min, 10*time.Millisecond)
	assert.Equal(t, "a:slow", pm.SlowestEvents(1)[0].Event)
	assert.Nil(t, pm.EventStats("missing"))
}

func TestPerformance_Sampling(t *testing.T) {
	pm := NewPerformanceMonitor(testLogger())
	pm.SetSampleRate(0.25)

	p := New()
	require.NoError(t, p.Use(Performance(pm)...))

	for range 100 {
		require.NoError(t, p.Execute(context.Background(), NewContext("a:b", nil, "", nil),
			func(ctx context.Context, mc *Context) error { return nil }))
	}
	assert.Equal(t, uint64(25), pm.GlobalStats().Count)
}

func TestLatencySeries(t *testing.T) {
	var ls latencySeries
	assert.Equal(t, LatencyStats{}, ls.snapshot())

	for i := 1; i <= 100; i++ {
		ls.add(time.Duration(i)*time.Millisecond, i%10 == 0)
	}

	s := ls.snapshot()
	assert.Equal(t, uint64(100), s.Count)
	assert.Equal(t, uint64(10), s.Failures)
	assert.Equal(t, time.Millisecond, s.Min)
	assert.Equal(t, 100*time.Millisecond, s.Max)
	assert.Equal(t, 5050*time.Millisecond, s.Total)
	assert.Equal(t, 50500*time.Microsecond, s.Mean)
	assert.Equal(t, 50*time.Millisecond, s.P50)
	assert.Equal(t, 95*time.Millisecond, s.P95)
	assert.Equal(t, 99*time.Millisecond, s.P99)
}

func TestLatencySeries_WindowDropsOldSamples(t *testing.T) {
	var ls latencySeries
	ls.add(time.Hour, false)
	for range recentWindow {
		ls.add(time.Millisecond, false)
	}

	s := ls.snapshot()
	assert.Equal(t, time.Hour, s.Max)
	assert.Equal(t, time.Millisecond, s.P99)
}
