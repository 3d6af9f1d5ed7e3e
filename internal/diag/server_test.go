package diag

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/config"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/debugger"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/engine"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/event"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/middleware"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/router"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/trace"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *engine.Engine) {
	t.Helper()
	cfg := config.Default()
	cfg.Middleware.Logging.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}
	eng, err := engine.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	srv := httptest.NewServer(New("", eng, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv, eng
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func seed(t *testing.T, eng *engine.Engine) {
	t.Helper()
	_, err := eng.Bus().OnFunc("window:open", func(ctx context.Context, ev event.Event) error { return nil })
	require.NoError(t, err)
	routeID, err := eng.Router().RegisterRoute(router.Glob("window:*"), router.WithName("windows"))
	require.NoError(t, err)
	_, err = eng.Router().AddTarget(routeID, func(ctx context.Context, name string, data any) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	require.NoError(t, eng.Emit(context.Background(), "window:open", map[string]any{"id": "w1"}))
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	var body map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestSpans(t *testing.T) {
	srv, eng := newTestServer(t, nil)
	seed(t, eng)

	var all []debugger.SpanRecord
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/spans", &all))
	assert.NotEmpty(t, all)

	var targets []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/spans?kind=target", &targets))
	require.Len(t, targets, 1)
	assert.Equal(t, "target", targets[0]["kind"])

	var limited []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/spans?limit=1&since=1h", &limited))
	assert.Len(t, limited, 1)

	var info []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/spans?level=info", &info))
	for _, s := range info {
		assert.NotEqual(t, "debug", s["level"])
	}
}

func TestSpansBadQuery(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	for _, q := range []string{"level=loud", "kind=bogus", "limit=-1", "since=yesterday"} {
		var body ErrorResponse
		assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/spans?"+q, &body), q)
		assert.NotEmpty(t, body.Error, q)
	}
}

func TestTrace(t *testing.T) {
	srv, eng := newTestServer(t, nil)
	seed(t, eng)

	roots := eng.Recorder().Query(debugger.Filter{Kind: trace.KindPipeline})
	require.Len(t, roots, 1)

	var tree []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/traces/"+roots[0].TraceID, &tree))
	require.Len(t, tree, 1)
	assert.NotEmpty(t, tree[0]["children"])

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/traces/nope", nil))
}

func TestExport(t *testing.T) {
	srv, eng := newTestServer(t, nil)
	seed(t, eng)

	resp, err := http.Get(srv.URL + "/spans/export?pretty=true&kind=emit")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "\n  ")

	var spans []map[string]any
	require.NoError(t, json.Unmarshal(body, &spans))
	require.Len(t, spans, 1)
	assert.Equal(t, "window:open", spans[0]["name"])
}

func TestRecorderDisabled(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) { c.Debugger.Enabled = false })
	for _, path := range []string{"/spans", "/spans/export", "/traces/x"} {
		assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+path, nil), path)
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/stats", nil))
}

func TestRoutesAndMiddleware(t *testing.T) {
	srv, eng := newTestServer(t, nil)
	seed(t, eng)

	var routes []router.RouteInfo
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/routes", &routes))
	require.Len(t, routes, 1)
	assert.Equal(t, "windows", routes[0].Name)
	assert.Equal(t, "window:*", routes[0].Pattern)
	require.Len(t, routes[0].Targets, 1)
	assert.EqualValues(t, 1, routes[0].Targets[0].Stats.TotalCalls)

	var stages []middleware.Info
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/middleware", &stages))
	var names []string
	for _, s := range stages {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, middleware.NamePerformanceStart)
}

func TestStats(t *testing.T) {
	srv, eng := newTestServer(t, nil)
	seed(t, eng)

	var st map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/stats", &st))
	assert.EqualValues(t, 1, st["routes"])
	assert.Contains(t, st, "bus")
	assert.Contains(t, st, "recorder")
}

func TestParseFilter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	req := httptest.NewRequest(http.MethodGet,
		"/spans?level=warn&kind=dispatch&q=window&trace=t1&limit=5&since=10m&until=2026-01-01T11:55:00Z", nil)

	f, err := parseFilter(req, now)
	require.NoError(t, err)
	assert.Equal(t, debugger.LevelWarn, f.Level)
	assert.Equal(t, trace.KindDispatch, f.Kind)
	assert.Equal(t, "window", f.Text)
	assert.Equal(t, "t1", f.TraceID)
	assert.Equal(t, 5, f.Limit)
	assert.Equal(t, now.Add(-10*time.Minute), f.Since)
	assert.Equal(t, time.Date(2026, 1, 1, 11, 55, 0, 0, time.UTC), f.Until)
}
