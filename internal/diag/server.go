// Package diag serves read-only diagnostics over HTTP: recorded spans, the
// routing table, the middleware chain and engine statistics. It is not an
// event transport; nothing here emits or dispatches.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/debugger"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/engine"
	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/trace"
)

const shutdownTimeout = 5 * time.Second

// Server is the diagnostics HTTP server.
type Server struct {
	listen    string
	engine    *engine.Engine
	logger    zerolog.Logger
	startedAt time.Time
	server    *http.Server
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// New creates a server for eng listening on listen.
func New(listen string, eng *engine.Engine, logger zerolog.Logger) *Server {
	return &Server{
		listen:    listen,
		engine:    eng,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/stats", s.handleStats)
	r.Get("/routes", s.handleRoutes)
	r.Get("/middleware", s.handleMiddleware)

	r.Group(func(r chi.Router) {
		r.Use(s.requireRecorder)
		r.Get("/spans", s.handleSpans)
		r.Get("/spans/export", s.handleExport)
		r.Get("/traces/{traceID}", s.handleTrace)
	})

	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info().Str("listen", s.listen).Msg("diagnostics server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("diagnostics server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("diagnostics shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("diagnostics server: %w", err)
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) requireRecorder(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.engine.Recorder() == nil {
			respondError(w, http.StatusServiceUnavailable, "debugger is disabled")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Router().Routes())
}

func (s *Server) handleMiddleware(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Pipeline().List())
}

// handleSpans handles GET /spans.
func (s *Server) handleSpans(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r, time.Now())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.engine.Recorder().Query(f))
}

// handleExport handles GET /spans/export. pretty=true indents the output.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r, time.Now())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	indent, _ := strconv.ParseBool(r.URL.Query().Get("pretty"))

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="spans.json"`)
	if err := s.engine.Recorder().Export(w, f, indent); err != nil {
		s.logger.Error().Err(err).Msg("span export failed")
	}
}

// handleTrace handles GET /traces/{traceID}.
func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "traceID")
	tree := s.engine.Recorder().Tree(traceID)
	if len(tree) == 0 {
		respondError(w, http.StatusNotFound, "trace not found")
		return
	}
	respondJSON(w, http.StatusOK, tree)
}

// parseFilter reads level, kind, q, since, until, trace and limit. since and
// until accept RFC 3339 timestamps or a duration meaning that long before now.
func parseFilter(r *http.Request, now time.Time) (debugger.Filter, error) {
	q := r.URL.Query()
	var f debugger.Filter

	if v := q.Get("level"); v != "" {
		level, ok := debugger.ParseLevel(v)
		if !ok {
			return f, fmt.Errorf("invalid level %q", v)
		}
		f.Level = level
	}
	if v := q.Get("kind"); v != "" {
		switch k := trace.Kind(v); k {
		case trace.KindEmit, trace.KindHandler, trace.KindPipeline, trace.KindStage, trace.KindDispatch, trace.KindTarget:
			f.Kind = k
		default:
			return f, fmt.Errorf("invalid kind %q", v)
		}
	}
	f.Text = q.Get("q")
	f.TraceID = q.Get("trace")

	var err error
	if f.Since, err = parseTime(q.Get("since"), now); err != nil {
		return f, fmt.Errorf("invalid since: %w", err)
	}
	if f.Until, err = parseTime(q.Get("until"), now); err != nil {
		return f, fmt.Errorf("invalid until: %w", err)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	return f, nil
}

func parseTime(v string, now time.Time) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return now.Add(-d), nil
	}
	return time.Parse(time.RFC3339Nano, v)
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
