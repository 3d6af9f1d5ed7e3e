package debugger

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/trace"
)

// Level is the severity of a recorded span.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, ok := ParseLevel(string(text))
	if !ok {
		return fmt.Errorf("unknown level %q", text)
	}
	*l = parsed
	return nil
}

// ParseLevel parses a level name. The empty string is LevelDebug.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	default:
		return LevelDebug, false
	}
}

// SpanRecord is a finished span.
type SpanRecord struct {
	ID       string         `json:"id"`
	ParentID string         `json:"parent_id,omitempty"`
	TraceID  string         `json:"trace_id"`
	Kind     trace.Kind     `json:"kind"`
	Name     string         `json:"name"`
	Level    Level          `json:"level"`
	Start    time.Time      `json:"start"`
	End      time.Time      `json:"end"`
	Duration time.Duration  `json:"duration"`
	Error    string         `json:"error,omitempty"`
	Attrs    map[string]any `json:"attrs,omitempty"`
}

// levelFor derives the level of a finished span.
func levelFor(kind trace.Kind, err error) Level {
	if err != nil {
		return LevelError
	}
	switch kind {
	case trace.KindEmit, trace.KindDispatch, trace.KindPipeline:
		return LevelInfo
	default:
		return LevelDebug
	}
}

type spanKey struct{}

// span is the live trace.Span handed to instrumented code.
type span struct {
	rec *Recorder

	mu     sync.Mutex
	record SpanRecord
	ended  bool
}

func (s *span) ID() string {
	return s.record.ID
}

func (s *span) SetAttr(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	if s.record.Attrs == nil {
		s.record.Attrs = make(map[string]any)
	}
	s.record.Attrs[key] = value
}

// End finishes the span. Calls after the first are ignored.
func (s *span) End(err error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	rec := s.record
	rec.Attrs = maps.Clone(s.record.Attrs)
	s.mu.Unlock()

	rec.End = s.rec.now()
	rec.Duration = rec.End.Sub(rec.Start)
	rec.Level = levelFor(rec.Kind, err)
	if err != nil {
		rec.Error = err.Error()
	}
	s.rec.finish(rec)
}

func spanFrom(ctx context.Context) *span {
	s, _ := ctx.Value(spanKey{}).(*span)
	return s
}
