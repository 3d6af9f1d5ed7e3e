package debugger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/pretty"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/trace"
)

// DefaultCapacity is the ring size used when none is given.
const DefaultCapacity = 1000

// Recorder keeps the most recent finished spans. It implements trace.Tracer.
type Recorder struct {
	enabled atomic.Bool
	logger  zerolog.Logger
	now     func() time.Time

	recorded atomic.Uint64
	evicted  atomic.Uint64

	mu    sync.Mutex
	ring  []SpanRecord
	start int
	size  int

	observers  map[int]func(SpanRecord)
	nextObsID  int
	observerMu sync.RWMutex
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger for recovered observer panics.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Recorder) {
		r.logger = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates an enabled Recorder keeping at most capacity spans.
func New(capacity int, opts ...Option) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Recorder{
		logger:    zerolog.Nop(),
		now:       time.Now,
		ring:      make([]SpanRecord, capacity),
		observers: make(map[int]func(SpanRecord)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.enabled.Store(true)
	return r
}

// Start implements trace.Tracer. While disabled it returns ctx unchanged and
// a span that records nothing.
func (r *Recorder) Start(ctx context.Context, kind trace.Kind, name string, attrs map[string]any) (context.Context, trace.Span) {
	if !r.enabled.Load() {
		return trace.Nop().Start(ctx, kind, name, attrs)
	}

	s := &span{
		rec: r,
		record: SpanRecord{
			ID:    uuid.NewString(),
			Kind:  kind,
			Name:  name,
			Start: r.now(),
			Attrs: maps.Clone(attrs),
		},
	}
	if parent := spanFrom(ctx); parent != nil && parent.rec == r {
		s.record.ParentID = parent.record.ID
		s.record.TraceID = parent.record.TraceID
	} else {
		s.record.TraceID = s.record.ID
	}
	return context.WithValue(ctx, spanKey{}, s), s
}

func (r *Recorder) finish(rec SpanRecord) {
	r.recorded.Add(1)

	r.mu.Lock()
	r.pushLocked(rec)
	r.mu.Unlock()

	r.observerMu.RLock()
	observers := make([]func(SpanRecord), 0, len(r.observers))
	for _, fn := range r.observers {
		observers = append(observers, fn)
	}
	r.observerMu.RUnlock()

	for _, fn := range observers {
		r.notify(fn, rec)
	}
}

func (r *Recorder) notify(fn func(SpanRecord), rec SpanRecord) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error().Interface("panic", v).Str("span", rec.ID).Msg("span observer panicked")
		}
	}()
	fn(rec)
}

func (r *Recorder) pushLocked(rec SpanRecord) {
	capacity := len(r.ring)
	if r.size < capacity {
		r.ring[(r.start+r.size)%capacity] = rec
		r.size++
		return
	}
	r.ring[r.start] = rec
	r.start = (r.start + 1) % capacity
	r.evicted.Add(1)
}

// snapshot returns buffered spans oldest-first.
func (r *Recorder) snapshot() []SpanRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SpanRecord, r.size)
	for i := range r.size {
		out[i] = r.ring[(r.start+i)%len(r.ring)]
	}
	return out
}

// Subscribe registers fn to receive every finished span. The returned
// function removes it.
func (r *Recorder) Subscribe(fn func(SpanRecord)) (cancel func()) {
	r.observerMu.Lock()
	defer r.observerMu.Unlock()

	id := r.nextObsID
	r.nextObsID++
	r.observers[id] = fn

	return func() {
		r.observerMu.Lock()
		delete(r.observers, id)
		r.observerMu.Unlock()
	}
}

// Enable resumes recording.
func (r *Recorder) Enable() {
	r.enabled.Store(true)
}

// Disable stops recording new spans. Spans already started still finish.
func (r *Recorder) Disable() {
	r.enabled.Store(false)
}

// IsEnabled reports whether new spans are recorded.
func (r *Recorder) IsEnabled() bool {
	return r.enabled.Load()
}

// Clear drops every buffered span.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.ring)
	r.start = 0
	r.size = 0
}

// Len returns the number of buffered spans.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the ring size.
func (r *Recorder) Capacity() int {
	return len(r.ring)
}

// Stats reports recorder counters.
type Stats struct {
	Enabled  bool   `json:"enabled"`
	Buffered int    `json:"buffered"`
	Capacity int    `json:"capacity"`
	Recorded uint64 `json:"recorded"`
	Evicted  uint64 `json:"evicted"`
}

// Stats returns a snapshot of the recorder counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Enabled:  r.IsEnabled(),
		Buffered: r.Len(),
		Capacity: r.Capacity(),
		Recorded: r.recorded.Load(),
		Evicted:  r.evicted.Load(),
	}
}

// Filter selects buffered spans. Zero fields match everything.
type Filter struct {
	// Level is the minimum level.
	Level Level

	Kind trace.Kind

	// Text is matched case-insensitively against the name, error and attribute values.
	Text string

	// Since and Until bound the span start time.
	Since time.Time
	Until time.Time

	TraceID string

	// Limit keeps only the most recent matches when positive.
	Limit int
}

func (f Filter) matches(rec SpanRecord) bool {
	if rec.Level < f.Level {
		return false
	}
	if f.Kind != "" && rec.Kind != f.Kind {
		return false
	}
	if f.TraceID != "" && rec.TraceID != f.TraceID {
		return false
	}
	if !f.Since.IsZero() && rec.Start.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && rec.Start.After(f.Until) {
		return false
	}
	if f.Text != "" && !containsText(rec, strings.ToLower(f.Text)) {
		return false
	}
	return true
}

func containsText(rec SpanRecord, needle string) bool {
	if strings.Contains(strings.ToLower(rec.Name), needle) ||
		strings.Contains(strings.ToLower(rec.Error), needle) {
		return true
	}
	for k, v := range rec.Attrs {
		if strings.Contains(strings.ToLower(k), needle) ||
			strings.Contains(strings.ToLower(fmt.Sprint(v)), needle) {
			return true
		}
	}
	return false
}

// Query returns the buffered spans matching f, oldest-first.
func (r *Recorder) Query(f Filter) []SpanRecord {
	all := r.snapshot()
	out := make([]SpanRecord, 0, len(all))
	for _, rec := range all {
		if f.matches(rec) {
			out = append(out, rec)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Node is a span with its children.
type Node struct {
	Span     SpanRecord `json:"span"`
	Children []*Node    `json:"children,omitempty"`
}

// Tree rebuilds the span tree of one trace. Spans whose parent was evicted
// become roots. Siblings are ordered by start time.
func (r *Recorder) Tree(traceID string) []*Node {
	spans := r.Query(Filter{TraceID: traceID})
	nodes := make(map[string]*Node, len(spans))
	for _, rec := range spans {
		nodes[rec.ID] = &Node{Span: rec}
	}

	var roots []*Node
	for _, rec := range spans {
		n := nodes[rec.ID]
		if parent, ok := nodes[rec.ParentID]; ok && rec.ParentID != "" {
			parent.Children = append(parent.Children, n)
		} else {
			roots = append(roots, n)
		}
	}

	sortNodes(roots)
	return roots
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Span.Start.Before(nodes[j].Span.Start)
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// Export writes the spans matching f as a JSON array.
func (r *Recorder) Export(w io.Writer, f Filter, indent bool) error {
	data, err := json.Marshal(r.Query(f))
	if err != nil {
		return fmt.Errorf("encode spans: %w", err)
	}
	if indent {
		data = pretty.Pretty(data)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write spans: %w", err)
	}
	return nil
}
