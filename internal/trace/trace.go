// Package trace defines the span interface the bus, pipeline and router report
// dispatch work through. Implementations must be pure observers: they may record
// but must never change the outcome or ordering of the work being traced.
package trace

import "context"

// Kind classifies a span.
type Kind string

const (
	// KindEmit covers one bus emission including all of its handlers.
	KindEmit Kind = "emit"

	// KindHandler covers one bus handler invocation.
	KindHandler Kind = "handler"

	// KindPipeline covers one middleware pipeline execution.
	KindPipeline Kind = "pipeline"

	// KindStage covers one middleware stage.
	KindStage Kind = "stage"

	// KindDispatch covers one router dispatch across all matched routes.
	KindDispatch Kind = "dispatch"

	// KindTarget covers one target invocation including retries.
	KindTarget Kind = "target"
)

// Span is one unit of traced work.
type Span interface {
	// ID returns the span identifier.
	ID() string

	// SetAttr attaches an attribute to the span.
	SetAttr(key string, value any)

	// End finishes the span. err is nil on success.
	End(err error)
}

// Tracer starts spans. The returned context carries the new span so that
// spans started from it become children.
type Tracer interface {
	Start(ctx context.Context, kind Kind, name string, attrs map[string]any) (context.Context, Span)
}

// Nop returns a Tracer that records nothing.
func Nop() Tracer {
	return nopTracer{}
}

type nopTracer struct{}

func (nopTracer) Start(ctx context.Context, _ Kind, _ string, _ map[string]any) (context.Context, Span) {
	return ctx, nopSpan{}
}

type nopSpan struct{}

func (nopSpan) ID() string          { return "" }
func (nopSpan) SetAttr(string, any) {}
func (nopSpan) End(error)           {}

// OrNop returns t, or a no-op tracer when t is nil.
func OrNop(t Tracer) Tracer {
	if t == nil {
		return Nop()
	}
	return t
}
