package middleware

import (
	"maps"
	"time"
)

// Context is the mutable per-dispatch state shared by every stage.
type Context struct {
	// EventName is the event being dispatched.
	EventName string

	// EventData is the event payload. Stages may replace it.
	EventData any

	// Source identifies the emitter.
	Source string

	// Timestamp is when the dispatch started.
	Timestamp time.Time

	// Metadata is free-form per-dispatch state for stages.
	Metadata map[string]any

	// Result is the value produced by the invoker, or by a stage that
	// short-circuited with a cached value.
	Result any

	// Err is the failure being handled while error stages run.
	Err error

	// Handled is set by an error stage to stop the error from propagating.
	Handled bool

	// ShortCircuited is set when a before stage did not call next.
	ShortCircuited bool
}

// NewContext creates a Context for one dispatch.
func NewContext(name string, data any, source string, metadata map[string]any) *Context {
	md := make(map[string]any, len(metadata))
	maps.Copy(md, metadata)
	return &Context{
		EventName: name,
		EventData: data,
		Source:    source,
		Timestamp: time.Now(),
		Metadata:  md,
	}
}

// Set stores a metadata value.
func (c *Context) Set(key string, value any) {
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	c.Metadata[key] = value
}

// Get returns a metadata value.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.Metadata[key]
	return v, ok
}

// GetString returns a metadata value as a string, or "".
func (c *Context) GetString(key string) string {
	s, _ := c.Metadata[key].(string)
	return s
}

// Elapsed returns the time since the dispatch started.
func (c *Context) Elapsed() time.Duration {
	return time.Since(c.Timestamp)
}
