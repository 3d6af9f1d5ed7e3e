package event

import (
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/Byte-Grain/BG-WebMacOS-sub001/internal/event/topic"
)

// Event is one emitted message.
type Event struct {
	// ID uniquely identifies this emission.
	ID string

	// Name is the fully qualified event name.
	Name topic.Name

	// Payload is the emitted data. It may be nil.
	Payload any

	// Timestamp is when the event was created.
	Timestamp time.Time

	// Source identifies the emitting component or app.
	Source string

	// Metadata carries free-form annotations.
	Metadata map[string]any
}

// EmitOption customizes an event before delivery.
type EmitOption func(*Event)

// WithSource sets the event source.
func WithSource(source string) EmitOption {
	return func(e *Event) {
		e.Source = source
	}
}

// WithMetadata sets a single metadata entry.
func WithMetadata(key string, value any) EmitOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}

// WithMetadataMap copies every entry of m into the event metadata.
func WithMetadataMap(m map[string]any) EmitOption {
	return func(e *Event) {
		if len(m) == 0 {
			return
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]any, len(m))
		}
		maps.Copy(e.Metadata, m)
	}
}

// WithID overrides the generated event ID.
func WithID(id string) EmitOption {
	return func(e *Event) {
		if id != "" {
			e.ID = id
		}
	}
}

// WithTimestamp overrides the event timestamp.
func WithTimestamp(t time.Time) EmitOption {
	return func(e *Event) {
		if !t.IsZero() {
			e.Timestamp = t
		}
	}
}

// NewEvent creates an event with a fresh ID and the current time.
func NewEvent(name topic.Name, payload any, opts ...EmitOption) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Name:      name,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(&ev)
	}
	return ev
}

// Meta returns the metadata value for key, or nil.
func (e Event) Meta(key string) any {
	if e.Metadata == nil {
		return nil
	}
	return e.Metadata[key]
}
