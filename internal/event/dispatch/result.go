package dispatch

import (
	"context"
	"time"
)

// Func is a unit of work run by the executor.
type Func func(ctx context.Context) error

// Outcome classifies how a Func run ended.
type Outcome uint8

const (
	OutcomeOK Outcome = iota
	OutcomeFailed
	OutcomePanicked
	OutcomeTimedOut
	OutcomeSkipped
)

var outcomeNames = [...]string{"ok", "failed", "panicked", "timed_out", "skipped"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// Result is what the executor reports for one Func run.
type Result struct {
	Success  bool
	Error    error
	Duration time.Duration

	// Set when the Func panicked; Error then carries a "panic: ..." message.
	Panicked   bool
	PanicValue any
	PanicStack []byte

	// Set by Race when it stopped waiting.
	TimedOut bool
	// Set when ctx was already done and the Func never ran.
	Skipped bool
}

// Outcome reports which of the terminal states r is in.
func (r Result) Outcome() Outcome {
	switch {
	case r.Skipped:
		return OutcomeSkipped
	case r.Panicked:
		return OutcomePanicked
	case r.TimedOut:
		return OutcomeTimedOut
	case r.Error != nil || !r.Success:
		return OutcomeFailed
	default:
		return OutcomeOK
	}
}

// OK is shorthand for r.Outcome() == OutcomeOK.
func (r Result) OK() bool { return r.Outcome() == OutcomeOK }

// PanicHandler observes a recovered panic. label names the work that panicked.
type PanicHandler func(label string, value any, stack []byte)

func ignorePanic(string, any, []byte) {}
