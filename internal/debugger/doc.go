// Package debugger records dispatch spans for diagnostics.
//
// A Recorder implements trace.Tracer. The bus, the middleware pipeline and the
// router open spans through it; a span started from a context that already
// carries a span becomes its child, so one emit or dispatch produces a tree:
//
//	pipeline window:open
//	├── stage logging.before
//	│   └── stage validation
//	├── emit window:open
//	│   └── handler window:open
//	└── dispatch window:open
//	    └── target window:open
//
// Finished spans are kept in a bounded ring buffer and pushed to observers.
// The recorder only observes: it never changes results or ordering, and a
// panicking observer is recovered.
package debugger
