// Package engine wires the bus, the middleware pipeline, the router and the
// span recorder into one explicit object.
//
// There is no package-level state: every shell component that emits or routes
// events is handed an *Engine (or one of its parts). Emit runs the pipeline
// around bus delivery followed by router dispatch; Dispatch runs it around the
// router alone.
//
//	eng, err := engine.New(cfg, engine.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	eng.Bus().OnFunc("window:open", onOpen)
//	err = eng.Emit(ctx, "window:open", payload, event.WithSource("desktop"))
package engine
