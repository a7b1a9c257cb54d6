// Package dispatch runs event handlers and state hooks with panic recovery.
//
// The Executor is shared by the event bus and the state manager. It turns a
// panicking call into a Result carrying the panic value and stack, so a single
// misbehaving handler or state cannot take down the loop goroutine.
//
// # Usage
//
//	exec := dispatch.NewExecutor(
//	    dispatch.WithPanicHandler(func(label string, v any, stack []byte) {
//	        logger.Error("panic", "label", label, "value", v)
//	    }),
//	)
//	result := exec.Execute("AttributeChanged/ui", func() error {
//	    return handler.Handle(ev)
//	})
//	if !result.IsSuccess() {
//	    // report
//	}
package dispatch
