package hubloop

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrorHandler receives callback failures, and system errors raised on the
// loop goroutine. The context is the failing watcher, or nil.
type ErrorHandler interface {
	HandleError(context Watcher, err error)
}

// ErrorHandlerFunc adapts a function to an [ErrorHandler].
type ErrorHandlerFunc func(context Watcher, err error)

// HandleError calls f(context, err).
func (f ErrorHandlerFunc) HandleError(context Watcher, err error) {
	f(context, err)
}

// SetErrorHandler replaces the error handler. A nil handler restores the
// default (diagnostics, then quit the current run).
func (a *Adapter) SetErrorHandler(handler ErrorHandler) {
	a.errorHandler = handler
}

// HandleError delegates to the installed error handler. If the handler
// panics, the default handler is used instead.
func (a *Adapter) HandleError(context Watcher, err error) {
	if err == nil {
		return
	}

	handler := a.errorHandler
	if handler == nil {
		a.defaultHandleError(context, err)
		return
	}

	if perr := callErrorHandler(handler, context, err); perr != nil {
		a.logger.Warning().
			Str("adapter", a.id.String()).
			Err(perr).
			Log("error handler panicked, using default")
		a.defaultHandleError(context, errors.Join(err, perr))
	}
}

func callErrorHandler(handler ErrorHandler, context Watcher, err error) (perr error) {
	defer func() {
		if r := recover(); r != nil {
			perr = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	handler.HandleError(context, err)
	return nil
}

// handleSyserr reports an OS failure, raised on the loop goroutine.
func (a *Adapter) handleSyserr(op string, err error) {
	a.HandleError(nil, newSystemError(op, err))
}

// defaultHandleError prints diagnostics, records err for Run, and quits the
// current run.
func (a *Adapter) defaultHandleError(context Watcher, err error) {
	category := "callback"
	if context != nil {
		category = context.Kind().String()
	}

	a.printDiagnostics(category, context, err)

	a.logger.Err().
		Str("adapter", a.id.String()).
		Str("category", category).
		Err(err).
		Log("unhandled error")

	a.runErr = errors.Join(a.runErr, err)
	a.quit()
}

// printDiagnostics writes err in full, including any panic stack, unless the
// category's rate limit is exceeded.
func (a *Adapter) printDiagnostics(category string, context Watcher, err error) {
	if _, ok := a.limiter.Allow(category); !ok {
		a.suppressed[category]++
		return
	}

	w := a.diagnostics
	if n := a.suppressed[category]; n > 0 {
		delete(a.suppressed, category)
		_, _ = fmt.Fprintf(w, "hubloop: %d %s error(s) suppressed\n", n, category)
	}

	if context != nil {
		_, _ = fmt.Fprintf(w, "hubloop: error in %v: %v\n", context, err)
	} else {
		_, _ = fmt.Fprintf(w, "hubloop: error: %v\n", err)
	}

	var panicErr *PanicError
	if errors.As(err, &panicErr) && len(panicErr.Stack) != 0 {
		_, _ = w.Write(panicErr.Stack)
	}
}

// invoke calls fn, converting a panic into a *PanicError.
func (a *Adapter) invoke(fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
