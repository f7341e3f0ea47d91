package hubloop

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Standard errors.
var (
	// ErrUnsupported is returned by capabilities the host loop cannot express.
	// It matches [errors.ErrUnsupported].
	ErrUnsupported = fmt.Errorf("hubloop: unsupported operation: %w", errors.ErrUnsupported)

	// ErrDestroyed is returned when using an adapter after Destroy.
	ErrDestroyed = errors.New("hubloop: adapter destroyed")

	// ErrNoHost is returned by New without a usable host loop.
	ErrNoHost = errors.New("hubloop: no host loop")

	// ErrRelayExists is returned by NewSignalRelay while another relay is live.
	ErrRelayExists = errors.New("hubloop: signal relay already exists")

	// ErrRelayClosed is returned when using a closed signal relay.
	ErrRelayClosed = errors.New("hubloop: signal relay closed")

	// ErrSignalsUnavailable is returned by the Signal and Child factories of an
	// adapter that does not own the signal relay.
	ErrSignalsUnavailable = errors.New("hubloop: signal relay attached to another adapter")
)

// ArgumentError reports invalid construction parameters.
type ArgumentError struct {
	Cause   error
	Op      string
	Message string
}

// Error implements the error interface.
func (e *ArgumentError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "invalid argument"
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return "hubloop: " + msg
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *ArgumentError) Unwrap() error {
	return e.Cause
}

func argumentErrorf(op, format string, args ...any) *ArgumentError {
	return &ArgumentError{Op: op, Message: fmt.Sprintf(format, args...)}
}

// CallbackError wraps a failure (returned error or panic) of a watcher or
// run-callback function. It is always intercepted, and given to the error
// handler, never propagated into the host loop.
type CallbackError struct {
	// Watcher is nil for run-callbacks.
	Watcher Watcher
	Cause   error
	Kind    Kind
}

// Error implements the error interface.
func (e *CallbackError) Error() string {
	if e.Watcher == nil {
		return fmt.Sprintf("hubloop: callback failed: %v", e.Cause)
	}
	return fmt.Sprintf("hubloop: %s callback failed: %v", e.Kind, e.Cause)
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *CallbackError) Unwrap() error {
	return e.Cause
}

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value, if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// SystemError reports an OS-level failure, rendered as "op: strerror".
type SystemError struct {
	Op    string
	Errno unix.Errno
}

// Error implements the error interface.
func (e *SystemError) Error() string {
	return e.Op + ": " + e.Errno.Error()
}

// Unwrap returns the errno for use with [errors.Is].
func (e *SystemError) Unwrap() error {
	return e.Errno
}

// newSystemError converts err into a *SystemError, if it carries an errno.
func newSystemError(op string, err error) error {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return &SystemError{Op: op, Errno: errno}
	}
	return fmt.Errorf("hubloop: %s: %w", op, err)
}
