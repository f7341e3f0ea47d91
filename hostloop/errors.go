package hostloop

import (
	"errors"
)

// Standard errors.
var (
	// ErrLoopTerminated is returned when operations are attempted on a closed loop.
	ErrLoopTerminated = errors.New("hostloop: loop has been terminated")

	// ErrNotLoopThread is returned when the loop is pumped from a goroutine
	// other than the one currently running it.
	ErrNotLoopThread = errors.New("hostloop: loop is running on another goroutine")

	// ErrNotifierClosed is returned when enabling a closed Notifier.
	ErrNotifierClosed = errors.New("hostloop: notifier closed")

	ErrFDOutOfRange        = errors.New("hostloop: fd out of range (max 100000000)")
	ErrFDAlreadyRegistered = errors.New("hostloop: fd already registered")
	ErrFDNotRegistered     = errors.New("hostloop: fd not registered")
	ErrPollerClosed        = errors.New("hostloop: poller closed")
)
