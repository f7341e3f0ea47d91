package hostloop

import (
	"strings"
)

// maxFDs is the initial size of the directly indexed fd table.
const maxFDs = 1024

// maxFDLimit is the maximum FD value supported for dynamic growth.
const maxFDLimit = 100000000

// IOEvents represents the type of I/O events to monitor.
type IOEvents uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

// String renders the set bits, e.g. "READ|WRITE".
func (e IOEvents) String() string {
	var parts []string
	if e&EventRead != 0 {
		parts = append(parts, "READ")
	}
	if e&EventWrite != 0 {
		parts = append(parts, "WRITE")
	}
	if e&EventError != 0 {
		parts = append(parts, "ERROR")
	}
	if e&EventHangup != 0 {
		parts = append(parts, "HANGUP")
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// ioCallback receives the ready events of one fd.
type ioCallback func(IOEvents)

// fdInfo is a slot of the fd table, unused while callback is nil.
type fdInfo struct {
	callback ioCallback
	events   IOEvents
}

// growFDs returns fds, doubled until it fits fd.
func growFDs(fds []fdInfo, fd int) []fdInfo {
	if fd < len(fds) {
		return fds
	}
	size := max(len(fds), 1)
	for size <= fd {
		size *= 2
	}
	size = min(size, maxFDLimit)
	grown := make([]fdInfo, size)
	copy(grown, fds)
	return grown
}
