package hostloop

import (
	"sync/atomic"
)

// State represents the current state of the loop.
//
// State Machine:
//
//	StateAwake (0) → StateRunning (3)       [ProcessEvents/Exec entry]
//	StateRunning (3) → StateSleeping (2)    [blocking poll via CAS]
//	StateSleeping (2) → StateRunning (3)    [poll return via CAS]
//	StateRunning (3) → StateAwake (0)       [outermost ProcessEvents/Exec exit]
//	any → StateTerminated (1)               [Close()]
//	StateTerminated (1) → (terminal)
//
// Use TryTransition (CAS) for temporary states, Swap for the terminal state.
type State uint64

const (
	// StateAwake indicates the loop exists but is not being pumped.
	StateAwake State = 0
	// StateTerminated indicates the loop has been closed.
	StateTerminated State = 1
	// StateSleeping indicates the loop is blocked in poll waiting for events.
	StateSleeping State = 2
	// StateRunning indicates the loop is dispatching.
	StateRunning State = 3
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state machine with cache-line padding.
type fastState struct { // betteralign:ignore
	_ [sizeOfCacheLine]byte                      //nolint:unused
	v atomic.Uint64                              // State value
	_ [sizeOfCacheLine - sizeOfAtomicUint64]byte //nolint:unused
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint64(StateAwake))
	return s
}

// Load returns the current state atomically.
func (s *fastState) Load() State {
	return State(s.v.Load())
}

// Swap stores a new state, returning the previous one.
func (s *fastState) Swap(state State) State {
	return State(s.v.Swap(uint64(state)))
}

// TryTransition attempts to atomically transition from one state to another.
// Returns true if the transition was successful.
func (s *fastState) TryTransition(from, to State) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// IsTerminal returns true if the current state is terminal (Terminated).
func (s *fastState) IsTerminal() bool {
	return s.Load() == StateTerminated
}

// These constants are verified via unit tests.
const (
	// sizeOfCacheLine is the size of a CPU cache line.
	// 128 satisfies both x86-64 (64) and Apple Silicon (128).
	sizeOfCacheLine = 128

	// sizeOfAtomicUint64 is the size of an atomic.Uint64 variable.
	sizeOfAtomicUint64 = 8
)
