package eventloop

import (
	"sync/atomic"
)

// Status represents the status of an EventLoop. There is no separate PAUSED
// value: [Loop.Status] reports the blocked-in-poll substate (StatusSleeping)
// as StatusRunning and every other value as stored; RETURN is represented by
// StatusReturning and StatusReturned.
type Status uint64

const (
	// StatusAwake indicates the loop has been created but Run has not been called.
	StatusAwake Status = 0
	// StatusDone indicates the loop finished via Done() or EXITONEMPTY.
	StatusDone Status = 1
	// StatusSleeping indicates the loop is blocked in the OS poll primitive.
	StatusSleeping Status = 2
	// StatusRunning indicates the loop is actively dispatching a turn.
	StatusRunning Status = 3
	// StatusReturning indicates Return() was called; terminal once drained.
	StatusReturning Status = 4
	// StatusReturned is the terminal state reached after StatusReturning drains.
	StatusReturned Status = 5
)

// String returns a human-readable representation of the state.
func (s Status) String() string {
	switch s {
	case StatusAwake:
		return "Awake"
	case StatusRunning:
		return "Running"
	case StatusSleeping:
		return "Sleeping"
	case StatusReturning:
		return "Returning"
	case StatusReturned:
		return "Returned"
	case StatusDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// FastState is a lock-free state machine with cache-line padding, used for
// the loop's hot-path status transitions.
type FastState struct { // betteralign:ignore
	_ [64]byte      // cache line padding (before value) //nolint:unused
	v atomic.Uint64 // state value
	_ [56]byte      // pad to complete cache line //nolint:unused
}

// NewFastState creates a new state machine in the Awake state.
func NewFastState() *FastState {
	s := &FastState{}
	s.v.Store(uint64(StatusAwake))
	return s
}

// Load returns the current state atomically.
func (s *FastState) Load() Status {
	return Status(s.v.Load())
}

// Store atomically stores a new state.
func (s *FastState) Store(state Status) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to another.
func (s *FastState) TryTransition(from, to Status) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// IsTerminal returns true if the current state is terminal (Done or Returned).
func (s *FastState) IsTerminal() bool {
	switch s.Load() {
	case StatusDone, StatusReturned:
		return true
	default:
		return false
	}
}

// IsRunning returns true if the loop is currently dispatching or blocked in poll.
func (s *FastState) IsRunning() bool {
	switch s.Load() {
	case StatusRunning, StatusSleeping, StatusReturning:
		return true
	default:
		return false
	}
}

// CanAcceptWork returns true if the loop can accept new registrations.
func (s *FastState) CanAcceptWork() bool {
	switch s.Load() {
	case StatusAwake, StatusRunning, StatusSleeping:
		return true
	default:
		return false
	}
}
