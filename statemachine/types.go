// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package statemachine

// StateID identifies a state within a single [Sm]. Zero is reserved: it
// means "no override" when returned via a *StateID out-param, and is never
// a valid id to insert a state under.
type StateID uint64

// Status is the result of running one state function, sub-machine, or
// cleanup state function, per spec.md §4.3.
type Status int

const (
	// StatusNext moves to the next state: either the one written to the
	// out-param, or (if left unset) the state definitionally following the
	// current one, when that's legal.
	StatusNext Status = iota
	// StatusPrev returns to the previously executed state.
	StatusPrev
	// StatusDone terminates the machine successfully.
	StatusDone
	// StatusWait suspends the machine; the next Run call re-enters the same
	// state function with the frame preserved exactly.
	StatusWait
	// StatusErrorState terminates the machine with failure; cleanup runs
	// for every visited state that declared one.
	StatusErrorState
	// StatusErrorNoNext is returned when NEXT left the out-param unset in a
	// state that declares an allowed-next set (without FlagLinearEnd), or
	// PREV was requested with no prior state. An unset out-param on the last
	// state in insertion order otherwise finishes the machine as StatusDone.
	StatusErrorNoNext
	// StatusErrorBadNext is returned when NEXT named a state outside the
	// current state's declared allowed-next set.
	StatusErrorBadNext
	// StatusErrorSelfNext is returned when NEXT named the current state and
	// self-transition isn't permitted (the default).
	StatusErrorSelfNext
)

// String returns the status's name.
func (s Status) String() string {
	switch s {
	case StatusNext:
		return "NEXT"
	case StatusPrev:
		return "PREV"
	case StatusDone:
		return "DONE"
	case StatusWait:
		return "WAIT"
	case StatusErrorState:
		return "ERROR_STATE"
	case StatusErrorNoNext:
		return "ERROR_NO_NEXT"
	case StatusErrorBadNext:
		return "ERROR_BAD_NEXT"
	case StatusErrorSelfNext:
		return "ERROR_SELF_NEXT"
	default:
		return "UNKNOWN"
	}
}

// IsError reports whether s is one of the ERROR_* terminal statuses.
func (s Status) IsError() bool {
	switch s {
	case StatusErrorState, StatusErrorNoNext, StatusErrorBadNext, StatusErrorSelfNext:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s ends a Run call outright (as opposed to
// WAIT, which merely suspends it).
func (s Status) IsTerminal() bool {
	return s == StatusDone || s.IsError()
}

// CleanupReason is passed to a [CleanupStateFunc], naming why cleanup was
// triggered.
type CleanupReason int

const (
	// CleanupDone means the machine finished normally; cleanup still runs
	// for completeness when explicitly requested via Reset.
	CleanupDone CleanupReason = iota
	// CleanupReset means an explicit, non-cancelling Reset was requested.
	CleanupReset
	// CleanupCancel means an explicit Reset(CleanupCancel) was requested; a
	// cleanup pass already in progress when it arrives is aborted rather
	// than run to completion.
	CleanupCancel
	// CleanupError means a state returned one of the ERROR_* statuses.
	CleanupError
)

// String returns the reason's name.
func (r CleanupReason) String() string {
	switch r {
	case CleanupDone:
		return "DONE"
	case CleanupReset:
		return "RESET"
	case CleanupCancel:
		return "CANCEL"
	case CleanupError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Flags configures a [Sm]'s transition rules.
type Flags uint32

const (
	// FlagNone applies the default transition rules.
	FlagNone Flags = 0
	// FlagLinearEnd allows StatusNext with no explicit next-state to fall
	// through to the definitionally-following state even when the current
	// state has a declared allowed-next set.
	FlagLinearEnd Flags = 1 << iota
	// FlagDoNotSelfTrans, when set, permits a state to transition to
	// itself; the default (cleared) treats that as StatusErrorSelfNext.
	FlagDoNotSelfTrans
)

// TraceEvent identifies the kind of tracing notification delivered to a
// [TraceFunc].
type TraceEvent int

const (
	TraceMachineEnter TraceEvent = iota
	TraceMachineExit
	TraceStateStart
	TracePreStart
	TracePostStart
	TraceCleanup
)

// String returns the trace event's name.
func (e TraceEvent) String() string {
	switch e {
	case TraceMachineEnter:
		return "MACHINE_ENTER"
	case TraceMachineExit:
		return "MACHINE_EXIT"
	case TraceStateStart:
		return "STATE_START"
	case TracePreStart:
		return "PRE_START"
	case TracePostStart:
		return "POST_START"
	case TraceCleanup:
		return "CLEANUP"
	default:
		return "UNKNOWN"
	}
}

// TraceFunc receives one notification per traced transition, along with the
// full descriptor path at the time of the event (see [Sm.DescrFull]).
type TraceFunc func(event TraceEvent, descr string)

// StateFunc is a leaf state's implementation. It may write a non-zero
// StateID to next to force a specific transition on StatusNext.
type StateFunc func(userData any, next *StateID) Status

// PreFunc runs before a sub-state-machine state's sub-machine. Returning
// false skips the sub-machine entirely: the parent transitions using the
// status/next it wrote. Returning true runs the sub-machine as normal.
type PreFunc func(userData any, status *Status, next *StateID) bool

// PostFunc runs after a sub-state-machine state's sub-machine finishes (not
// on WAIT). Its return value becomes the parent's status for this state;
// next may force a specific transition.
type PostFunc func(userData any, subStatus Status, next *StateID) Status

// CleanupStateFunc is a cleanup machine's leaf state implementation.
type CleanupStateFunc func(userData any, reason CleanupReason, next *StateID) Status
