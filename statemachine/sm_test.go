// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package statemachine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	stateA StateID = iota + 1
	stateB
	stateC
	stateD
)

func TestSm_LinearRunToDone(t *testing.T) {
	t.Parallel()

	sm := NewSm("linear", FlagLinearEnd)
	var order []string
	require.NoError(t, sm.InsertState(stateA, "A", func(any, *StateID) Status {
		order = append(order, "A")
		return StatusNext
	}, nil, nil))
	require.NoError(t, sm.InsertState(stateB, "B", func(any, *StateID) Status {
		order = append(order, "B")
		return StatusNext
	}, nil, nil))
	require.NoError(t, sm.InsertState(stateC, "C", func(any, *StateID) Status {
		order = append(order, "C")
		return StatusDone
	}, nil, nil))

	status := sm.Run(nil)
	require.Equal(t, StatusDone, status)
	require.Equal(t, []string{"A", "B", "C"}, order)
}

// TestSm_LinearEnd_FallsOffEndAsDone covers the case where the last
// declared state in a FlagLinearEnd machine returns StatusNext without
// setting an explicit next id and there is no further state in the
// declared order: the machine finishes as StatusDone rather than
// ERROR_NO_NEXT.
func TestSm_LinearEnd_FallsOffEndAsDone(t *testing.T) {
	t.Parallel()

	sm := NewSm("linear-fallthrough", FlagLinearEnd)
	require.NoError(t, sm.InsertState(stateA, "A", func(any, *StateID) Status {
		return StatusNext
	}, nil, nil))
	require.NoError(t, sm.InsertState(stateB, "B", func(any, *StateID) Status {
		return StatusNext
	}, nil, nil))

	require.Equal(t, StatusDone, sm.Run(nil))
}

func TestSm_Wait_ResumesSameState(t *testing.T) {
	t.Parallel()

	sm := NewSm("wait", FlagLinearEnd)
	calls := 0
	require.NoError(t, sm.InsertState(stateA, "A", func(any, *StateID) Status {
		calls++
		if calls < 3 {
			return StatusWait
		}
		return StatusDone
	}, nil, nil))

	require.Equal(t, StatusWait, sm.Run(nil))
	require.Equal(t, StatusWait, sm.Run(nil))
	require.Equal(t, StatusDone, sm.Run(nil))
	require.Equal(t, 3, calls)
}

func TestSm_SelfTransition_ErrorsByDefault(t *testing.T) {
	t.Parallel()

	sm := NewSm("self", FlagNone)
	require.NoError(t, sm.InsertState(stateA, "A", func(_ any, next *StateID) Status {
		*next = stateA
		return StatusNext
	}, nil, nil))

	require.Equal(t, StatusErrorSelfNext, sm.Run(nil))
}

func TestSm_SelfTransition_AllowedWithFlag(t *testing.T) {
	t.Parallel()

	sm := NewSm("self-ok", FlagDoNotSelfTrans)
	calls := 0
	require.NoError(t, sm.InsertState(stateA, "A", func(_ any, next *StateID) Status {
		calls++
		if calls < 2 {
			*next = stateA
			return StatusNext
		}
		return StatusDone
	}, nil, nil))

	require.Equal(t, StatusDone, sm.Run(nil))
	require.Equal(t, 2, calls)
}

func TestSm_BadNext_OutsideAllowedSet(t *testing.T) {
	t.Parallel()

	sm := NewSm("bad-next", FlagNone)
	require.NoError(t, sm.InsertState(stateA, "A", func(_ any, next *StateID) Status {
		*next = stateC
		return StatusNext
	}, nil, []StateID{stateB}))
	require.NoError(t, sm.InsertState(stateB, "B", func(any, *StateID) Status {
		return StatusDone
	}, nil, nil))
	require.NoError(t, sm.InsertState(stateC, "C", func(any, *StateID) Status {
		return StatusDone
	}, nil, nil))

	require.Equal(t, StatusErrorBadNext, sm.Run(nil))
}

func TestSm_Prev_ReturnsToPriorState(t *testing.T) {
	t.Parallel()

	sm := NewSm("prev", FlagLinearEnd)
	var visitedB int
	require.NoError(t, sm.InsertState(stateA, "A", func(any, *StateID) Status {
		return StatusNext
	}, nil, nil))
	require.NoError(t, sm.InsertState(stateB, "B", func(any, *StateID) Status {
		visitedB++
		if visitedB == 1 {
			return StatusPrev
		}
		return StatusDone
	}, nil, nil))

	require.Equal(t, StatusDone, sm.Run(nil))
	require.Equal(t, 2, visitedB)
}

func TestSm_Prev_WithNoHistory_IsError(t *testing.T) {
	t.Parallel()

	sm := NewSm("prev-none", FlagLinearEnd)
	require.NoError(t, sm.InsertState(stateA, "A", func(any, *StateID) Status {
		return StatusPrev
	}, nil, nil))

	require.Equal(t, StatusErrorNoNext, sm.Run(nil))
}

// TestSm_CleanupOrder_DeepestFirst grounds spec.md §8 scenario 6: machine SM
// with states A (cleanup=CM1), B (cleanup=CM2) where B errors. Expected
// cleanup sequence is CM2 then CM1, and the final status is ERROR_STATE.
func TestSm_CleanupOrder_DeepestFirst(t *testing.T) {
	t.Parallel()

	var order []string

	cm1 := NewCleanupSm("CM1")
	require.NoError(t, cm1.InsertState(1, "cm1-only", func(_ any, reason CleanupReason, _ *StateID) Status {
		order = append(order, "CM1")
		require.Equal(t, CleanupError, reason)
		return StatusDone
	}))

	cm2 := NewCleanupSm("CM2")
	require.NoError(t, cm2.InsertState(1, "cm2-only", func(_ any, reason CleanupReason, _ *StateID) Status {
		order = append(order, "CM2")
		require.Equal(t, CleanupError, reason)
		return StatusDone
	}))

	sm := NewSm("SM", FlagLinearEnd)
	require.NoError(t, sm.InsertState(stateA, "A", func(any, *StateID) Status {
		return StatusNext
	}, cm1, nil))
	require.NoError(t, sm.InsertState(stateB, "B", func(any, *StateID) Status {
		return StatusErrorState
	}, cm2, nil))

	status := sm.Run(nil)
	require.Equal(t, StatusErrorState, status)
	require.Equal(t, []string{"CM2", "CM1"}, order)
}

func TestSm_Cleanup_CanSuspendAndResume(t *testing.T) {
	t.Parallel()

	cm := NewCleanupSm("CM")
	calls := 0
	require.NoError(t, cm.InsertState(1, "wait-then-done", func(_ any, _ CleanupReason, _ *StateID) Status {
		calls++
		if calls < 2 {
			return StatusWait
		}
		return StatusDone
	}))

	sm := NewSm("SM", FlagLinearEnd)
	require.NoError(t, sm.InsertState(stateA, "A", func(any, *StateID) Status {
		return StatusErrorState
	}, cm, nil))

	require.Equal(t, StatusWait, sm.Run(nil))
	require.Equal(t, StatusErrorState, sm.Run(nil))
	require.Equal(t, 2, calls)
}

func TestSm_ResetCancel_AbortsAndAllowsRerun(t *testing.T) {
	t.Parallel()

	sm := NewSm("cancel", FlagLinearEnd)
	calls := 0
	require.NoError(t, sm.InsertState(stateA, "A", func(any, *StateID) Status {
		calls++
		if calls == 1 {
			return StatusWait
		}
		return StatusDone
	}, nil, nil))

	require.Equal(t, StatusWait, sm.Run(nil))
	sm.Reset(CleanupCancel)

	// Round trip: re-running from the entry state works after cancel (a
	// fresh entry into state A, not a resumed mid-state WAIT).
	require.Equal(t, StatusDone, sm.Run(nil))
	require.Equal(t, 2, calls)
}

func TestSm_SubStateMachine_PostOverridesStatus(t *testing.T) {
	t.Parallel()

	sub := NewSm("sub", FlagLinearEnd)
	require.NoError(t, sub.InsertState(stateA, "sub-A", func(any, *StateID) Status {
		return StatusErrorState
	}, nil, nil))

	sm := NewSm("outer", FlagLinearEnd)
	require.NoError(t, sm.InsertSubStateMachine(stateA, "call-sub", sub, nil,
		func(_ any, subStatus Status, _ *StateID) Status {
			require.Equal(t, StatusErrorState, subStatus)
			return StatusDone
		}, nil, nil))

	require.Equal(t, StatusDone, sm.Run(nil))
}

func TestSm_SubStateMachine_PreSkipsSubMachine(t *testing.T) {
	t.Parallel()

	sub := NewSm("sub", FlagLinearEnd)
	subRan := false
	require.NoError(t, sub.InsertState(stateA, "sub-A", func(any, *StateID) Status {
		subRan = true
		return StatusDone
	}, nil, nil))

	sm := NewSm("outer", FlagLinearEnd)
	require.NoError(t, sm.InsertSubStateMachine(stateA, "maybe-sub", sub,
		func(_ any, status *Status, _ *StateID) bool {
			*status = StatusDone
			return false
		}, nil, nil, nil))

	require.Equal(t, StatusDone, sm.Run(nil))
	require.False(t, subRan)
}

func TestSm_DescrFull_IncludesCleanupPath(t *testing.T) {
	t.Parallel()

	cm := NewCleanupSm("CM2")
	require.NoError(t, cm.InsertState(1, "first-cleanup-state", func(_ any, _ CleanupReason, _ *StateID) Status {
		return StatusWait
	}))

	sm := NewSm("SM", FlagLinearEnd)
	require.NoError(t, sm.InsertState(stateB, "B", func(any, *StateID) Status {
		return StatusErrorState
	}, cm, nil))

	require.Equal(t, StatusWait, sm.Run(nil))
	require.Equal(t, "[M] SM -> [S] B (2) -> [CM] CM2 -> [S] first-cleanup-state (1)", sm.DescrFull(true))
}

func TestSm_InsertState_RejectsZeroAndDuplicateIDs(t *testing.T) {
	t.Parallel()

	sm := NewSm("reject", FlagNone)
	require.ErrorIs(t, sm.InsertState(0, "zero", func(any, *StateID) Status { return StatusDone }, nil, nil), ErrInvalidStateID)
	require.NoError(t, sm.InsertState(stateA, "A", func(any, *StateID) Status { return StatusDone }, nil, nil))
	require.ErrorIs(t, sm.InsertState(stateA, "A-again", func(any, *StateID) Status { return StatusDone }, nil, nil), ErrDuplicateStateID)
}
