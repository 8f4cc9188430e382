package ioloop

import (
	"errors"
	"testing"

	"github.com/joeycumines/mstdlib-go/eventloop"
	"github.com/stretchr/testify/require"
)

func TestSoftEventQueue_CoalescesDuplicateReads(t *testing.T) {
	t.Parallel()

	var q softEventQueue
	q.add(eventloop.KindRead, nil, TargetUp, 0)
	q.add(eventloop.KindRead, nil, TargetUp, 0)
	q.add(eventloop.KindRead, nil, TargetUp, 0)

	ev, ok := q.popEligible(1)
	require.True(t, ok)
	require.Equal(t, eventloop.KindRead, ev.Kind)
	require.True(t, q.empty(), "duplicate READ events must collapse to one")
}

func TestSoftEventQueue_DistinctTargetsDoNotCoalesce(t *testing.T) {
	t.Parallel()

	var q softEventQueue
	q.add(eventloop.KindRead, nil, TargetUp, 0)
	q.add(eventloop.KindRead, nil, TargetSelf, 0)

	_, ok := q.popEligible(1)
	require.True(t, ok)
	_, ok = q.popEligible(1)
	require.True(t, ok, "same kind with a different target is not a duplicate")
	require.True(t, q.empty())
}

func TestSoftEventQueue_TerminalOverridesPendingNonTerminal(t *testing.T) {
	t.Parallel()

	var q softEventQueue
	q.add(eventloop.KindRead, nil, TargetUp, 0)
	q.add(eventloop.KindWrite, nil, TargetUp, 0)
	q.add(eventloop.KindError, errors.New("boom"), TargetUp, 0)

	ev, ok := q.popEligible(1)
	require.True(t, ok)
	require.Equal(t, eventloop.KindError, ev.Kind)
	require.True(t, q.empty(), "a terminal event must drop every pending non-terminal event")
}

func TestSoftEventQueue_TerminalDoesNotDuplicate(t *testing.T) {
	t.Parallel()

	var q softEventQueue
	q.add(eventloop.KindError, errors.New("first"), TargetUp, 0)
	q.add(eventloop.KindError, errors.New("second"), TargetUp, 0)

	ev, ok := q.popEligible(1)
	require.True(t, ok)
	require.EqualError(t, ev.IOErr, "first")
	require.True(t, q.empty())
}

func TestSoftEventQueue_GenerationBoundsEligibility(t *testing.T) {
	t.Parallel()

	var q softEventQueue
	q.add(eventloop.KindRead, nil, TargetUp, 5) // enqueued during turn 5

	_, ok := q.popEligible(5)
	require.False(t, ok, "an event stamped with the current turn is not yet eligible")

	_, ok = q.popEligible(4)
	require.False(t, ok, "an event must not be eligible before the turn it was enqueued in has even passed")

	ev, ok := q.popEligible(6)
	require.True(t, ok, "an event becomes eligible once the turn after it was enqueued arrives")
	require.Equal(t, eventloop.KindRead, ev.Kind)
}

func TestSoftEventQueue_HardEventGenerationZero_AlwaysEligible(t *testing.T) {
	t.Parallel()

	var q softEventQueue
	q.add(eventloop.KindConnected, nil, TargetUp, 0)

	_, ok := q.popEligible(0)
	require.True(t, ok, "generation-0 hard events are eligible even on turn 0")
}

func TestSoftEventQueue_FIFOOrder(t *testing.T) {
	t.Parallel()

	var q softEventQueue
	q.add(eventloop.KindConnected, nil, TargetUp, 0)
	q.add(eventloop.KindOther, nil, TargetUp, 0)

	first, ok := q.popEligible(1)
	require.True(t, ok)
	require.Equal(t, eventloop.KindConnected, first.Kind)

	second, ok := q.popEligible(1)
	require.True(t, ok)
	require.Equal(t, eventloop.KindOther, second.Kind)
}
