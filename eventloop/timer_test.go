package eventloop

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimer_MonotonicCatchesUpAfterStall(t *testing.T) {
	t.Parallel()

	l, err := New()
	require.NoError(t, err)

	var fires atomic.Int64
	timer, err := l.AddTimer(10, func(*Timer) { fires.Add(1) }, WithTimerMode(ModeMonotonic))
	require.NoError(t, err)
	timer.Start()

	// Stall the loop goroutine for 55ms, five intervals' worth, inside a
	// queued callback: MONOTONIC mode must deliver all five accumulated
	// fires once the loop recovers, rather than silently dropping them.
	require.NoError(t, l.SubmitInternal(func() {
		time.Sleep(55 * time.Millisecond)
	}))

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	require.Eventually(t, func() bool { return fires.Load() >= 5 }, 2*time.Second, time.Millisecond)

	l.Done()
	require.NoError(t, <-done)
}

func TestTimer_RelativeDoesNotBurstAfterStall(t *testing.T) {
	t.Parallel()

	l, err := New()
	require.NoError(t, err)

	var mu sync.Mutex
	firesPerTurn := map[uint64]int{}
	timer, err := l.AddTimer(10, func(*Timer) {
		mu.Lock()
		firesPerTurn[l.Turn()]++
		mu.Unlock()
	}, WithTimerMode(ModeRelative))
	require.NoError(t, err)
	timer.Start()

	require.NoError(t, l.SubmitInternal(func() {
		time.Sleep(55 * time.Millisecond)
	}))

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	time.Sleep(200 * time.Millisecond)

	l.Done()
	require.NoError(t, <-done)

	// RELATIVE reschedules from the actual fire time, so the missed window
	// collapses to a single fire in a turn instead of a catch-up burst.
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, firesPerTurn)
	for turn, n := range firesPerTurn {
		require.LessOrEqual(t, n, 1, "turn %d", turn)
	}
}

func TestTimer_FireCountLimitStopsTimer(t *testing.T) {
	t.Parallel()

	l, err := New()
	require.NoError(t, err)

	var fires atomic.Int64
	timer, err := l.AddTimer(5, func(*Timer) { fires.Add(1) }, WithFireCountLimit(3))
	require.NoError(t, err)
	timer.Start()

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	require.Eventually(t, func() bool { return fires.Load() == 3 }, 2*time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(3), fires.Load())
	require.False(t, timer.Running())

	l.Done()
	require.NoError(t, <-done)
}

func TestTimer_StopHaltsFiring(t *testing.T) {
	t.Parallel()

	l, err := New()
	require.NoError(t, err)

	var fires atomic.Int64
	timer, err := l.AddTimer(5, func(*Timer) { fires.Add(1) })
	require.NoError(t, err)
	timer.Start()

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	require.Eventually(t, func() bool { return fires.Load() >= 1 }, time.Second, time.Millisecond)
	timer.Stop()
	require.Eventually(t, func() bool { return !timer.Running() }, time.Second, time.Millisecond)

	stopped := fires.Load()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, stopped, fires.Load())

	l.Done()
	require.NoError(t, <-done)
}

func TestAddTimer_RejectsNonPositiveIntervalUnlessSingleShot(t *testing.T) {
	t.Parallel()

	l, err := New()
	require.NoError(t, err)

	_, err = l.AddTimer(0, func(*Timer) {})
	require.ErrorIs(t, err, ErrInvalidTimer)

	_, err = l.AddTimer(0, func(*Timer) {}, WithFireCountLimit(1))
	require.NoError(t, err)
}
