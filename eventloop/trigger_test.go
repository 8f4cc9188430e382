package eventloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTrigger_FiresOnceForSingleSignal(t *testing.T) {
	t.Parallel()

	l, err := New()
	require.NoError(t, err)

	var fires atomic.Int64
	trig, err := l.TriggerAdd(func() { fires.Add(1) })
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	trig.Signal()
	require.Eventually(t, func() bool { return fires.Load() == 1 }, time.Second, time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, int64(1), fires.Load())

	l.Done()
	require.NoError(t, <-done)
}

func TestTrigger_RemoveStopsFurtherFires(t *testing.T) {
	t.Parallel()

	l, err := New()
	require.NoError(t, err)

	var fires atomic.Int64
	trig, err := l.TriggerAdd(func() { fires.Add(1) })
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	trig.Signal()
	require.Eventually(t, func() bool { return fires.Load() == 1 }, time.Second, time.Millisecond)

	trig.Remove()
	trig.Signal()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, int64(1), fires.Load())

	l.Done()
	require.NoError(t, <-done)
}

func TestTrigger_SignalBeforeRunIsDeliveredOnFirstTurn(t *testing.T) {
	t.Parallel()

	l, err := New()
	require.NoError(t, err)

	var fires atomic.Int64
	trig, err := l.TriggerAdd(func() { fires.Add(1) })
	require.NoError(t, err)
	trig.Signal()

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	require.Eventually(t, func() bool { return fires.Load() == 1 }, time.Second, time.Millisecond)

	l.Done()
	require.NoError(t, <-done)
}
