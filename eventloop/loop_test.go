package eventloop

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoop_DoneStopsRun(t *testing.T) {
	t.Parallel()

	l, err := New()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	l.Done()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not terminate after Done()")
	}
	require.True(t, l.state.IsTerminal())
}

func TestLoop_SubmitInternalRunsOnLoopGoroutine(t *testing.T) {
	t.Parallel()

	l, err := New()
	require.NoError(t, err)

	var ran atomic.Bool
	var ranOnLoop atomic.Bool
	require.NoError(t, l.SubmitInternal(func() {
		ran.Store(true)
		ranOnLoop.Store(l.isLoopThread())
	}))

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	require.Eventually(t, ran.Load, time.Second, time.Millisecond)
	require.True(t, ranOnLoop.Load())

	l.Done()
	<-done
}

func TestLoop_ReentrantRunRejected(t *testing.T) {
	t.Parallel()

	l, err := New()
	require.NoError(t, err)

	errCh := make(chan error, 1)
	require.NoError(t, l.SubmitInternal(func() {
		errCh <- l.Run(context.Background())
		l.Done()
	}))

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	require.Equal(t, ErrReentrantRun, <-errCh)
	<-done
}

func TestLoop_TriggerCollapsesConcurrentSignals(t *testing.T) {
	t.Parallel()

	l, err := New()
	require.NoError(t, err)

	var fires atomic.Int64
	trig, err := l.TriggerAdd(func() { fires.Add(1) })
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() { defer wg.Done(); trig.Signal() }()
	}
	wg.Wait()

	time.Sleep(50 * time.Millisecond)
	l.Done()
	<-done

	// At-most-one-pending collapsing means we see far fewer than 50 fires,
	// but at least one (the signals happened before Done()).
	require.GreaterOrEqual(t, fires.Load(), int64(1))
	require.Less(t, fires.Load(), int64(50))
}

func TestLoop_ExitOnEmpty(t *testing.T) {
	t.Parallel()

	l, err := New(WithFlags(ExitOnEmpty))
	require.NoError(t, err)

	err = l.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusDone, l.state.Load())
}
