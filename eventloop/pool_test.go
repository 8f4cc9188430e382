package eventloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	fd int
}

func (f *fakeHandle) FD() int             { return -1 }
func (f *fakeHandle) WantEvents() IOEvents { return 0 }

func TestEventPool_AddPicksLeastLoadedLoop(t *testing.T) {
	t.Parallel()

	p, err := NewEventPool(2)
	require.NoError(t, err)
	require.Len(t, p.Loops(), 2)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	t.Cleanup(func() {
		p.Done()
		<-done
	})

	h1 := &fakeHandle{fd: -1}
	l1, err := p.Add(h1, func(Handle, EventKind, error) {})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return l1.objectCount() >= 1 }, time.Second, time.Millisecond)

	h2 := &fakeHandle{fd: -1}
	l2, err := p.Add(h2, func(Handle, EventKind, error) {})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return l2.objectCount() >= 1 }, time.Second, time.Millisecond)

	// With one loop already carrying h1's load, the second Add must land on
	// the other (still-idle) member instead of piling onto the first.
	require.NotSame(t, l1, l2)
}

func TestEventPool_DoneStopsAllMembers(t *testing.T) {
	t.Parallel()

	p, err := NewEventPool(3)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	p.Done()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop all members")
	}

	for _, l := range p.Loops() {
		require.True(t, l.state.IsTerminal())
	}
}

func TestEventPool_Get(t *testing.T) {
	t.Parallel()

	standalone, err := New()
	require.NoError(t, err)
	require.Nil(t, Get(standalone))

	p, err := NewEventPool(1)
	require.NoError(t, err)
	require.Same(t, p, Get(p.Loops()[0]))
}
