package ioloop

import (
	"testing"

	"github.com/joeycumines/mstdlib-go/eventloop"
	"github.com/stretchr/testify/require"
)

func TestLayer_ReadWriteBelow_FallsThroughToTransport(t *testing.T) {
	t.Parallel()

	transport := NewMockTransport()
	io, err := NewIo(transport, NewBaseCallbacks(transport))
	require.NoError(t, err)

	var l *Layer
	l, err = io.AddLayer(Callbacks{
		ProcessEvent: func(l *Layer, kind eventloop.EventKind, _ error) (eventloop.EventKind, bool) { return kind, true },
		Destroy:      func(*Layer) {},
	})
	require.NoError(t, err)

	transport.Feed([]byte("below"))
	buf := make([]byte, 16)
	n, err := l.ReadBelow(buf)
	require.NoError(t, err)
	require.Equal(t, "below", string(buf[:n]))

	n, err = l.WriteBelow([]byte("above"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "above", string(transport.Written()))
}

// TestLayer_Enqueue_Unattached_DeliversImmediately exercises the
// generation-stamping rule directly: on an unattached Io, Layer.Enqueue
// stamps generation 0 and immediate delivery happens as part of the
// Enqueue call itself (scheduleDrain runs a turn synchronously).
func TestLayer_Enqueue_Unattached_DeliversImmediately(t *testing.T) {
	t.Parallel()

	transport := NewMockTransport()
	io, err := NewIo(transport, NewBaseCallbacks(transport))
	require.NoError(t, err)

	var got []eventloop.EventKind
	io.Callback(func(_ eventloop.Handle, kind eventloop.EventKind, _ error) {
		got = append(got, kind)
	})

	var layer *Layer
	layer, err = io.AddLayer(Callbacks{
		ProcessEvent: func(l *Layer, kind eventloop.EventKind, _ error) (eventloop.EventKind, bool) { return kind, true },
		Destroy:      func(*Layer) {},
	})
	require.NoError(t, err)

	layer.Enqueue(eventloop.KindRead, nil, TargetUp)
	require.Equal(t, []eventloop.EventKind{eventloop.KindRead}, got)
}

func TestLayer_Enqueue_Self_OnlyReachesOwnProcessEvent(t *testing.T) {
	t.Parallel()

	transport := NewMockTransport()
	io, err := NewIo(transport, NewBaseCallbacks(transport))
	require.NoError(t, err)

	var sawSelf bool
	var layer *Layer
	layer, err = io.AddLayer(Callbacks{
		ProcessEvent: func(l *Layer, kind eventloop.EventKind, _ error) (eventloop.EventKind, bool) {
			sawSelf = true
			return kind, false
		},
		Destroy: func(*Layer) {},
	})
	require.NoError(t, err)

	var got []eventloop.EventKind
	io.Callback(func(_ eventloop.Handle, kind eventloop.EventKind, _ error) {
		got = append(got, kind)
	})

	layer.Enqueue(eventloop.KindOther, nil, TargetSelf)
	require.True(t, sawSelf)
	require.Empty(t, got, "a suppressed self-targeted event must not reach the user callback")
}

func TestLayer_Index(t *testing.T) {
	t.Parallel()

	transport := NewMockTransport()
	io, err := NewIo(transport, NewBaseCallbacks(transport))
	require.NoError(t, err)
	require.Equal(t, 0, io.Top().Index())

	l, err := io.AddLayer(Callbacks{
		ProcessEvent: func(l *Layer, kind eventloop.EventKind, _ error) (eventloop.EventKind, bool) { return kind, true },
		Destroy:      func(*Layer) {},
	})
	require.NoError(t, err)
	require.Equal(t, 1, l.Index())
	require.Equal(t, l, io.Top())
}
