// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package proxyproto

import (
	"testing"

	"github.com/joeycumines/mstdlib-go/eventloop"
	"github.com/joeycumines/mstdlib-go/ioloop"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	kind  eventloop.EventKind
	ioErr error
}

// newTestIo builds an unattached Io over a MockTransport plus a recording
// user callback. Because the Io is never registered with a real Loop,
// every soft-event is stamped eligible immediately (see Io.currentTurn),
// so driving it is purely a matter of invoking the callback returned by
// Io.Callback with the hard event to simulate.
func newTestIo(t *testing.T) (*ioloop.Io, *ioloop.MockTransport, *[]recordedEvent, eventloop.Callback) {
	t.Helper()
	transport := ioloop.NewMockTransport()
	io, err := ioloop.NewIo(transport, ioloop.NewBaseCallbacks(transport))
	require.NoError(t, err)

	var events []recordedEvent
	cb := io.Callback(func(_ eventloop.Handle, kind eventloop.EventKind, ioErr error) {
		events = append(events, recordedEvent{kind: kind, ioErr: ioErr})
	})
	fire := func(h eventloop.Handle, kind eventloop.EventKind, ioErr error) { cb(h, kind, ioErr) }
	return io, transport, &events, fire
}

func TestInbound_V1Success(t *testing.T) {
	t.Parallel()

	io, transport, events, fire := newTestIo(t)
	h, err := AddInbound(io)
	require.NoError(t, err)

	transport.Feed([]byte("PROXY TCP4 192.168.0.1 10.0.0.1 443 65535\r\nGET /\r\n"))
	fire(io, eventloop.KindConnected, nil)
	fire(io, eventloop.KindRead, nil)

	require.True(t, h.Complete())
	require.True(t, h.Relayed())
	require.Equal(t, NetTypeIPv4, h.ProxiedType())
	require.Equal(t, "192.168.0.1", h.SourceIPAddr())
	require.Equal(t, "10.0.0.1", h.DestIPAddr())
	require.EqualValues(t, 443, h.SourcePort())
	require.EqualValues(t, 65535, h.DestPort())

	require.Len(t, *events, 2)
	require.Equal(t, eventloop.KindConnected, (*events)[0].kind)
	require.Equal(t, eventloop.KindRead, (*events)[1].kind)

	buf := make([]byte, 64)
	n, err := io.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "GET /\r\n", string(buf[:n]))
}

func TestInbound_V2Success(t *testing.T) {
	t.Parallel()

	io, transport, events, fire := newTestIo(t)
	h, err := AddInbound(io)
	require.NoError(t, err)

	header := append([]byte(nil), v2Signature[:]...)
	header = append(header, 0x21, 0x11, 0x00, 0x0C) // ver/cmd=PROXY, family=IPv4+TCP, length=12
	header = append(header, 0xC0, 0xA8, 0x00, 0x01) // src 192.168.0.1
	header = append(header, 0x0A, 0x00, 0x00, 0x01) // dst 10.0.0.1
	header = append(header, 0x01, 0xBB)             // sport 443
	header = append(header, 0xFF, 0xFF)             // dport 65535
	header = append(header, 'X')

	transport.Feed(header)
	fire(io, eventloop.KindConnected, nil)
	fire(io, eventloop.KindRead, nil)

	require.True(t, h.Complete())
	require.True(t, h.Relayed())
	require.Equal(t, NetTypeIPv4, h.ProxiedType())
	require.Equal(t, "192.168.0.1", h.SourceIPAddr())
	require.Equal(t, "10.0.0.1", h.DestIPAddr())
	require.EqualValues(t, 443, h.SourcePort())
	require.EqualValues(t, 65535, h.DestPort())

	require.Len(t, *events, 2)

	buf := make([]byte, 16)
	n, err := io.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "X", string(buf[:n]))
}

func TestInbound_VersionMismatch(t *testing.T) {
	t.Parallel()

	io, transport, events, fire := newTestIo(t)
	h, err := AddInbound(io, WithFlags(FlagV2))
	require.NoError(t, err)

	transport.Feed([]byte("PROXY TCP4 1.1.1.1 2.2.2.2 1 2\r\n"))
	fire(io, eventloop.KindConnected, nil)
	fire(io, eventloop.KindRead, nil)

	require.False(t, h.Complete())
	require.Equal(t, ErrIncompatibleVersion.Error(), h.ErrorMsg())

	// CONNECTED is suppressed unconditionally by the inbound layer until the
	// header finishes parsing (inbound.go), which never happens on a version
	// mismatch — only ERROR reaches the user callback.
	require.Len(t, *events, 1)
	require.Equal(t, eventloop.KindError, (*events)[0].kind)
	require.EqualError(t, (*events)[0].ioErr, ErrIncompatibleVersion.Error())
}

func TestOutbound_V1(t *testing.T) {
	t.Parallel()

	io, transport, events, fire := newTestIo(t)
	h, err := AddOutbound(io, WithFlags(FlagV1))
	require.NoError(t, err)

	require.NoError(t, h.SetSourceEndpoints("10.0.0.9", "10.0.0.1", 55000, 443))

	fire(io, eventloop.KindConnected, nil)

	require.True(t, h.Complete())
	require.Equal(t, "PROXY TCP4 10.0.0.9 10.0.0.1 55000 443\r\n", string(transport.Written()))

	require.Len(t, *events, 1)
	require.Equal(t, eventloop.KindConnected, (*events)[0].kind)
}

func TestOutbound_LocalWhenEndpointsUnset(t *testing.T) {
	t.Parallel()

	io, transport, _, fire := newTestIo(t)
	h, err := AddOutbound(io, WithFlags(FlagV1))
	require.NoError(t, err)

	fire(io, eventloop.KindConnected, nil)

	require.True(t, h.Complete())
	require.Equal(t, "PROXY UNKNOWN\r\n", string(transport.Written()))
}

func TestRoundTrip_V1(t *testing.T) {
	t.Parallel()

	msg := buildV1Message(true, NetTypeIPv6, "2001:db8::1", "2001:db8::2", 1234, 5678)

	io, transport, _, fire := newTestIo(t)
	h, err := AddInbound(io)
	require.NoError(t, err)

	transport.Feed(msg)
	fire(io, eventloop.KindConnected, nil)
	fire(io, eventloop.KindRead, nil)

	require.True(t, h.Complete())
	require.Equal(t, "2001:db8::1", h.SourceIPAddr())
	require.Equal(t, "2001:db8::2", h.DestIPAddr())
	require.EqualValues(t, 1234, h.SourcePort())
	require.EqualValues(t, 5678, h.DestPort())
}

func TestRoundTrip_V2(t *testing.T) {
	t.Parallel()

	msg, err := buildV2Message(true, NetTypeIPv4, "203.0.113.9", "203.0.113.1", 9000, 80)
	require.NoError(t, err)

	io, transport, _, fire := newTestIo(t)
	h, err := AddInbound(io)
	require.NoError(t, err)

	transport.Feed(msg)
	fire(io, eventloop.KindConnected, nil)
	fire(io, eventloop.KindRead, nil)

	require.True(t, h.Complete())
	require.Equal(t, "203.0.113.9", h.SourceIPAddr())
	require.Equal(t, "203.0.113.1", h.DestIPAddr())
	require.EqualValues(t, 9000, h.SourcePort())
	require.EqualValues(t, 80, h.DestPort())
}

func TestInbound_WaitsForMoreBytes(t *testing.T) {
	t.Parallel()

	io, transport, events, fire := newTestIo(t)
	h, err := AddInbound(io)
	require.NoError(t, err)

	transport.Feed([]byte("PROXY TCP4 1.1.1.1 2.2"))
	fire(io, eventloop.KindConnected, nil)
	fire(io, eventloop.KindRead, nil)
	require.False(t, h.Complete())
	require.Len(t, *events, 0)

	transport.Feed([]byte(".2.2 80 81\r\n"))
	fire(io, eventloop.KindRead, nil)
	require.True(t, h.Complete())
	require.Equal(t, "1.1.1.1", h.SourceIPAddr())
	require.Equal(t, "2.2.2.2", h.DestIPAddr())
}

func TestGetIPAddr_FallsBackToTransport(t *testing.T) {
	t.Parallel()

	io, transport, _, _ := newTestIo(t)
	transport.SetRemoteAddr("198.51.100.5:1234")
	h, err := AddInbound(io)
	require.NoError(t, err)

	addr, ok := h.GetIPAddr(io)
	require.True(t, ok)
	require.Equal(t, "198.51.100.5:1234", addr)
}
