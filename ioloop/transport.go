package ioloop

import "github.com/joeycumines/mstdlib-go/eventloop"

// Transport is the base-layer capability a layer-0 Callbacks implementation
// is built on: a raw, non-blocking file descriptor plus read/write/close.
// Concrete transports (TCP, in-memory pipe for tests) live in
// transport_unix.go / transport_windows.go / mock_transport.go.
type Transport interface {
	FD() int
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Close() error
}

// remoteAddrTransport is an optional Transport capability: a transport that
// knows its peer's address. Checked via a type assertion in
// NewBaseCallbacks so Transport itself doesn't need to grow a method every
// implementation must stub out.
type remoteAddrTransport interface {
	RemoteAddr() (string, bool)
}

// NewBaseCallbacks returns the standard base-transport Callbacks: Read/Write
// go straight to transport, ProcessEvent passes every event through
// unmodified, and Destroy closes the transport. Protocol layers are added
// on top via Io.AddLayer.
func NewBaseCallbacks(transport Transport) Callbacks {
	cb := Callbacks{
		Read: func(l *Layer, buf []byte) (int, error) {
			n, err := transport.Read(buf)
			if err != nil && isWouldBlock(err) {
				return n, ErrWouldBlock
			}
			return n, err
		},
		Write: func(l *Layer, buf []byte) (int, error) {
			n, err := transport.Write(buf)
			if err != nil && isWouldBlock(err) {
				return n, ErrWouldBlock
			}
			return n, err
		},
		ProcessEvent: func(l *Layer, kind eventloop.EventKind, ioErr error) (eventloop.EventKind, bool) {
			return kind, true
		},
		Destroy: func(l *Layer) {
			_ = transport.Close()
		},
	}
	if rat, ok := transport.(remoteAddrTransport); ok {
		cb.RemoteAddr = func(l *Layer) (string, bool) { return rat.RemoteAddr() }
	}
	return cb
}
