package ioloop

import (
	"sync"

	"github.com/joeycumines/mstdlib-go/eventloop"
)

// Callbacks is a layer's vtable, per spec.md §4.2. ProcessEvent and Destroy
// are required; every other entry may be left nil, in which case the
// documented pass-through/no-op behavior applies.
type Callbacks struct {
	// Init runs once, after the layer is attached to a handle.
	Init func(l *Layer) error

	// Read is invoked when a layer above requests bytes. If nil, reads pass
	// through transparently to the layer below.
	Read func(l *Layer, buf []byte) (int, error)

	// Write is invoked when a layer above has bytes to write. If nil,
	// writes pass through transparently to the layer below.
	Write func(l *Layer, buf []byte) (int, error)

	// ProcessEvent is invoked for every soft-event moving upward past this
	// layer. It may mutate the event's kind, and reports whether the event
	// should continue propagating.
	ProcessEvent func(l *Layer, kind eventloop.EventKind, ioErr error) (eventloop.EventKind, bool)

	// Accept runs on each layer of a listening handle when a new connection
	// is accepted, giving it the chance to add an equivalent layer to child.
	Accept func(l *Layer, child *Io) error

	// Reset runs when the handle is reset for reuse.
	Reset func(l *Layer) error

	// Destroy runs when the handle is destroyed, bottom-up across layers.
	Destroy func(l *Layer)

	// State reports this layer's contribution to the handle's aggregate
	// state (see MaxState). If nil, the layer contributes nothing.
	State func(l *Layer) IoState

	// ErrorMsg produces a human-readable error for the layer's last failure.
	ErrorMsg func(l *Layer) string

	// Unregister runs before the layer is removed from a running loop.
	Unregister func(l *Layer)

	// PendingEgress reports whether the layer still has buffered outbound
	// bytes it needs to flush before a disconnect can complete. If nil, the
	// layer is assumed to have nothing pending.
	PendingEgress func(l *Layer) bool

	// RemoteAddr reports the layer's notion of the connection's remote
	// address, if it has one. Only the base transport layer typically
	// implements this; it backs proxyproto's Io.GetIPAddr fallback when a
	// connection isn't PROXY-relayed.
	RemoteAddr func(l *Layer) (string, bool)
}

// Layer is one element of an Io's layer stack, per spec.md §3.
type Layer struct {
	index int
	io    *Io
	state any // opaque per-layer state, owned by the layer's implementation
	cb    Callbacks

	mu    sync.Mutex
	queue softEventQueue
}

// Index returns the layer's position in its handle's stack (0 = base transport).
func (l *Layer) Index() int { return l.index }

// Io returns the handle this layer belongs to.
func (l *Layer) Io() *Io { return l.io }

// State returns the layer's private, per-layer state as set at construction.
func (l *Layer) State() any { return l.state }

// ReadBelow passes a read request through to the layer directly below this
// one (or the base transport, if this is layer 0's own fallback path).
func (l *Layer) ReadBelow(buf []byte) (int, error) {
	return l.io.readFrom(l.index-1, buf)
}

// WriteBelow passes a write request through to the layer directly below this one.
func (l *Layer) WriteBelow(buf []byte) (int, error) {
	return l.io.writeFrom(l.index-1, buf)
}

// Enqueue adds a soft-event to this layer's queue, applying the coalescing
// rule from spec.md §3, and schedules a delivery pass. Events enqueued here
// (as opposed to hard events converted directly from OS readiness) are
// stamped with the current turn and so are not eligible for delivery until
// the next one — see [eventloop.Loop.Turn].
func (l *Layer) Enqueue(kind eventloop.EventKind, ioErr error, target Target) {
	gen := uint64(0)
	if loop := l.io.attachedLoop(); loop != nil {
		gen = loop.Turn()
	}
	l.mu.Lock()
	l.queue.add(kind, ioErr, target, gen)
	l.mu.Unlock()
	l.io.scheduleDrain()
}

func newLayer(index int, io *Io, cb Callbacks) *Layer {
	return &Layer{index: index, io: io, cb: cb}
}
