package eventloop

// EventKind identifies the kind of event delivered to a handle's callback.
// Named distinctly from the platform poller's IOEvents bitmask (EventRead
// etc. there are readiness bits, not dispatch-order kinds).
type EventKind int

const (
	// KindConnected is synthesized once when a handle is successfully added
	// to a loop, or when an accept produces a ready child handle.
	KindConnected EventKind = iota
	// KindAccept is delivered to a listening handle when a new connection is ready.
	KindAccept
	// KindRead is delivered when bytes are available to read.
	KindRead
	// KindDisconnected is a terminal event: the peer closed the connection.
	KindDisconnected
	// KindError is a terminal event: an unrecoverable error occurred.
	KindError
	// KindWrite is delivered when the handle is ready to accept more written bytes.
	KindWrite
	// KindOther carries timer, trigger, and queued-task notifications.
	KindOther
)

// String returns the event kind's name.
func (k EventKind) String() string {
	switch k {
	case KindConnected:
		return "CONNECTED"
	case KindAccept:
		return "ACCEPT"
	case KindRead:
		return "READ"
	case KindDisconnected:
		return "DISCONNECTED"
	case KindError:
		return "ERROR"
	case KindWrite:
		return "WRITE"
	case KindOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// eventPriority encodes the dispatch order contract from the loop's design:
// CONNECTED, ACCEPT, READ, DISCONNECTED, ERROR, WRITE, OTHER.
var eventPriority = map[EventKind]int{
	KindConnected:    0,
	KindAccept:       1,
	KindRead:         2,
	KindDisconnected: 3,
	KindError:        4,
	KindWrite:        5,
	KindOther:        6,
}

// IsTerminal returns true for DISCONNECTED and ERROR, the two event kinds
// after which no further events are delivered for a handle.
func (k EventKind) IsTerminal() bool {
	return k == KindDisconnected || k == KindError
}

// Handle is the minimal capability a registrant needs to participate in a
// Loop's dispatch: a pollable file descriptor and the events it currently
// wants monitored. Higher-level layered I/O objects (see package ioloop)
// implement Handle over their base transport.
type Handle interface {
	// FD returns the file descriptor to poll, or -1 if the handle is
	// software-only (e.g. driven entirely by triggers/timers).
	FD() int
	// WantEvents returns the set of IOEvents currently of interest.
	WantEvents() IOEvents
}

// Callback receives events for a registered handle. ioErr is non-nil only
// for KindError.
type Callback func(h Handle, kind EventKind, ioErr error)

// Flags configure a Loop's exit behavior.
type Flags uint32

const (
	// NoWake means the loop never needs cross-thread wakeup (it owns no
	// handles shared with other goroutines); the wake pipe is still created
	// for uniformity but is never relied upon for correctness.
	NoWake Flags = 1 << iota
	// ExitOnEmpty causes the loop to finish (status DONE) once it has no
	// registered handles, triggers, or timers left.
	ExitOnEmpty
	// ExitOnEmptyNoTimers is like ExitOnEmpty but ignores outstanding timers
	// when deciding whether the loop is empty.
	ExitOnEmptyNoTimers
)
