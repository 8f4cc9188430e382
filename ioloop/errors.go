package ioloop

import "errors"

// Sentinel errors returned by Io, Layer and Transport operations.
var (
	// ErrHandleAlreadyAttached describes an Io already registered with a
	// loop; TryAttach reports that case by returning false, not this error.
	ErrHandleAlreadyAttached = errors.New("ioloop: handle already attached to a loop")

	// ErrNoBaseLayer is returned by Read/Write when an Io has no layers at all.
	ErrNoBaseLayer = errors.New("ioloop: handle has no base layer")

	// ErrLayerMissingProcessEvent is returned by AddLayer when Callbacks.ProcessEvent is nil.
	ErrLayerMissingProcessEvent = errors.New("ioloop: layer callback table missing required ProcessEvent")

	// ErrLayerMissingDestroy is returned by AddLayer when Callbacks.Destroy is nil.
	ErrLayerMissingDestroy = errors.New("ioloop: layer callback table missing required Destroy")

	// ErrNotListening is returned by AcceptTCP when called on a non-listening Io.
	ErrNotListening = errors.New("ioloop: handle is not listening")

	// ErrWouldBlock mirrors spec.md's WOULDBLOCK error kind: a transient
	// condition a layer's read/write must retry on a later turn, never
	// propagated upward as a failure.
	ErrWouldBlock = errors.New("ioloop: operation would block")

	// ErrHandleDestroyed is returned by Read/Write on a destroyed handle.
	ErrHandleDestroyed = errors.New("ioloop: handle has been destroyed")
)
