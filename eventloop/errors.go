package eventloop

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Loop, Timer, Trigger and EventPool operations.
var (
	// ErrLoopAlreadyRunning is returned when Run() is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a terminated loop.
	ErrLoopTerminated = errors.New("eventloop: loop has been terminated")

	// ErrLoopNotRunning describes a loop that hasn't been started; no Loop operation currently returns it.
	ErrLoopNotRunning = errors.New("eventloop: loop is not running")

	// ErrReentrantRun is returned when Run() is called from within the loop itself.
	ErrReentrantRun = errors.New("eventloop: cannot call Run() from within the loop")

	// ErrHandleAlreadyRegistered is returned by Add when the handle is already attached to a loop.
	ErrHandleAlreadyRegistered = errors.New("eventloop: handle is already registered with a loop")

	// ErrHandleNotRegistered is wrapped into the error delivered with a KindError event by the
	// loop's I/O dispatch; EditIOCB and Remove ignore handles unknown to the loop and do not return it.
	ErrHandleNotRegistered = errors.New("eventloop: handle is not registered with this loop")

	// ErrInvalidTimer is returned when a Timer is configured with an invalid interval/fire-count combination.
	ErrInvalidTimer = errors.New("eventloop: invalid timer configuration")

	// ErrPoolEmpty describes an EventPool with no loops; NewEventPool always creates at least one loop, so it is not currently returned.
	ErrPoolEmpty = errors.New("eventloop: event pool has no loops")
)

// WrapError wraps err with a contextual message, preserving it for
// errors.Is/errors.As via %w.
func WrapError(message string, err error) error {
	return fmt.Errorf("%s: %w", message, err)
}
