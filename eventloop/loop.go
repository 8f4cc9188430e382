package eventloop

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Attacher is implemented by handles that track which loop, if any, they are
// currently registered with. Add uses it to enforce the "a handle may be
// registered with at most one loop at a time" invariant. Handles that don't
// implement Attacher are the caller's responsibility to manage.
type Attacher interface {
	// TryAttach records loop as the handle's owner, returning false if the
	// handle is already attached elsewhere.
	TryAttach(loop *Loop) bool
	// Detach clears the handle's owning loop.
	Detach()
}

// SoftEventSource is implemented by handles (e.g. ioloop.Io) that layer their
// own delayed events on top of raw poller readiness, stamped so they are not
// eligible for delivery until the turn after they were queued. DrainSoftEvents
// is called once per turn, for every attached handle that implements this,
// as dispatch step 4 (spec.md §4.1) — this is what lets such an event reach
// the application even when the handle receives no further hard event.
type SoftEventSource interface {
	DrainSoftEvents()
}

// registeredHandle is the loop's bookkeeping record for an attached Handle.
type registeredHandle struct {
	h        Handle
	cb       Callback
	fd       int
	lastWant IOEvents
}

// Loop is a cooperative, single-threaded event dispatcher: see the package
// doc for the per-turn algorithm.
type Loop struct {
	_ [0]func() // prevent copying

	id     uint64
	state  *FastState
	flags  Flags
	logger loopLog

	// handles, keyed by FD, registered via Add/EditIOCB/Remove.
	handlesMu sync.Mutex
	handles   map[int]*registeredHandle

	// triggers
	triggersMu sync.Mutex
	triggers   []*Trigger

	// timers: owned exclusively by the loop goroutine once Run starts;
	// mutated only via SubmitInternal closures.
	timers timerHeap

	poller FastPoller

	// queued cross-thread operations (registration, removal, timer control).
	queueMu sync.Mutex
	queue   []func()

	// wakeup plumbing (self-pipe / eventfd), per the platform wakeup_*.go files.
	wakePipe      int
	wakePipeWrite int
	wakeBuf       [8]byte
	wakePending   atomic.Bool

	loopGoroutineID atomic.Uint64
	loopDone        chan struct{}
	stopOnce        sync.Once
	closeOnce       sync.Once

	tickAnchorMu sync.RWMutex
	tickAnchor   time.Time
	tickElapsed  atomic.Int64

	processTimeMs atomic.Int64
	turnCounter   atomic.Uint64

	disconnectDeadline  time.Time
	disconnectRequested bool

	pool *EventPool
}

// Pool returns the EventPool this loop is a member of, or nil for a
// standalone loop created via New directly.
func (l *Loop) Pool() *EventPool { return l.pool }

// loopLog is the narrow logging surface the loop actually uses; kept as an
// unexported interface so logging.go's logiface adapter is the only file
// that needs to know about the concrete logger type.
type loopLog interface {
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

var loopIDCounter atomic.Uint64

// New creates a new event loop.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	wakeFd, wakeWriteFd, err := createWakeFd(0, EFD_CLOEXEC|EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		id:       loopIDCounter.Add(1),
		state:    NewFastState(),
		flags:    cfg.flags,
		logger:   newLoopLog(cfg.logger),
		handles:  make(map[int]*registeredHandle),
		loopDone: make(chan struct{}),

		wakePipe:      wakeFd,
		wakePipeWrite: wakeWriteFd,
	}

	if err := l.poller.Init(); err != nil {
		_ = unix.Close(wakeFd)
		if wakeWriteFd != wakeFd {
			_ = unix.Close(wakeWriteFd)
		}
		return nil, err
	}

	if err := l.poller.RegisterFD(wakeFd, EventRead, func(IOEvents) {
		l.drainWakePipe()
	}); err != nil {
		_ = l.poller.Close()
		_ = unix.Close(wakeFd)
		if wakeWriteFd != wakeFd {
			_ = unix.Close(wakeWriteFd)
		}
		return nil, err
	}

	return l, nil
}

// now returns the loop's current monotonic tick time, cheap to call
// repeatedly within one turn.
func (l *Loop) now() time.Time {
	l.tickAnchorMu.RLock()
	anchor := l.tickAnchor
	l.tickAnchorMu.RUnlock()
	if anchor.IsZero() {
		return time.Now()
	}
	return anchor.Add(time.Duration(l.tickElapsed.Load()))
}

// Status returns the loop's externally visible status.
func (l *Loop) Status() Status {
	switch l.state.Load() {
	case StatusSleeping:
		return StatusRunning
	default:
		return l.state.Load()
	}
}

// Add attaches handle to the loop and arranges for a CONNECTED event to be
// synthesized once registration completes. Fails synchronously if handle
// implements Attacher and is already attached elsewhere.
func (l *Loop) Add(h Handle, cb Callback) error {
	if a, ok := h.(Attacher); ok {
		if !a.TryAttach(l) {
			return ErrHandleAlreadyRegistered
		}
	}
	return l.SubmitInternal(func() {
		l.addLocked(h, cb, true)
	})
}

// EditIOCB replaces the callback for an already-registered handle without
// synthesizing a CONNECTED event.
func (l *Loop) EditIOCB(h Handle, cb Callback) error {
	return l.SubmitInternal(func() {
		l.handlesMu.Lock()
		rh, ok := l.handles[h.FD()]
		l.handlesMu.Unlock()
		if !ok {
			return
		}
		rh.cb = cb
	})
}

func (l *Loop) addLocked(h Handle, cb Callback, synthesizeConnected bool) {
	fd := h.FD()
	rh := &registeredHandle{h: h, cb: cb, fd: fd, lastWant: h.WantEvents()}

	l.handlesMu.Lock()
	l.handles[fd] = rh
	l.handlesMu.Unlock()

	if fd >= 0 {
		if err := l.poller.RegisterFD(fd, rh.lastWant, func(events IOEvents) {
			l.dispatchIOEvents(rh, events)
		}); err != nil {
			l.logger.Errorf("eventloop: register fd %d failed: %v", fd, err)
			l.handlesMu.Lock()
			delete(l.handles, fd)
			l.handlesMu.Unlock()
			cb(h, KindError, err)
			return
		}
	}

	if synthesizeConnected {
		l.safeDispatch(rh, KindConnected, nil)
	}
	l.wake()
}

// Remove detaches handle from the loop. Safe to call cross-thread: the
// removal is queued and executed on the owning loop before its next turn.
func (l *Loop) Remove(h Handle) error {
	return l.SubmitInternal(func() {
		fd := h.FD()
		l.handlesMu.Lock()
		rh, ok := l.handles[fd]
		if ok {
			delete(l.handles, fd)
		}
		l.handlesMu.Unlock()
		if !ok {
			return
		}
		if fd >= 0 {
			_ = l.poller.UnregisterFD(fd)
		}
		if a, ok := h.(Attacher); ok {
			a.Detach()
		}
		_ = rh
		l.wake()
	})
}

// ModifyWantEvents re-synchronizes the poller's interest set for an
// already-registered handle, e.g. after a layer starts buffering writes and
// needs WRITE readiness notifications.
func (l *Loop) ModifyWantEvents(h Handle) error {
	return l.SubmitInternal(func() {
		fd := h.FD()
		if fd < 0 {
			return
		}
		l.handlesMu.Lock()
		rh, ok := l.handles[fd]
		l.handlesMu.Unlock()
		if !ok {
			return
		}
		want := h.WantEvents()
		if want == rh.lastWant {
			return
		}
		rh.lastWant = want
		_ = l.poller.ModifyFD(fd, want)
	})
}

// dispatchIOEvents converts a poller readiness bitmask into EventKinds,
// sorts them by the loop's priority contract, and invokes the handle's
// callback for each in order.
func (l *Loop) dispatchIOEvents(rh *registeredHandle, events IOEvents) {
	var kinds []EventKind
	if events&EventRead != 0 {
		kinds = append(kinds, KindRead)
	}
	if events&EventHangup != 0 {
		kinds = append(kinds, KindDisconnected)
	}
	if events&EventError != 0 {
		kinds = append(kinds, KindError)
	}
	if events&EventWrite != 0 {
		kinds = append(kinds, KindWrite)
	}
	sort.SliceStable(kinds, func(i, j int) bool {
		return eventPriority[kinds[i]] < eventPriority[kinds[j]]
	})
	for _, k := range kinds {
		var err error
		if k == KindError {
			err = WrapError("eventloop: io error", ErrHandleNotRegistered)
		}
		l.safeDispatch(rh, k, err)
		if k.IsTerminal() {
			break
		}
	}
}

func (l *Loop) safeDispatch(rh *registeredHandle, kind EventKind, ioErr error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Errorf("eventloop: handle callback panicked: %v", r)
		}
	}()
	rh.cb(rh.h, kind, ioErr)
}

func (l *Loop) safeCall(fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Errorf("eventloop: callback panicked: %v", r)
		}
	}()
	fn()
}

// SubmitInternal queues fn to run on the loop's goroutine, waking the loop
// if it is currently blocked in poll. Safe to call from any goroutine,
// including the loop's own (in which case fn still runs on a later turn,
// never reentrantly).
func (l *Loop) SubmitInternal(fn func()) error {
	if l.state.IsTerminal() {
		return ErrLoopTerminated
	}
	l.queueMu.Lock()
	l.queue = append(l.queue, fn)
	l.queueMu.Unlock()
	l.wake()
	return nil
}

// wake ensures the loop exits a blocking poll promptly; idempotent via
// wakePending so bursts of wake() calls cost one pipe write.
func (l *Loop) wake() {
	if l.state.Load() != StatusSleeping {
		return
	}
	if l.wakePending.CompareAndSwap(false, true) {
		_ = l.submitWakeup()
	}
}

func (l *Loop) submitWakeup() error {
	if l.state.Load() == StatusDone || l.state.Load() == StatusReturned {
		return ErrLoopTerminated
	}
	var one uint64 = 1
	buf := [8]byte{}
	for i := 0; i < 8; i++ {
		buf[i] = byte(one >> (8 * i))
	}
	_, err := unix.Write(l.wakePipeWrite, buf[:])
	return err
}

func (l *Loop) drainWakePipe() {
	for {
		_, err := unix.Read(l.wakePipe, l.wakeBuf[:])
		if err != nil {
			break
		}
	}
	l.wakePending.Store(false)
}

// Done requests the loop finish with Status DONE: it wakes all poll calls
// and unblocks Run once the current turn's queued work drains.
func (l *Loop) Done() {
	prev := l.state.Load()
	l.state.Store(StatusDone)
	if prev == StatusDone || prev == StatusReturned {
		return
	}
	// submitWakeup refuses once the state is Done, so write the wake fd here.
	buf := [8]byte{1}
	_, _ = unix.Write(l.wakePipeWrite, buf[:])
}

// Return requests the loop finish with Status RETURN, distinguishable by
// callers from Done via Status().
func (l *Loop) Return() {
	l.state.Store(StatusReturning)
	_ = l.submitWakeup()
}

// DoneWithDisconnect initiates a graceful disconnect on every attached
// handle; the loop finishes as DONE once every handle reaches a terminal
// event or timeoutMs elapses, whichever comes first.
func (l *Loop) DoneWithDisconnect(timeoutMs int64) {
	_ = l.SubmitInternal(func() {
		l.disconnectRequested = true
		l.disconnectDeadline = l.now().Add(time.Duration(timeoutMs) * time.Millisecond)
		l.handlesMu.Lock()
		for _, rh := range l.handles {
			if d, ok := rh.h.(interface{ Disconnect() }); ok {
				d.Disconnect()
			}
		}
		l.handlesMu.Unlock()
	})
}

// ProcessTimeMs returns cumulative turn-processing time, excluding idle
// time spent blocked in the poll primitive.
func (l *Loop) ProcessTimeMs() int64 { return l.processTimeMs.Load() }

// Run blocks, dispatching turns, until the loop reaches a terminal status
// or ctx is cancelled.
//
// Per turn: (1) compute the next wakeup deadline from the timer heap and
// any disconnect deadline, honoring ExitOnEmpty; (2) block in the OS poll
// primitive; (3) convert readiness into hard events, already delivered
// inline by the poller's callbacks; (4) drain matured soft-events of every
// handle implementing SoftEventSource; (5) fire expired timers; (6) deliver
// pending triggers as OTHER events; (7) drain queued cross-thread
// operations; (8) accumulate elapsed processing time.
func (l *Loop) Run(ctx context.Context) error {
	if l.isLoopThread() {
		return ErrReentrantRun
	}
	if !l.state.TryTransition(StatusAwake, StatusRunning) {
		if l.state.IsTerminal() {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}
	defer close(l.loopDone)

	l.tickAnchorMu.Lock()
	l.tickAnchor = time.Now()
	l.tickAnchorMu.Unlock()
	l.tickElapsed.Store(0)

	l.loopGoroutineID.Store(goroutineID())
	defer l.loopGoroutineID.Store(0)

	ctxDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = l.submitWakeup()
		case <-ctxDone:
		}
	}()
	defer close(ctxDone)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-ctx.Done():
			l.drainOnShutdown()
			return ctx.Err()
		default:
		}

		if l.state.TryTransition(StatusReturning, StatusReturned) {
			l.drainOnShutdown()
			return nil
		}

		if l.state.IsTerminal() {
			l.drainOnShutdown()
			return nil
		}

		if l.shouldExitOnEmpty() {
			l.state.Store(StatusDone)
			l.drainOnShutdown()
			return nil
		}

		l.turn()

		if l.disconnectRequested && (l.allHandlesTerminal() || !l.now().Before(l.disconnectDeadline)) {
			l.state.Store(StatusDone)
		}
	}
}

// Turn returns the loop's current turn counter, incremented once per
// dispatch cycle. Packages layered on top of Handle (e.g. ioloop) use it to
// stamp soft-events so a value added while servicing turn N is not eligible
// for delivery until turn N+1, bounding synthesized-event recursion.
func (l *Loop) Turn() uint64 { return l.turnCounter.Load() }

// turn executes one dispatch cycle.
func (l *Loop) turn() {
	start := l.now()
	l.turnCounter.Add(1)

	timeout := l.calculateTimeoutMs()
	if l.hasPendingWork() {
		// Work was queued/signalled while the loop was StatusRunning (i.e.
		// between turns, before wake() could find it StatusSleeping and
		// write to the wake pipe): poll non-blocking instead of sleeping on
		// a stale timeout so it is picked up this turn.
		timeout = 0
	}

	l.state.TryTransition(StatusRunning, StatusSleeping)
	_, err := l.poller.PollIO(timeout)
	l.state.TryTransition(StatusSleeping, StatusRunning)
	if err != nil {
		l.logger.Errorf("eventloop: poll failed: %v", err)
		l.state.Store(StatusDone)
		return
	}

	l.tickAnchorMu.RLock()
	anchor := l.tickAnchor
	l.tickAnchorMu.RUnlock()
	l.tickElapsed.Store(int64(time.Since(anchor)))

	l.drainSoftEvents()
	l.runExpiredTimers()
	l.deliverPendingTriggers()
	l.drainQueue()

	l.processTimeMs.Add(l.now().Sub(start).Milliseconds())
}

// drainSoftEvents is dispatch step 4 (spec.md §4.1): sweep every attached
// handle implementing SoftEventSource so soft-events stamped during a prior
// turn, and therefore not yet eligible, are delivered once they mature —
// independent of whether the handle sees another hard event.
func (l *Loop) drainSoftEvents() {
	l.handlesMu.Lock()
	snapshot := make([]Handle, 0, len(l.handles))
	for _, rh := range l.handles {
		snapshot = append(snapshot, rh.h)
	}
	l.handlesMu.Unlock()

	for _, h := range snapshot {
		if s, ok := h.(SoftEventSource); ok {
			l.safeCall(s.DrainSoftEvents)
		}
	}
}

func (l *Loop) drainQueue() {
	for {
		l.queueMu.Lock()
		if len(l.queue) == 0 {
			l.queueMu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.queueMu.Unlock()
		l.safeCall(fn)
	}
}

func (l *Loop) runExpiredTimers() {
	now := l.now()
	for len(l.timers) > 0 {
		t := l.timers[0]
		if t.nextFireAt.After(now) {
			break
		}
		// heap.Pop via container/heap would re-sort; we pop the root directly
		// and re-push it below while it is still running.
		root := l.timers[0]
		l.timerUnscheduleLocked(root)
		root.fire(now)
		if root.running {
			l.timerScheduleLocked(root)
		}
	}
}

func (l *Loop) calculateTimeoutMs() int {
	maxDelay := 10 * time.Second
	if len(l.timers) > 0 {
		delay := l.timers[0].nextFireAt.Sub(l.now())
		if delay < 0 {
			delay = 0
		}
		if delay < maxDelay {
			maxDelay = delay
		}
	}
	if l.disconnectRequested {
		delay := l.disconnectDeadline.Sub(l.now())
		if delay < 0 {
			delay = 0
		}
		if delay < maxDelay {
			maxDelay = delay
		}
	}
	if maxDelay > 0 && maxDelay < time.Millisecond {
		return 1
	}
	return int(maxDelay.Milliseconds())
}

// hasPendingWork reports whether queued tasks or signalled triggers are
// already waiting, so turn() can poll non-blocking instead of sleeping on a
// timeout computed before that work arrived.
func (l *Loop) hasPendingWork() bool {
	l.queueMu.Lock()
	queued := len(l.queue) > 0
	l.queueMu.Unlock()
	if queued {
		return true
	}
	l.triggersMu.Lock()
	defer l.triggersMu.Unlock()
	for _, t := range l.triggers {
		if t.signalled.Load() {
			return true
		}
	}
	return false
}

func (l *Loop) shouldExitOnEmpty() bool {
	if l.flags&(ExitOnEmpty|ExitOnEmptyNoTimers) == 0 {
		return false
	}
	l.handlesMu.Lock()
	nHandles := len(l.handles)
	l.handlesMu.Unlock()
	l.triggersMu.Lock()
	nTriggers := len(l.triggers)
	l.triggersMu.Unlock()
	nTimers := 0
	if l.flags&ExitOnEmptyNoTimers == 0 {
		nTimers = len(l.timers)
	}
	return nHandles == 0 && nTriggers == 0 && nTimers == 0
}

func (l *Loop) allHandlesTerminal() bool {
	l.handlesMu.Lock()
	defer l.handlesMu.Unlock()
	return len(l.handles) == 0
}

// objectCount reports the number of objects the loop currently owns, used
// by EventPool to pick the least-loaded loop at attach time.
func (l *Loop) objectCount() int {
	l.handlesMu.Lock()
	n := len(l.handles)
	l.handlesMu.Unlock()
	l.triggersMu.Lock()
	n += len(l.triggers)
	l.triggersMu.Unlock()
	n += len(l.timers)
	return n
}

func (l *Loop) drainOnShutdown() {
	l.drainQueue()
	l.closeOnce.Do(func() {
		_ = l.poller.Close()
		_ = unix.Close(l.wakePipe)
		if l.wakePipeWrite != l.wakePipe {
			_ = unix.Close(l.wakePipeWrite)
		}
	})
}

func (l *Loop) isLoopThread() bool {
	id := l.loopGoroutineID.Load()
	return id != 0 && id == goroutineID()
}
