// Package eventloop implements a cooperative, single-threaded event
// dispatcher with optional worker-thread pooling, timers, triggers, and
// cross-thread queued task delivery.
//
// # Architecture
//
// A [Loop] owns a set of registered handles, a timer heap, and a set of
// triggers. Each turn it blocks in a platform I/O primitive (epoll on
// Linux, kqueue on Darwin/BSD, IOCP on Windows) until the next timer
// deadline or a readiness notification arrives, then dispatches hard
// events, drains matured soft-events, fires expired timers, delivers
// pending triggers, and drains cross-thread queued operations, in that
// order. See [Loop.Run] for the
// full per-turn algorithm.
//
// An [EventPool] groups sibling loops pinned to worker goroutines/threads;
// [EventPool.Add] attaches a handle to whichever loop currently owns the
// fewest registered objects.
//
// # Platform Support
//
// I/O readiness is implemented using platform-native mechanisms:
//   - Linux: epoll
//   - Darwin/BSD: kqueue
//   - Windows: IOCP
//
// [Loop] itself calls golang.org/x/sys/unix directly for its wake fd, so the
// package builds only on Linux and Darwin; the IOCP poller and Windows wake
// helpers are not used by it.
//
// # Thread Safety
//
// A [Loop] is thread-affine once [Loop.Run] begins: only the goroutine
// running it mutates timers, triggers, and the handle set directly.
// [Loop.Add], [Loop.Remove], [Loop.TriggerAdd], and [Trigger.Signal] are
// safe to call from any goroutine; cross-thread requests are queued and
// applied on the owning loop before its next turn.
//
// # Usage
//
//	loop, err := eventloop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	trig, _ := loop.TriggerAdd(func() {
//	    fmt.Println("triggered")
//	})
//	go func() {
//	    time.Sleep(100 * time.Millisecond)
//	    trig.Signal()
//	    loop.Done()
//	}()
//	if err := loop.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
package eventloop
