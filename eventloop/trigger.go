package eventloop

import "sync/atomic"

// Trigger is a user-signalable source of OTHER events with at-most-one
// pending delivery: concurrent Signal calls while a delivery is pending
// collapse to a single OTHER event on the next turn.
type Trigger struct {
	loop      *Loop
	callback  func()
	signalled atomic.Bool
}

// TriggerAdd registers a new Trigger on the loop. The callback runs on the
// loop's goroutine when the trigger fires.
func (l *Loop) TriggerAdd(cb func()) (*Trigger, error) {
	t := &Trigger{loop: l, callback: cb}
	l.triggersMu.Lock()
	l.triggers = append(l.triggers, t)
	l.triggersMu.Unlock()
	l.wake()
	return t, nil
}

// Signal marks the trigger pending. Safe to call from any goroutine,
// including concurrently; redundant signals while a delivery is pending
// are idempotent (lock-free compare-and-set).
func (t *Trigger) Signal() {
	if t.signalled.CompareAndSwap(false, true) {
		t.loop.wake()
	}
}

// Remove detaches the trigger from its loop; it will not fire again.
func (t *Trigger) Remove() {
	l := t.loop
	l.triggersMu.Lock()
	for i, other := range l.triggers {
		if other == t {
			l.triggers = append(l.triggers[:i], l.triggers[i+1:]...)
			break
		}
	}
	l.triggersMu.Unlock()
}

// deliverPendingTriggers delivers one OTHER event per pending trigger,
// clearing each trigger's pending flag after enqueue, per the loop's
// per-turn dispatch algorithm.
func (l *Loop) deliverPendingTriggers() {
	l.triggersMu.Lock()
	snapshot := make([]*Trigger, len(l.triggers))
	copy(snapshot, l.triggers)
	l.triggersMu.Unlock()

	for _, t := range snapshot {
		if t.signalled.CompareAndSwap(true, false) {
			l.safeCall(t.callback)
		}
	}
}
