package eventloop

import (
	"container/heap"
	"time"
)

// TimerMode selects how a Timer computes its next deadline.
type TimerMode int

const (
	// ModeRelative schedules the next deadline as last_actual_fire + interval,
	// so a delayed callback does not cause a burst of catch-up fires.
	ModeRelative TimerMode = iota
	// ModeMonotonic schedules the next deadline as last_scheduled + interval
	// regardless of drift, so a stalled loop catches up with a burst of
	// fires once it resumes.
	ModeMonotonic
)

// Timer is a loop-owned, repeatable deadline with optional fire-count limit
// and autoremove-on-stop behavior.
type Timer struct {
	loop     *Loop
	callback func(*Timer)

	intervalMs     int64
	mode           TimerMode
	fireCountLimit int64 // 0 means unlimited
	firesSoFar     int64
	autoremove     bool
	endAt          time.Time // zero means unset

	running    bool
	nextFireAt time.Time
	scheduledAt time.Time // last computed deadline, used by ModeMonotonic
	index      int       // heap index, maintained by timerHeap
}

// TimerOption configures a Timer at construction time.
type TimerOption func(*Timer)

// WithTimerMode sets RELATIVE (default) or MONOTONIC scheduling.
func WithTimerMode(mode TimerMode) TimerOption {
	return func(t *Timer) { t.mode = mode }
}

// WithFireCountLimit bounds the number of times the timer fires before it
// automatically stops. 0 (the default) means unlimited.
func WithFireCountLimit(n int64) TimerOption {
	return func(t *Timer) { t.fireCountLimit = n }
}

// WithAutoremove marks the timer to free itself (remove from the loop) the
// moment it enters the stopped state, whether by exhausting its fire count
// or by an explicit Stop.
func WithAutoremove(enabled bool) TimerOption {
	return func(t *Timer) { t.autoremove = enabled }
}

// WithEndAt bounds the timer to stop firing once this time is reached.
func WithEndAt(end time.Time) TimerOption {
	return func(t *Timer) { t.endAt = end }
}

// AddTimer creates a new, stopped timer owned by the loop. intervalMs must
// be > 0 unless fireCountLimit == 1, per the timer's single-shot invariant.
func (l *Loop) AddTimer(intervalMs int64, cb func(*Timer), opts ...TimerOption) (*Timer, error) {
	t := &Timer{
		loop:       l,
		callback:   cb,
		intervalMs: intervalMs,
		index:      -1,
	}
	for _, o := range opts {
		if o != nil {
			o(t)
		}
	}
	if t.fireCountLimit != 1 && intervalMs <= 0 {
		return nil, ErrInvalidTimer
	}
	return t, nil
}

// Start schedules the timer's first deadline as now+interval and resets its
// fire count. No explicit start time can be configured: the first deadline
// is always measured from when Start is applied on the loop goroutine.
func (t *Timer) Start() {
	t.loop.SubmitInternal(func() {
		t.running = true
		t.firesSoFar = 0
		now := t.loop.now()
		t.nextFireAt = now.Add(time.Duration(t.intervalMs) * time.Millisecond)
		t.scheduledAt = t.nextFireAt
		t.loop.timerScheduleLocked(t)
	})
}

// Stop halts the timer; it will not fire again until Start or Reset.
// If the timer was constructed WithAutoremove, it is unregistered from the
// loop once this call's effects are applied on the loop goroutine.
func (t *Timer) Stop() {
	t.loop.SubmitInternal(func() {
		t.stopLocked()
	})
}

func (t *Timer) stopLocked() {
	wasRunning := t.running
	t.running = false
	if wasRunning {
		t.loop.timerUnscheduleLocked(t)
	}
	// autoremove has no further effect beyond leaving the heap: a stopped,
	// unreferenced Timer is simply garbage once the caller drops it.
}

// Reset restarts the timer. interval == 0 reuses the timer's existing
// interval (distinct from AddTimer, which rejects interval <= 0 unless the
// timer is single-shot).
func (t *Timer) Reset(intervalMs int64) {
	t.loop.SubmitInternal(func() {
		if t.running {
			t.loop.timerUnscheduleLocked(t)
		}
		if intervalMs != 0 {
			t.intervalMs = intervalMs
		}
		t.running = true
		t.firesSoFar = 0
		now := t.loop.now()
		t.nextFireAt = now.Add(time.Duration(t.intervalMs) * time.Millisecond)
		t.scheduledAt = t.nextFireAt
		t.loop.timerScheduleLocked(t)
	})
}

// RemainingMs returns the milliseconds until the next fire, or 0 if stopped.
// Must be called from the loop goroutine for an accurate answer; safe to
// call from elsewhere, but may race with a concurrent Start/Stop/Reset.
func (t *Timer) RemainingMs() int64 {
	if !t.running {
		return 0
	}
	d := t.nextFireAt.Sub(t.loop.now())
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

// Running reports whether the timer is currently scheduled.
func (t *Timer) Running() bool { return t.running }

// fire executes the timer's callback and computes its next deadline
// following its mode, respecting fire_count_limit, end_tv and autoremove.
func (t *Timer) fire(now time.Time) {
	t.firesSoFar++
	t.callback(t)

	if t.fireCountLimit != 0 && t.firesSoFar >= t.fireCountLimit {
		t.stopLocked()
		return
	}
	if !t.endAt.IsZero() && !now.Before(t.endAt) {
		t.stopLocked()
		return
	}

	switch t.mode {
	case ModeMonotonic:
		t.scheduledAt = t.scheduledAt.Add(time.Duration(t.intervalMs) * time.Millisecond)
		t.nextFireAt = t.scheduledAt
	default: // ModeRelative
		t.nextFireAt = now.Add(time.Duration(t.intervalMs) * time.Millisecond)
		t.scheduledAt = t.nextFireAt
	}
}

// timerHeap is a container/heap min-heap ordered by nextFireAt, used by Loop
// to find the next wakeup deadline and to fire all expired timers in a turn.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	return h[i].nextFireAt.Before(h[j].nextFireAt)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// timerScheduleLocked inserts or re-inserts t into the heap. Must run on the
// loop goroutine (it is only ever called from SubmitInternal callbacks).
func (l *Loop) timerScheduleLocked(t *Timer) {
	if t.index >= 0 {
		heap.Fix(&l.timers, t.index)
		return
	}
	heap.Push(&l.timers, t)
}

// timerUnscheduleLocked removes t from the heap if present.
func (l *Loop) timerUnscheduleLocked(t *Timer) {
	if t.index < 0 || t.index >= len(l.timers) {
		return
	}
	heap.Remove(&l.timers, t.index)
}

