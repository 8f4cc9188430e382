package eventloop

import (
	"context"
	"runtime"
	"sync"
)

// EventPool is a set of sibling loops pinned to worker goroutines. Handles
// attached through Add are placed on whichever loop currently owns the
// fewest registered objects (handles + triggers + timers); handles attached
// directly to one of the pool's Loops via Loop.Add stay there.
type EventPool struct {
	mu    sync.Mutex
	loops []*Loop
}

// NewEventPool returns a pool of min(maxThreads, runtime.NumCPU()) sibling
// loops. maxThreads == 0 means runtime.NumCPU(). A pool that collapses to
// size 1 behaves as a single Loop with pool bookkeeping as a thin shell.
func NewEventPool(maxThreads int, opts ...LoopOption) (*EventPool, error) {
	n := maxThreads
	if n <= 0 || n > runtime.NumCPU() {
		n = runtime.NumCPU()
	}
	if n < 1 {
		n = 1
	}

	p := &EventPool{}
	for i := 0; i < n; i++ {
		l, err := New(opts...)
		if err != nil {
			return nil, err
		}
		l.pool = p
		p.loops = append(p.loops, l)
	}
	return p, nil
}

// Get returns the EventPool loop belongs to, or nil if loop is standalone.
// Provided as the explicit hook spec.md names for making load-balanced
// insertion through either a bare Loop or its owning pool uniform.
func Get(loop *Loop) *EventPool { return loop.pool }

// Loops returns the pool's member loops, in a stable order.
func (p *EventPool) Loops() []*Loop {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Loop, len(p.loops))
	copy(out, p.loops)
	return out
}

// leastLoaded returns the loop with the fewest currently-owned objects.
func (p *EventPool) leastLoaded() *Loop {
	p.mu.Lock()
	defer p.mu.Unlock()
	best := p.loops[0]
	bestCount := best.objectCount()
	for _, l := range p.loops[1:] {
		if c := l.objectCount(); c < bestCount {
			best = l
			bestCount = c
		}
	}
	return best
}

// Add attaches handle to the currently least-loaded member loop and returns
// the loop it landed on, so callers (and tests) can confirm placement.
func (p *EventPool) Add(h Handle, cb Callback) (*Loop, error) {
	l := p.leastLoaded()
	if err := l.Add(h, cb); err != nil {
		return nil, err
	}
	return l, nil
}

// Run starts every member loop, each on its own goroutine, and blocks until
// all of them finish or ctx is cancelled. The first non-nil error is
// returned; Run waits for every loop to exit regardless.
func (p *EventPool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make([]error, len(p.loops))
	for i, l := range p.loops {
		wg.Add(1)
		go func(i int, l *Loop) {
			defer wg.Done()
			errs[i] = l.Run(ctx)
		}(i, l)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Done requests every member loop finish with Status DONE.
func (p *EventPool) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range p.loops {
		l.Done()
	}
}
