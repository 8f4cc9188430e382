package ioloop

import "github.com/joeycumines/mstdlib-go/eventloop"

// Target distinguishes a soft-event meant only for the layer that queued it
// (Self, e.g. "recheck my pending egress buffer") from one that should
// propagate upward through every higher layer's ProcessEvent callback (Up).
type Target int

const (
	TargetUp Target = iota
	TargetSelf
)

// SoftEvent is a synthesized event queued on a specific layer, per spec.md
// §3/§4.2.
type SoftEvent struct {
	Kind     eventloop.EventKind
	IOErr    error
	Target   Target
	Sequence uint64

	// generation is the loop turn the event was enqueued during. A hard
	// event (converted directly from OS readiness) is stamped 0 so it is
	// always eligible for delivery in the turn that produced it; a
	// layer-synthesized soft-event is stamped with the current turn number,
	// making it eligible only once that turn has fully passed — the
	// bounded-recursion rule in spec.md §4.2.
	generation uint64
}

// softEventQueue is a single layer's FIFO of pending soft-events, with the
// coalescing rule from spec.md §3: duplicate pending READ/WRITE collapse to
// one; terminal events override pending non-terminals and are never
// coalesced away.
type softEventQueue struct {
	events []SoftEvent
	seq    uint64
}

func (q *softEventQueue) add(kind eventloop.EventKind, ioErr error, target Target, generation uint64) {
	q.seq++
	ev := SoftEvent{Kind: kind, IOErr: ioErr, Target: target, Sequence: q.seq, generation: generation}

	if kind.IsTerminal() {
		// Override: drop every pending non-terminal event for this layer.
		kept := q.events[:0]
		for _, e := range q.events {
			if e.Kind.IsTerminal() {
				kept = append(kept, e)
			}
		}
		q.events = kept
		for _, e := range q.events {
			if e.Kind == kind {
				return // already have a pending terminal event of this kind
			}
		}
		q.events = append(q.events, ev)
		return
	}

	for _, e := range q.events {
		if e.Kind == kind && e.Target == target {
			return // duplicate pending READ/WRITE (or other) collapses to one
		}
	}
	q.events = append(q.events, ev)
}

// popEligible removes and returns the oldest queued event if it is stamped
// generation 0 or was enqueued in a turn strictly before currentTurn.
// Returns ok=false (without mutating the queue) if the queue is empty or the
// oldest event was enqueued during the current (non-zero) turn.
func (q *softEventQueue) popEligible(currentTurn uint64) (SoftEvent, bool) {
	if len(q.events) == 0 {
		return SoftEvent{}, false
	}
	if g := q.events[0].generation; g != 0 && g >= currentTurn {
		return SoftEvent{}, false
	}
	ev := q.events[0]
	q.events = q.events[1:]
	return ev, true
}

func (q *softEventQueue) empty() bool { return len(q.events) == 0 }
