// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package statemachine

import "fmt"

type stateKind int

const (
	kindLeaf stateKind = iota
	kindSub
)

type stateEntry struct {
	id          StateID
	descr       string
	kind        stateKind
	run         StateFunc
	subSM       *Sm
	pre         PreFunc
	post        PostFunc
	cleanupSM   *CleanupSm
	allowedNext map[StateID]bool
}

// Sm is a hierarchical state machine, per spec.md §3/§4.3. The zero value
// is not usable; construct with [NewSm].
type Sm struct {
	descr string
	flags Flags
	order []StateID
	states map[StateID]*stateEntry
	trace TraceFunc

	started bool
	current StateID
	prev    StateID
	havePrev bool
	visited []StateID
	lastUserData any

	cleanupRunning bool
	cleanupReason  CleanupReason
	cleanupPos     int
	cleanupActive  *CleanupSm
	cleanupResult  Status
}

// NewSm constructs an empty machine. States must be added with InsertState
// or InsertSubStateMachine before the first Run.
func NewSm(descr string, flags Flags) *Sm {
	return &Sm{
		descr:  descr,
		flags:  flags,
		states: make(map[StateID]*stateEntry),
	}
}

// InsertState adds a leaf state. allowedNext, if non-empty, restricts
// StatusNext transitions out of this state to the named ids; a nil/empty
// set means "any state, or the definitional next on an unset next-id".
func (sm *Sm) InsertState(id StateID, descr string, run StateFunc, cleanup *CleanupSm, allowedNext []StateID) error {
	if id == 0 {
		return ErrInvalidStateID
	}
	if _, ok := sm.states[id]; ok {
		return ErrDuplicateStateID
	}
	if run == nil {
		return ErrNilRunFunc
	}
	sm.states[id] = &stateEntry{
		id:          id,
		descr:       descr,
		kind:        kindLeaf,
		run:         run,
		cleanupSM:   cleanup,
		allowedNext: allowedNextSet(allowedNext),
	}
	sm.order = append(sm.order, id)
	return nil
}

// InsertSubStateMachine adds a state whose implementation is another Sm.
// pre and post are both optional.
func (sm *Sm) InsertSubStateMachine(id StateID, descr string, sub *Sm, pre PreFunc, post PostFunc, cleanup *CleanupSm, allowedNext []StateID) error {
	if id == 0 {
		return ErrInvalidStateID
	}
	if _, ok := sm.states[id]; ok {
		return ErrDuplicateStateID
	}
	if sub == nil {
		return ErrNilSubMachine
	}
	sm.states[id] = &stateEntry{
		id:          id,
		descr:       descr,
		kind:        kindSub,
		subSM:       sub,
		pre:         pre,
		post:        post,
		cleanupSM:   cleanup,
		allowedNext: allowedNextSet(allowedNext),
	}
	sm.order = append(sm.order, id)
	return nil
}

func allowedNextSet(ids []StateID) map[StateID]bool {
	if len(ids) == 0 {
		return nil
	}
	m := make(map[StateID]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// EnableTrace attaches a trace callback invoked on every machine/state/pre/
// post/cleanup transition. A nil callback disables tracing.
func (sm *Sm) EnableTrace(cb TraceFunc) {
	sm.trace = cb
}

func (sm *Sm) emitTrace(event TraceEvent) {
	if sm.trace == nil {
		return
	}
	sm.trace(event, sm.DescrFull(true))
}

// Run drives the machine from its current suspended position (or its entry
// state, on the first call) until it suspends (StatusWait) or terminates
// (StatusDone or one of the ERROR_* statuses).
func (sm *Sm) Run(userData any) Status {
	sm.lastUserData = userData

	if sm.cleanupRunning {
		return sm.runCleanup(userData)
	}

	if !sm.started {
		sm.started = true
		sm.emitTrace(TraceMachineEnter)
		sm.current = sm.order[0]
		sm.visited = append(sm.visited[:0], sm.current)
	}

	for {
		entry := sm.states[sm.current]
		sm.emitTrace(TraceStateStart)

		var status Status
		var next StateID

		if entry.kind == kindLeaf {
			status = entry.run(userData, &next)
		} else {
			status, next = sm.runSubState(entry, userData)
			if status == StatusWait {
				return StatusWait
			}
		}

		switch {
		case status == StatusWait:
			return StatusWait

		case status == StatusDone:
			sm.emitTrace(TraceMachineExit)
			sm.resetRunState()
			return StatusDone

		case status.IsError():
			return sm.beginCleanup(userData, CleanupError, status)

		case status == StatusPrev:
			if !sm.havePrev {
				return sm.beginCleanup(userData, CleanupError, StatusErrorNoNext)
			}
			sm.current = sm.prev
			continue

		case status == StatusNext:
			nextID, outcome := sm.resolveNext(entry, next)
			if outcome == StatusDone {
				sm.emitTrace(TraceMachineExit)
				sm.resetRunState()
				return StatusDone
			}
			if outcome.IsError() {
				return sm.beginCleanup(userData, CleanupError, outcome)
			}
			sm.prev = sm.current
			sm.havePrev = true
			sm.current = nextID
			sm.visited = append(sm.visited, nextID)
			continue

		default:
			return sm.beginCleanup(userData, CleanupError, StatusErrorState)
		}
	}
}

// resolveNext implements the NEXT out-param resolution rules from
// spec.md §4.3. It returns a valid next StateID with a zero outcome to
// continue the run, a zero StateID with StatusDone when a linear machine's
// last state falls off the end of its declared order, or a zero StateID
// with the ERROR_* status to terminate with.
func (sm *Sm) resolveNext(entry *stateEntry, next StateID) (StateID, Status) {
	if next == 0 {
		if sm.flags&FlagLinearEnd == 0 && len(entry.allowedNext) != 0 {
			return 0, StatusErrorNoNext
		}
		idx := indexOf(sm.order, entry.id)
		if idx < 0 {
			return 0, StatusErrorNoNext
		}
		if idx+1 >= len(sm.order) {
			return 0, StatusDone
		}
		return sm.order[idx+1], 0
	}

	if next == entry.id {
		if sm.flags&FlagDoNotSelfTrans == 0 {
			return 0, StatusErrorSelfNext
		}
		return next, 0
	}

	if len(entry.allowedNext) != 0 && !entry.allowedNext[next] {
		return 0, StatusErrorBadNext
	}
	if _, ok := sm.states[next]; !ok {
		return 0, StatusErrorBadNext
	}
	return next, 0
}

func indexOf(ids []StateID, target StateID) int {
	for i, id := range ids {
		if id == target {
			return i
		}
	}
	return -1
}

// runSubState drives a sub-state-machine entry: the optional pre hook, the
// sub-machine itself, and the optional post hook.
func (sm *Sm) runSubState(entry *stateEntry, userData any) (Status, StateID) {
	if entry.pre != nil {
		sm.emitTrace(TracePreStart)
		var preStatus Status
		var preNext StateID
		if !entry.pre(userData, &preStatus, &preNext) {
			return preStatus, preNext
		}
	}

	subStatus := entry.subSM.Run(userData)
	if subStatus == StatusWait {
		return StatusWait, 0
	}

	if entry.post != nil {
		sm.emitTrace(TracePostStart)
		var postNext StateID
		status := entry.post(userData, subStatus, &postNext)
		return status, postNext
	}
	return subStatus, 0
}

// beginCleanup starts (or, if nothing needs cleaning up, immediately
// finishes) a cleanup pass and stores the terminal status to return once it
// completes.
func (sm *Sm) beginCleanup(userData any, reason CleanupReason, terminal Status) Status {
	sm.cleanupRunning = true
	sm.cleanupReason = reason
	sm.cleanupResult = terminal
	sm.cleanupPos = len(sm.visited) - 1
	return sm.runCleanup(userData)
}

// runCleanup walks the visited-state stack from the most recently entered
// state backward, running each one's CleanupSm (if any) to completion.
func (sm *Sm) runCleanup(userData any) Status {
	for sm.cleanupPos >= 0 {
		id := sm.visited[sm.cleanupPos]
		entry := sm.states[id]

		if entry.cleanupSM == nil {
			sm.cleanupPos--
			continue
		}

		if sm.cleanupActive == nil {
			sm.cleanupActive = entry.cleanupSM
			sm.emitTrace(TraceCleanup)
		}

		status := sm.cleanupActive.run(userData, sm.cleanupReason)
		if status == StatusWait {
			return StatusWait
		}

		sm.cleanupActive = nil
		sm.cleanupPos--
	}

	sm.emitTrace(TraceMachineExit)
	result := sm.cleanupResult
	sm.resetRunState()
	return result
}

// resetRunState clears all per-run position tracking, leaving the machine
// ready to start again from its entry state.
func (sm *Sm) resetRunState() {
	sm.started = false
	sm.current = 0
	sm.prev = 0
	sm.havePrev = false
	sm.visited = nil
	sm.cleanupRunning = false
	sm.cleanupPos = -1
	sm.cleanupActive = nil
	sm.cleanupReason = 0
	sm.cleanupResult = 0
}

// Reset aborts or winds down the machine's current run, per spec.md §4.3.
// CleanupCancel while a cleanup pass is already in progress (e.g. suspended
// on StatusWait) aborts it immediately, including the in-progress cleanup
// machine, without running the remainder of the cleanup stack. Otherwise
// every reason, CleanupCancel included, runs the full cleanup stack (using
// the userData from the most recent Run call) before resetting; if a
// cleanup machine suspends on StatusWait, Reset returns with the machine
// still mid-cleanup, resumable by a further call to Run.
func (sm *Sm) Reset(reason CleanupReason) Status {
	if reason == CleanupCancel && sm.cleanupRunning {
		if sm.cleanupActive != nil {
			sm.cleanupActive.abort()
		}
		sm.resetRunState()
		return StatusDone
	}
	if !sm.started && !sm.cleanupRunning {
		return StatusDone
	}
	if !sm.cleanupRunning {
		return sm.beginCleanup(sm.lastUserData, reason, StatusDone)
	}
	sm.cleanupReason = reason
	return sm.runCleanup(sm.lastUserData)
}

// ActiveState reports the currently active state id and nesting depth (0 =
// this machine's own state, 1 = one level of sub-state-machine, ...). ok is
// false if the machine isn't currently running.
func (sm *Sm) ActiveState() (id StateID, depth int, ok bool) {
	if !sm.started {
		return 0, 0, false
	}
	id = sm.current
	entry := sm.states[id]
	if entry != nil && entry.kind == kindSub && entry.subSM.started {
		_, subDepth, _ := entry.subSM.ActiveState()
		return id, subDepth + 1, true
	}
	return id, 0, true
}

// ActiveSub returns the innermost currently-running sub-state-machine, or
// sm itself if no sub-machine is active. When includeCleanup is true and a
// cleanup machine is active, it's treated as the innermost level instead.
func (sm *Sm) ActiveSub(includeCleanup bool) *Sm {
	if includeCleanup && sm.cleanupRunning && sm.cleanupActive != nil {
		return sm
	}
	if sm.started {
		if entry := sm.states[sm.current]; entry != nil && entry.kind == kindSub && entry.subSM.started {
			return entry.subSM.ActiveSub(includeCleanup)
		}
	}
	return sm
}

// DescrFull renders the full descriptor path for tracing, e.g.
// "[M] SM -> [S] B (2) -> [CM] CM2 -> [S] D (1)".
func (sm *Sm) DescrFull(includeCleanup bool) string {
	if !sm.started {
		return fmt.Sprintf("[M] %s", sm.descr)
	}
	entry := sm.states[sm.current]
	s := fmt.Sprintf("[M] %s -> [S] %s (%d)", sm.descr, entry.descr, sm.current)

	if includeCleanup && sm.cleanupRunning && sm.cleanupActive != nil {
		return s + " -> " + sm.cleanupActive.descrFull()
	}
	if entry.kind == kindSub && entry.subSM.started {
		sub := entry.subSM.DescrFull(includeCleanup)
		// Drop the sub-machine's own "[M] <descr>" prefix word repetition by
		// keeping it: nested sub-machines are genuinely distinct machines.
		return s + " -> " + sub
	}
	return s
}
