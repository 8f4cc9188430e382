package ioloop

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/mstdlib-go/eventloop"
)

var ioIDCounter atomic.Uint64

// Io is a layered I/O handle: identity plus an ordered stack of [Layer]s,
// per spec.md §3. It implements [eventloop.Handle] and [eventloop.Attacher]
// so it can be registered directly with an [eventloop.Loop].
type Io struct {
	id uint64

	layersMu sync.RWMutex
	layers   []*Layer

	stateMu sync.RWMutex
	ioState IoState

	attachMu sync.Mutex
	loop     *eventloop.Loop
	trigger  *eventloop.Trigger

	userCB eventloop.Callback

	listening bool

	disconnectMu        sync.Mutex
	disconnectRequested bool

	terminalDelivered atomic.Bool
	destroyed         atomic.Bool

	transport Transport
}

// NewIo constructs a handle with a single base transport layer at index 0.
func NewIo(transport Transport, baseCB Callbacks) (*Io, error) {
	if baseCB.ProcessEvent == nil {
		return nil, ErrLayerMissingProcessEvent
	}
	if baseCB.Destroy == nil {
		return nil, ErrLayerMissingDestroy
	}
	h := &Io{id: ioIDCounter.Add(1), ioState: StateInit, transport: transport}
	base := newLayer(0, h, baseCB)
	h.layers = append(h.layers, base)
	if base.cb.Init != nil {
		if err := base.cb.Init(base); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// ID returns the handle's identity, unique within the process.
func (io *Io) ID() uint64 { return io.id }

// AddLayer appends a new layer atop the handle's current stack.
func (io *Io) AddLayer(cb Callbacks) (*Layer, error) {
	if cb.ProcessEvent == nil {
		return nil, ErrLayerMissingProcessEvent
	}
	if cb.Destroy == nil {
		return nil, ErrLayerMissingDestroy
	}
	io.layersMu.Lock()
	l := newLayer(len(io.layers), io, cb)
	io.layers = append(io.layers, l)
	io.layersMu.Unlock()
	if cb.Init != nil {
		if err := cb.Init(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Layers returns the handle's current layer stack, bottom to top.
func (io *Io) Layers() []*Layer {
	io.layersMu.RLock()
	defer io.layersMu.RUnlock()
	out := make([]*Layer, len(io.layers))
	copy(out, io.layers)
	return out
}

// Top returns the handle's topmost layer.
func (io *Io) Top() *Layer {
	io.layersMu.RLock()
	defer io.layersMu.RUnlock()
	return io.layers[len(io.layers)-1]
}

// State returns the handle's aggregate state: the maximum-severity state
// reported by any layer's State callback, folded with the handle's own
// tracked lifecycle state (spec.md §4.2).
func (io *Io) State() IoState {
	io.stateMu.RLock()
	max := io.ioState
	io.stateMu.RUnlock()
	for _, l := range io.Layers() {
		if l.cb.State != nil {
			max = MaxState(max, l.cb.State(l))
		}
	}
	return max
}

func (io *Io) setState(s IoState) {
	io.stateMu.Lock()
	io.ioState = s
	io.stateMu.Unlock()
}

// RemoteAddr returns the base transport's remote address, if it exposes
// one. Used by proxyproto's get_ipaddr fallback for non-relayed handles.
func (io *Io) RemoteAddr() (string, bool) {
	layers := io.Layers()
	if len(layers) == 0 {
		return "", false
	}
	base := layers[0]
	if base.cb.RemoteAddr == nil {
		return "", false
	}
	return base.cb.RemoteAddr(base)
}

// ErrorMsg concatenates every layer's ErrorMsg contribution, bottom to top.
func (io *Io) ErrorMsg() string {
	var msg string
	for _, l := range io.Layers() {
		if l.cb.ErrorMsg != nil {
			if m := l.cb.ErrorMsg(l); m != "" {
				if msg != "" {
					msg += "; "
				}
				msg += m
			}
		}
	}
	return msg
}

// FD implements eventloop.Handle, delegating to the base transport.
func (io *Io) FD() int {
	if io.transport == nil {
		return -1
	}
	return io.transport.FD()
}

// WantEvents implements eventloop.Handle: always interested in readability,
// plus writability whenever any layer reports pending egress, plus
// writability unconditionally while a non-blocking connect (DialTCP) is
// still outstanding, since writability is how its completion is observed.
func (io *Io) WantEvents() eventloop.IOEvents {
	want := eventloop.EventRead
	io.stateMu.RLock()
	connecting := io.ioState == StateConnecting
	io.stateMu.RUnlock()
	if connecting {
		want |= eventloop.EventWrite
	}
	for _, l := range io.Layers() {
		if l.cb.PendingEgress != nil && l.cb.PendingEgress(l) {
			want |= eventloop.EventWrite
		}
	}
	return want
}

// TryAttach implements eventloop.Attacher. It also registers a Trigger on
// loop so Enqueue can wake the loop promptly (rather than leaving a soft
// event to wait out the idle poll timeout) — see scheduleDrain.
func (io *Io) TryAttach(loop *eventloop.Loop) bool {
	io.attachMu.Lock()
	defer io.attachMu.Unlock()
	if io.loop != nil {
		return false
	}
	io.loop = loop
	io.trigger, _ = loop.TriggerAdd(io.runTurn)
	return true
}

// Detach implements eventloop.Attacher.
func (io *Io) Detach() {
	io.attachMu.Lock()
	if io.trigger != nil {
		io.trigger.Remove()
		io.trigger = nil
	}
	io.loop = nil
	io.attachMu.Unlock()
}

func (io *Io) attachedLoop() *eventloop.Loop {
	io.attachMu.Lock()
	defer io.attachMu.Unlock()
	return io.loop
}

func (io *Io) attachedTrigger() *eventloop.Trigger {
	io.attachMu.Lock()
	defer io.attachMu.Unlock()
	return io.trigger
}

// DrainSoftEvents implements eventloop.SoftEventSource: the loop calls this
// once per turn for every attached handle, delivering soft-events that
// matured (were stamped on a prior turn) even without a fresh hard event.
func (io *Io) DrainSoftEvents() { io.runTurn() }

// Loop returns the loop this handle is currently registered with, or nil if
// unattached. Used by layers (e.g. proxyproto) that need to schedule their
// own timers against the handle's owning loop.
func (io *Io) Loop() *eventloop.Loop {
	return io.attachedLoop()
}

// SyncWantEvents re-synchronizes the attached loop's poll interest for this
// handle with the current WantEvents result. A layer must call this after
// any change to its PendingEgress answer (e.g. queuing or finishing a
// buffered write) — the loop only re-reads WantEvents on registration and
// on an explicit sync, never implicitly. A no-op if unattached.
func (io *Io) SyncWantEvents() {
	if loop := io.attachedLoop(); loop != nil {
		_ = loop.ModifyWantEvents(io)
	}
}

// Callback registers the user-level callback invoked once an event has
// cleared every layer's ProcessEvent. Add the handle to a Loop with this as
// the Loop.Add callback.
func (io *Io) Callback(userCB eventloop.Callback) eventloop.Callback {
	io.userCB = userCB
	return func(h eventloop.Handle, kind eventloop.EventKind, ioErr error) {
		io.onHardEvent(kind, ioErr)
	}
}

// onHardEvent converts an OS-readiness-derived event from the loop into a
// soft-event on the base layer (generation 0: always eligible this turn)
// and runs a delivery pass.
func (io *Io) onHardEvent(kind eventloop.EventKind, ioErr error) {
	if io.terminalDelivered.Load() {
		return
	}
	base := io.Layers()[0]
	base.mu.Lock()
	base.queue.add(kind, ioErr, TargetUp, 0)
	base.mu.Unlock()
	io.runTurn()
}

// scheduleDrain runs a delivery pass immediately, delivering anything
// already eligible (e.g. on an unattached Io, where every stamped event is
// eligible this turn). Because generation stamping (see softEventQueue)
// makes events enqueued while attached ineligible until the turn after they
// were added, this alone can't deliver them — it also signals the handle's
// Trigger, if attached, so the loop wakes promptly (rather than idling out
// the poll timeout) and its next turn's DrainSoftEvents sweep picks them up.
func (io *Io) scheduleDrain() {
	io.runTurn()
	if t := io.attachedTrigger(); t != nil {
		t.Signal()
	}
}

func (io *Io) currentTurn() uint64 {
	if loop := io.attachedLoop(); loop != nil {
		return loop.Turn()
	}
	return ^uint64(0) // unattached: treat every stamped event as eligible
}

// runTurn drains every layer's queue of events eligible this turn, bottom
// to top, delivering each one.
func (io *Io) runTurn() {
	turn := io.currentTurn()
	for _, l := range io.Layers() {
		for {
			ev, ok := l.popEligibleLocked(turn)
			if !ok {
				break
			}
			io.deliver(l, ev)
		}
	}
}

func (l *Layer) popEligibleLocked(turn uint64) (SoftEvent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.popEligible(turn)
}

// deliver propagates ev upward from origin, per spec.md §4.2: a Self-target
// event is only offered to its own layer's ProcessEvent; an Up-target event
// walks every higher layer's ProcessEvent in order, and reaches the
// user-level callback only if none of them suppress it.
func (io *Io) deliver(origin *Layer, ev SoftEvent) {
	if io.terminalDelivered.Load() {
		return
	}

	kind, ioErr := ev.Kind, ev.IOErr

	if ev.Target == TargetSelf {
		if origin.cb.ProcessEvent != nil {
			var ok bool
			kind, ok = origin.cb.ProcessEvent(origin, kind, ioErr)
			if !ok {
				return
			}
		}
		io.dispatchToUser(kind, ioErr)
		return
	}

	layers := io.Layers()
	for idx := origin.index + 1; idx < len(layers); idx++ {
		l := layers[idx]
		if l.cb.ProcessEvent == nil {
			continue
		}
		var ok bool
		kind, ok = l.cb.ProcessEvent(l, kind, ioErr)
		if !ok {
			return
		}
	}
	io.dispatchToUser(kind, ioErr)
}

func (io *Io) dispatchToUser(kind eventloop.EventKind, ioErr error) {
	if kind.IsTerminal() {
		if !io.terminalDelivered.CompareAndSwap(false, true) {
			return
		}
		io.setState(terminalState(kind))
	} else if kind == eventloop.KindConnected {
		io.stateMu.Lock()
		if io.ioState == StateConnecting || io.ioState == StateInit || io.ioState == StateAccepted {
			io.ioState = StateConnected
		}
		io.stateMu.Unlock()
	}
	if io.userCB != nil {
		io.userCB(io, kind, ioErr)
	}
	if kind == eventloop.KindDisconnected || kind == eventloop.KindError {
		io.checkDisconnectComplete()
	}
}

func terminalState(kind eventloop.EventKind) IoState {
	if kind == eventloop.KindError {
		return StateError
	}
	return StateDisconnected
}

// readFrom walks down from layer idx until one defines Read, falling back
// to the base transport.
func (io *Io) readFrom(idx int, buf []byte) (int, error) {
	if idx < 0 {
		return 0, ErrNoBaseLayer
	}
	layers := io.Layers()
	if idx >= len(layers) {
		return 0, ErrNoBaseLayer
	}
	l := layers[idx]
	if l.cb.Read != nil {
		return l.cb.Read(l, buf)
	}
	return io.readFrom(idx-1, buf)
}

// writeFrom walks down from layer idx until one defines Write, falling
// back to the base transport.
func (io *Io) writeFrom(idx int, buf []byte) (int, error) {
	if idx < 0 {
		return 0, ErrNoBaseLayer
	}
	layers := io.Layers()
	if idx >= len(layers) {
		return 0, ErrNoBaseLayer
	}
	l := layers[idx]
	if l.cb.Write != nil {
		return l.cb.Write(l, buf)
	}
	return io.writeFrom(idx-1, buf)
}

// Read reads through the full layer stack, top to bottom.
func (io *Io) Read(buf []byte) (int, error) {
	if io.destroyed.Load() {
		return 0, ErrHandleDestroyed
	}
	layers := io.Layers()
	if len(layers) == 0 {
		return 0, ErrNoBaseLayer
	}
	return io.readFrom(len(layers)-1, buf)
}

// Write writes through the full layer stack, top to bottom.
func (io *Io) Write(buf []byte) (int, error) {
	if io.destroyed.Load() {
		return 0, ErrHandleDestroyed
	}
	layers := io.Layers()
	if len(layers) == 0 {
		return 0, ErrNoBaseLayer
	}
	return io.writeFrom(len(layers)-1, buf)
}

// Disconnect begins the graceful-disconnect handshake (spec.md §4.2):
// state flips to DISCONNECTING and every layer gets a chance to report
// pending egress via PendingEgress; once none do, a DISCONNECTED soft-event
// is synthesized on the base layer. Disconnect does not close the
// transport; only Destroy does.
func (io *Io) Disconnect() {
	io.disconnectMu.Lock()
	already := io.disconnectRequested
	io.disconnectRequested = true
	io.disconnectMu.Unlock()
	if already {
		return
	}
	io.setState(StateDisconnecting)
	io.checkDisconnectComplete()
}

func (io *Io) checkDisconnectComplete() {
	io.disconnectMu.Lock()
	requested := io.disconnectRequested
	io.disconnectMu.Unlock()
	if !requested || io.terminalDelivered.Load() {
		return
	}
	for _, l := range io.Layers() {
		if l.cb.PendingEgress != nil && l.cb.PendingEgress(l) {
			return
		}
	}
	base := io.Layers()[0]
	base.mu.Lock()
	base.queue.add(eventloop.KindDisconnected, nil, TargetUp, 0)
	base.mu.Unlock()
	io.runTurn()
}

// Destroy runs every layer's required Destroy callback, bottom-up, and
// marks the handle unusable.
func (io *Io) Destroy() {
	if !io.destroyed.CompareAndSwap(false, true) {
		return
	}
	layers := io.Layers()
	for _, l := range layers {
		l.cb.Destroy(l)
	}
}

// Reset runs every layer's optional Reset callback, bottom-up, for handle
// reuse.
func (io *Io) Reset() error {
	for _, l := range io.Layers() {
		if l.cb.Reset != nil {
			if err := l.cb.Reset(l); err != nil {
				return err
			}
		}
	}
	io.terminalDelivered.Store(false)
	io.disconnectMu.Lock()
	io.disconnectRequested = false
	io.disconnectMu.Unlock()
	io.setState(StateInit)
	return nil
}
