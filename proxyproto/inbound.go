// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package proxyproto

import (
	"errors"

	"github.com/joeycumines/mstdlib-go/eventloop"
	"github.com/joeycumines/mstdlib-go/ioloop"
	"github.com/joeycumines/mstdlib-go/statemachine"
)

// AddInbound adds a PROXY protocol inbound layer atop io, per spec.md §4.4.
// It should be added to a freshly accepted handle, before the handle is
// registered with a loop. CONNECTED is suppressed until the header finishes
// parsing; getters become valid once Complete reports true.
func AddInbound(io *ioloop.Io, opts ...ProxyOption) (*ProxyHandle, error) {
	h := &ProxyHandle{
		opts:      resolveProxyOptions(opts),
		isInbound: true,
		sm:        newInboundSm(),
	}

	layer, err := io.AddLayer(ioloop.Callbacks{
		ProcessEvent: h.processEventInbound,
		Read:         h.readInbound,
		Reset:        h.resetInbound,
		Destroy:      h.destroyInbound,
		ErrorMsg:     func(*ioloop.Layer) string { return h.errMsg },
	})
	if err != nil {
		return nil, err
	}
	h.layer = layer
	return h, nil
}

func (h *ProxyHandle) processEventInbound(l *ioloop.Layer, kind eventloop.EventKind, ioErr error) (eventloop.EventKind, bool) {
	switch kind {
	case eventloop.KindConnected:
		h.startTimeoutTimer(l)
		return kind, false

	case eventloop.KindRead:
		if h.complete {
			return kind, true
		}
		if err := h.drainBelow(l); err != nil {
			h.fail(l, err.Error())
			return kind, false
		}
		switch status := h.sm.Run(h); {
		case status == statemachine.StatusWait:
			return kind, false
		case status == statemachine.StatusDone:
			h.finishInbound(l)
			return kind, false
		default:
			h.fail(l, h.errMsg)
			return kind, false
		}

	default:
		return kind, true
	}
}

// drainBelow reads everything currently available from the layer below into
// the private parser buffer, stopping at WouldBlock.
func (h *ProxyHandle) drainBelow(l *ioloop.Layer) error {
	var buf [4096]byte
	for {
		n, err := l.ReadBelow(buf[:])
		if n > 0 {
			h.parseBuf = append(h.parseBuf, buf[:n]...)
		}
		if err != nil {
			if errors.Is(err, ioloop.ErrWouldBlock) {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func (h *ProxyHandle) finishInbound(l *ioloop.Layer) {
	h.complete = true
	h.stopTimeoutTimer()
	h.residual = append([]byte(nil), h.parseBuf[h.cursor:]...)
	h.parseBuf = nil
	l.Enqueue(eventloop.KindConnected, nil, ioloop.TargetUp)
	if len(h.residual) > 0 {
		l.Enqueue(eventloop.KindRead, nil, ioloop.TargetUp)
	}
}

func (h *ProxyHandle) fail(l *ioloop.Layer, msg string) {
	h.errMsg = msg
	h.opts.logf("proxyproto: layer failed: %s", msg)
	h.stopTimeoutTimer()
	l.Enqueue(eventloop.KindError, errors.New(msg), ioloop.TargetUp)
}

// readInbound serves any buffered residual bytes before passing through to
// the layer below, per spec.md §4.4.
func (h *ProxyHandle) readInbound(l *ioloop.Layer, buf []byte) (int, error) {
	if len(h.residual) == 0 {
		return l.ReadBelow(buf)
	}
	n := copy(buf, h.residual)
	h.residual = h.residual[n:]
	if n == len(buf) || len(h.residual) > 0 {
		return n, nil
	}
	n2, err := l.ReadBelow(buf[n:])
	if err != nil && errors.Is(err, ioloop.ErrWouldBlock) {
		return n, nil
	}
	return n + n2, err
}

func (h *ProxyHandle) resetInbound(*ioloop.Layer) error {
	h.complete = false
	h.relayed = false
	h.local = false
	h.netType = NetTypeAny
	h.sourceIP = ""
	h.destIP = ""
	h.sourcePort = 0
	h.destPort = 0
	h.errMsg = ""
	h.parseBuf = nil
	h.cursor = 0
	h.residual = nil
	h.sm = newInboundSm()
	h.stopTimeoutTimer()
	return nil
}

func (h *ProxyHandle) destroyInbound(*ioloop.Layer) {
	h.stopTimeoutTimer()
}

func (h *ProxyHandle) startTimeoutTimer(l *ioloop.Layer) {
	if h.timeoutTimer != nil {
		return
	}
	loop := l.Io().Loop()
	if loop == nil {
		return
	}
	timer, err := loop.AddTimer(h.opts.connectTimeoutMs, func(*eventloop.Timer) {
		if h.complete {
			return
		}
		h.fail(l, ErrConnectTimeout.Error())
	}, eventloop.WithFireCountLimit(1), eventloop.WithAutoremove(true))
	if err != nil {
		return
	}
	h.timeoutTimer = timer
	timer.Start()
}

func (h *ProxyHandle) stopTimeoutTimer() {
	if h.timeoutTimer == nil {
		return
	}
	h.timeoutTimer.Stop()
	h.timeoutTimer = nil
}
