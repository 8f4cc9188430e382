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
)

// AddOutbound adds a PROXY protocol outbound layer atop io, per spec.md
// §4.4. It must be added to a client handle before connect. Call
// SetSourceEndpoints beforehand to relay an endpoint; otherwise the
// connection is emitted as LOCAL.
func AddOutbound(io *ioloop.Io, opts ...ProxyOption) (*ProxyHandle, error) {
	h := &ProxyHandle{
		opts: resolveProxyOptions(opts),
	}

	layer, err := io.AddLayer(ioloop.Callbacks{
		ProcessEvent:  h.processEventOutbound,
		PendingEgress: h.pendingEgressOutbound,
		Reset:         h.resetOutbound,
		Destroy:       h.destroyOutbound,
		ErrorMsg:      func(*ioloop.Layer) string { return h.errMsg },
	})
	if err != nil {
		return nil, err
	}
	h.layer = layer
	return h, nil
}

func (h *ProxyHandle) processEventOutbound(l *ioloop.Layer, kind eventloop.EventKind, ioErr error) (eventloop.EventKind, bool) {
	switch kind {
	case eventloop.KindConnected:
		if h.complete {
			return kind, true
		}
		h.startTimeoutTimer(l)
		if h.outBuf == nil {
			buf, err := h.buildOutboundMessage()
			if err != nil {
				h.fail(l, err.Error())
				return kind, false
			}
			h.outBuf = buf
		}
		l.Io().SyncWantEvents()
		h.flushOutbound(l)
		return kind, false

	case eventloop.KindWrite:
		if h.complete {
			return kind, true
		}
		h.flushOutbound(l)
		return kind, false

	default:
		return kind, true
	}
}

func (h *ProxyHandle) buildOutboundMessage() ([]byte, error) {
	useV1 := h.opts.flags.allowsV1() && !h.opts.flags.allowsV2()
	if useV1 {
		return buildV1Message(h.relayed, h.netType, h.sourceIP, h.destIP, h.sourcePort, h.destPort), nil
	}
	return buildV2Message(h.relayed, h.netType, h.sourceIP, h.destIP, h.sourcePort, h.destPort)
}

// flushOutbound writes as much of the pending header as the layer below
// will currently accept; once fully flushed it marks complete and emits the
// delayed CONNECTED upward.
func (h *ProxyHandle) flushOutbound(l *ioloop.Layer) {
	for h.outSent < len(h.outBuf) {
		n, err := l.WriteBelow(h.outBuf[h.outSent:])
		h.outSent += n
		if err != nil {
			if errors.Is(err, ioloop.ErrWouldBlock) {
				return
			}
			h.fail(l, err.Error())
			return
		}
		if n == 0 {
			return
		}
	}
	h.complete = true
	h.stopTimeoutTimer()
	l.Io().SyncWantEvents()
	l.Enqueue(eventloop.KindConnected, nil, ioloop.TargetUp)
}

func (h *ProxyHandle) pendingEgressOutbound(*ioloop.Layer) bool {
	return !h.complete && h.outSent < len(h.outBuf)
}

func (h *ProxyHandle) resetOutbound(*ioloop.Layer) error {
	h.complete = false
	h.errMsg = ""
	h.outBuf = nil
	h.outSent = 0
	h.stopTimeoutTimer()
	return nil
}

func (h *ProxyHandle) destroyOutbound(*ioloop.Layer) {
	h.stopTimeoutTimer()
}
