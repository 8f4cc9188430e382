// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package proxyproto

import (
	"github.com/joeycumines/mstdlib-go/eventloop"
	"github.com/joeycumines/mstdlib-go/ioloop"
	"github.com/joeycumines/mstdlib-go/statemachine"
)

// ProxyHandle is the per-connection PROXY protocol state described in
// spec.md §3: parsed (inbound) or configured (outbound) endpoints, the
// completion flag, and the sub-state-machine driving the inbound parse.
type ProxyHandle struct {
	opts      *proxyOptions
	isInbound bool

	complete   bool
	relayed    bool
	local      bool
	netType    NetType
	sourceIP   string
	destIP     string
	sourcePort uint16
	destPort   uint16
	errMsg     string

	// inbound-only parse state.
	parseBuf   []byte
	cursor     int
	residual   []byte
	sm         *statemachine.Sm
	v2FamProto byte
	v2Length   uint16
	v2AddrLen  int

	// outbound-only flush state.
	outBuf  []byte
	outSent int

	timeoutTimer *eventloop.Timer
	layer        *ioloop.Layer
}

// IsInbound reports whether this handle parses (true) or formats (false)
// PROXY protocol headers.
func (h *ProxyHandle) IsInbound() bool { return h.isInbound }

// Relayed reports whether the connection carried relayed (non-LOCAL)
// endpoint data. Valid once Complete is true.
func (h *ProxyHandle) Relayed() bool { return h.relayed }

// Complete reports whether the header has finished parsing (inbound) or
// flushing (outbound).
func (h *ProxyHandle) Complete() bool { return h.complete }

// ProxiedType returns the address family declared by the header.
func (h *ProxyHandle) ProxiedType() NetType { return h.netType }

// SourceIPAddr returns the parsed/configured source address, if relayed.
func (h *ProxyHandle) SourceIPAddr() string { return h.sourceIP }

// DestIPAddr returns the parsed/configured destination address, if relayed.
func (h *ProxyHandle) DestIPAddr() string { return h.destIP }

// SourcePort returns the parsed/configured source port, if relayed.
func (h *ProxyHandle) SourcePort() uint16 { return h.sourcePort }

// DestPort returns the parsed/configured destination port, if relayed.
func (h *ProxyHandle) DestPort() uint16 { return h.destPort }

// ErrorMsg returns the descriptive message for the last parse/format
// failure, or "" if none occurred.
func (h *ProxyHandle) ErrorMsg() string { return h.errMsg }

// GetIPAddr is the get_ipaddr(io) convenience from spec.md §4.4: the
// relayed source address if this is a relayed connection, else the
// underlying transport's own remote address.
func (h *ProxyHandle) GetIPAddr(io *ioloop.Io) (string, bool) {
	if h.relayed && h.sourceIP != "" {
		return h.sourceIP, true
	}
	return io.RemoteAddr()
}

// SetSourceEndpoints configures the outbound header's endpoints before
// connect. Both addresses must share a family and both ports must be in
// [1, 65535]. Unlike the original C source (see spec.md §9), source and
// destination are assigned independently.
func (h *ProxyHandle) SetSourceEndpoints(sourceIP, destIP string, sourcePort, destPort uint16) error {
	if sourcePort == 0 || destPort == 0 {
		return ErrPortOutOfRange
	}
	netType, err := addressFamily(sourceIP)
	if err != nil {
		return err
	}
	dstFamily, err := addressFamily(destIP)
	if err != nil {
		return err
	}
	if netType != dstFamily {
		return ErrFamilyMismatch
	}
	h.relayed = true
	h.netType = netType
	h.sourceIP = sourceIP
	h.destIP = destIP
	h.sourcePort = sourcePort
	h.destPort = destPort
	return nil
}

func addressFamily(s string) (NetType, error) {
	if err := (func() error {
		var b [4]byte
		return putIPv4(b[:], s)
	})(); err == nil {
		return NetTypeIPv4, nil
	}
	if err := (func() error {
		var b [16]byte
		return putIPv6(b[:], s)
	})(); err == nil {
		return NetTypeIPv6, nil
	}
	return NetTypeAny, ErrMalformedHeader
}
