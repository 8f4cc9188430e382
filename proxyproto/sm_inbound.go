// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package proxyproto

import (
	"bytes"
	"encoding/binary"
	"strconv"

	"github.com/joeycumines/mstdlib-go/statemachine"
)

const (
	stDetermineVersion statemachine.StateID = iota + 1
	stV1
	stV2

	stV1Header statemachine.StateID = iota + 1
	stV1Protocol
	stV1SourceIP
	stV1DestIP
	stV1SourcePort
	stV1DestPort

	stV2Header statemachine.StateID = iota + 1
	stV2Addr
	stV2TLV
)

// newInboundSm builds the top-level inbound parse machine described in
// spec.md §4.4: DETERMINE_VERSION dispatches to one of two linear
// sub-machines, V1 (ASCII) or V2 (binary).
func newInboundSm() *statemachine.Sm {
	v1 := newV1Sm()
	v2 := newV2Sm()

	sm := statemachine.NewSm("proxy-protocol-inbound", statemachine.FlagLinearEnd)
	must(sm.InsertState(stDetermineVersion, "determine-version", determineVersionState, nil, []statemachine.StateID{stV1, stV2}))
	must(sm.InsertSubStateMachine(stV1, "v1", v1, nil, nil, nil, nil))
	must(sm.InsertSubStateMachine(stV2, "v2", v2, nil, nil, nil, nil))
	return sm
}

func newV1Sm() *statemachine.Sm {
	sm := statemachine.NewSm("proxy-protocol-v1", statemachine.FlagLinearEnd)
	must(sm.InsertState(stV1Header, "header", v1HeaderState, nil, nil))
	must(sm.InsertState(stV1Protocol, "protocol", v1ProtocolState, nil, nil))
	must(sm.InsertState(stV1SourceIP, "source-ip", v1SourceIPState, nil, nil))
	must(sm.InsertState(stV1DestIP, "dest-ip", v1DestIPState, nil, nil))
	must(sm.InsertState(stV1SourcePort, "source-port", v1SourcePortState, nil, nil))
	must(sm.InsertState(stV1DestPort, "dest-port", v1DestPortState, nil, nil))
	return sm
}

func newV2Sm() *statemachine.Sm {
	sm := statemachine.NewSm("proxy-protocol-v2", statemachine.FlagLinearEnd)
	must(sm.InsertState(stV2Header, "header", v2HeaderState, nil, nil))
	must(sm.InsertState(stV2Addr, "addr", v2AddrState, nil, nil))
	must(sm.InsertState(stV2TLV, "tlv", v2TLVState, nil, nil))
	return sm
}

func must(err error) {
	if err != nil {
		// Only reachable on a programming error in the state tables above
		// (duplicate/invalid ids), never from parsed input.
		panic(err)
	}
}

func determineVersionState(userData any, next *statemachine.StateID) statemachine.Status {
	h := userData.(*ProxyHandle)
	if len(h.parseBuf)-h.cursor < minDetermineVersionBytes {
		return statemachine.StatusWait
	}
	isV1, isV2 := detectedVersion(h.parseBuf[h.cursor:])
	switch {
	case isV1:
		if !h.opts.flags.allowsV1() {
			h.errMsg = ErrIncompatibleVersion.Error()
			return statemachine.StatusErrorState
		}
		*next = stV1
	case isV2:
		if !h.opts.flags.allowsV2() {
			h.errMsg = ErrIncompatibleVersion.Error()
			return statemachine.StatusErrorState
		}
		*next = stV2
	default:
		h.errMsg = ErrMalformedHeader.Error()
		return statemachine.StatusErrorState
	}
	return statemachine.StatusNext
}

func v1HeaderState(userData any, _ *statemachine.StateID) statemachine.Status {
	h := userData.(*ProxyHandle)
	if len(h.parseBuf)-h.cursor < 6 {
		return statemachine.StatusWait
	}
	if string(h.parseBuf[h.cursor:h.cursor+6]) != "PROXY " {
		h.errMsg = ErrMalformedHeader.Error()
		return statemachine.StatusErrorState
	}
	h.cursor += 6
	return statemachine.StatusNext
}

func v1ProtocolState(userData any, _ *statemachine.StateID) statemachine.Status {
	h := userData.(*ProxyHandle)
	buf := h.parseBuf
	spaceIdx := indexFrom(buf, h.cursor, ' ')
	crlfIdx := indexCRLFFrom(buf, h.cursor)
	if crlfIdx >= 0 && (spaceIdx < 0 || crlfIdx <= spaceIdx) {
		if string(buf[h.cursor:crlfIdx]) != "UNKNOWN" {
			h.errMsg = ErrMalformedHeader.Error()
			return statemachine.StatusErrorState
		}
		h.local = true
		h.relayed = false
		h.netType = NetTypeAny
		h.cursor = crlfIdx + 2
		return statemachine.StatusDone
	}
	if spaceIdx < 0 {
		return statemachine.StatusWait
	}
	token := string(buf[h.cursor:spaceIdx])
	switch token {
	case "TCP4":
		h.netType = NetTypeIPv4
	case "TCP6":
		h.netType = NetTypeIPv6
	default:
		h.errMsg = ErrMalformedHeader.Error()
		return statemachine.StatusErrorState
	}
	h.relayed = true
	h.cursor = spaceIdx + 1
	return statemachine.StatusNext
}

func v1AddrState(h *ProxyHandle, dst *string) statemachine.Status {
	spaceIdx := indexFrom(h.parseBuf, h.cursor, ' ')
	if spaceIdx < 0 {
		return statemachine.StatusWait
	}
	s := string(h.parseBuf[h.cursor:spaceIdx])
	var err error
	if h.netType == NetTypeIPv6 {
		var b [16]byte
		err = putIPv6(b[:], s)
	} else {
		var b [4]byte
		err = putIPv4(b[:], s)
	}
	if err != nil {
		h.errMsg = ErrMalformedHeader.Error()
		return statemachine.StatusErrorState
	}
	*dst = s
	h.cursor = spaceIdx + 1
	return statemachine.StatusNext
}

func v1SourceIPState(userData any, _ *statemachine.StateID) statemachine.Status {
	h := userData.(*ProxyHandle)
	return v1AddrState(h, &h.sourceIP)
}

func v1DestIPState(userData any, _ *statemachine.StateID) statemachine.Status {
	h := userData.(*ProxyHandle)
	return v1AddrState(h, &h.destIP)
}

func v1parsePort(h *ProxyHandle, end int) (uint16, statemachine.Status) {
	s := string(h.parseBuf[h.cursor:end])
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n < 1 || n > 65535 {
		h.errMsg = ErrPortOutOfRange.Error()
		return 0, statemachine.StatusErrorState
	}
	return uint16(n), 0
}

func v1SourcePortState(userData any, _ *statemachine.StateID) statemachine.Status {
	h := userData.(*ProxyHandle)
	spaceIdx := indexFrom(h.parseBuf, h.cursor, ' ')
	if spaceIdx < 0 {
		return statemachine.StatusWait
	}
	port, status := v1parsePort(h, spaceIdx)
	if status.IsError() {
		return status
	}
	h.sourcePort = port
	h.cursor = spaceIdx + 1
	return statemachine.StatusNext
}

func v1DestPortState(userData any, _ *statemachine.StateID) statemachine.Status {
	h := userData.(*ProxyHandle)
	crlfIdx := indexCRLFFrom(h.parseBuf, h.cursor)
	if crlfIdx < 0 {
		return statemachine.StatusWait
	}
	port, status := v1parsePort(h, crlfIdx)
	if status.IsError() {
		return status
	}
	h.destPort = port
	h.cursor = crlfIdx + 2
	return statemachine.StatusDone
}

func v2HeaderState(userData any, _ *statemachine.StateID) statemachine.Status {
	h := userData.(*ProxyHandle)
	if len(h.parseBuf)-h.cursor < v2HeaderLen {
		return statemachine.StatusWait
	}
	base := h.cursor
	verCmd := h.parseBuf[base+12]
	if verCmd>>4 != 0x02 {
		h.errMsg = ErrMalformedHeader.Error()
		return statemachine.StatusErrorState
	}
	cmd := verCmd & 0x0F
	if cmd != v2CmdLocal && cmd != v2CmdProxy {
		h.errMsg = ErrMalformedHeader.Error()
		return statemachine.StatusErrorState
	}
	h.v2FamProto = h.parseBuf[base+13]
	h.v2Length = binary.BigEndian.Uint16(h.parseBuf[base+14 : base+16])
	h.cursor += v2HeaderLen

	if cmd == v2CmdLocal {
		h.local = true
		h.relayed = false
		h.netType = NetTypeAny
	} else {
		h.relayed = true
	}
	return statemachine.StatusNext
}

func v2AddrState(userData any, _ *statemachine.StateID) statemachine.Status {
	h := userData.(*ProxyHandle)
	switch h.v2FamProto {
	case v2FamilyAny:
		h.v2AddrLen = 0
		h.netType = NetTypeAny
	case v2FamilyIPv4:
		h.v2AddrLen = v2AddrLenIPv4
	case v2FamilyIPv6:
		h.v2AddrLen = v2AddrLenIPv6
	default:
		h.errMsg = ErrMalformedHeader.Error()
		return statemachine.StatusErrorState
	}

	if len(h.parseBuf)-h.cursor < h.v2AddrLen {
		return statemachine.StatusWait
	}
	base := h.cursor
	switch h.v2FamProto {
	case v2FamilyIPv4:
		h.netType = NetTypeIPv4
		h.sourceIP = ipv4String(h.parseBuf[base : base+4])
		h.destIP = ipv4String(h.parseBuf[base+4 : base+8])
		h.sourcePort = binary.BigEndian.Uint16(h.parseBuf[base+8 : base+10])
		h.destPort = binary.BigEndian.Uint16(h.parseBuf[base+10 : base+12])
	case v2FamilyIPv6:
		h.netType = NetTypeIPv6
		h.sourceIP = ipv6String(h.parseBuf[base : base+16])
		h.destIP = ipv6String(h.parseBuf[base+16 : base+32])
		h.sourcePort = binary.BigEndian.Uint16(h.parseBuf[base+32 : base+34])
		h.destPort = binary.BigEndian.Uint16(h.parseBuf[base+34 : base+36])
	}
	h.cursor += h.v2AddrLen
	return statemachine.StatusNext
}

func v2TLVState(userData any, _ *statemachine.StateID) statemachine.Status {
	h := userData.(*ProxyHandle)
	tlvLen := int(h.v2Length) - h.v2AddrLen
	if tlvLen < 0 {
		h.errMsg = ErrMalformedHeader.Error()
		return statemachine.StatusErrorState
	}
	if len(h.parseBuf)-h.cursor < tlvLen {
		return statemachine.StatusWait
	}
	h.cursor += tlvLen
	// Falls off the end of this linear sub-machine's declared order: the
	// runtime completes it as DONE.
	return statemachine.StatusNext
}

func indexFrom(buf []byte, from int, b byte) int {
	idx := bytes.IndexByte(buf[from:], b)
	if idx < 0 {
		return -1
	}
	return from + idx
}

func indexCRLFFrom(buf []byte, from int) int {
	idx := bytes.Index(buf[from:], []byte("\r\n"))
	if idx < 0 {
		return -1
	}
	return from + idx
}
