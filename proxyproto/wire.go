// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package proxyproto

import "strconv"

// v2Signature is the 12-byte magic prefix of every PROXY protocol v2
// header, per spec.md §6.
var v2Signature = [12]byte{0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A}

const (
	v2HeaderLen  = 16 // signature(12) + ver/cmd(1) + family/proto(1) + length(2)
	v2CmdLocal   = 0x0
	v2CmdProxy   = 0x1
	v2FamilyAny  = 0x00
	v2FamilyIPv4 = 0x11
	v2FamilyIPv6 = 0x21

	v2AddrLenIPv4 = 12 // src(4) dst(4) sport(2) dport(2)
	v2AddrLenIPv6 = 36 // src(16) dst(16) sport(2) dport(2)

	minDetermineVersionBytes = 12
)

// detectedVersion reports which PROXY protocol version buf's prefix
// matches, given at least minDetermineVersionBytes bytes are available.
func detectedVersion(buf []byte) (isV1, isV2 bool) {
	if len(buf) < minDetermineVersionBytes {
		return false, false
	}
	if string(buf[:5]) == "PROXY" {
		return true, false
	}
	if [12]byte(buf[:12]) == v2Signature {
		return false, true
	}
	return false, false
}

// buildV1Message renders the ASCII PROXY protocol v1 header for the given
// endpoints, or "PROXY UNKNOWN\r\n" if relayed is false.
func buildV1Message(relayed bool, netType NetType, srcIP, dstIP string, srcPort, dstPort uint16) []byte {
	if !relayed {
		return []byte("PROXY UNKNOWN\r\n")
	}
	proto := "TCP4"
	if netType == NetTypeIPv6 {
		proto = "TCP6"
	}
	return []byte("PROXY " + proto + " " + srcIP + " " + dstIP + " " +
		strconv.FormatUint(uint64(srcPort), 10) + " " + strconv.FormatUint(uint64(dstPort), 10) + "\r\n")
}

// buildV2Message renders the binary PROXY protocol v2 header for the given
// endpoints, or a LOCAL (no-address) header if relayed is false.
func buildV2Message(relayed bool, netType NetType, srcIP, dstIP string, srcPort, dstPort uint16) ([]byte, error) {
	if !relayed {
		buf := make([]byte, v2HeaderLen)
		copy(buf, v2Signature[:])
		buf[12] = 0x20 | v2CmdLocal
		buf[13] = v2FamilyAny
		// length bytes 14..15 stay zero.
		return buf, nil
	}

	var famByte byte
	var addr []byte
	switch netType {
	case NetTypeIPv4:
		famByte = v2FamilyIPv4
		addr = make([]byte, v2AddrLenIPv4)
		if err := putIPv4(addr[0:4], srcIP); err != nil {
			return nil, err
		}
		if err := putIPv4(addr[4:8], dstIP); err != nil {
			return nil, err
		}
		putUint16(addr[8:10], srcPort)
		putUint16(addr[10:12], dstPort)
	case NetTypeIPv6:
		famByte = v2FamilyIPv6
		addr = make([]byte, v2AddrLenIPv6)
		if err := putIPv6(addr[0:16], srcIP); err != nil {
			return nil, err
		}
		if err := putIPv6(addr[16:32], dstIP); err != nil {
			return nil, err
		}
		putUint16(addr[32:34], srcPort)
		putUint16(addr[34:36], dstPort)
	default:
		return nil, ErrMalformedHeader
	}

	buf := make([]byte, v2HeaderLen+len(addr))
	copy(buf, v2Signature[:])
	buf[12] = 0x20 | v2CmdProxy
	buf[13] = famByte
	putUint16(buf[14:16], uint16(len(addr)))
	copy(buf[v2HeaderLen:], addr)
	return buf, nil
}

func putUint16(dst []byte, v uint16) {
	dst[0] = byte(v >> 8)
	dst[1] = byte(v)
}
