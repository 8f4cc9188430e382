// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package proxyproto

// Flags restricts which PROXY protocol version(s) an inbound layer accepts,
// and which an outbound layer emits. Modeled as a bit-flag type rather than
// an enum, matching the original C library's M_IO_PROXY_PROTOCOL_FLAG_*
// bitmask.
type Flags uint32

const (
	// FlagNone accepts/emits either version, preferring V2 on the outbound
	// side when both are permitted.
	FlagNone Flags = 0
	// FlagV1 restricts the layer to PROXY protocol v1 (ASCII) only.
	FlagV1 Flags = 1 << iota
	// FlagV2 restricts the layer to PROXY protocol v2 (binary) only.
	FlagV2
)

func (f Flags) allowsV1() bool { return f == FlagNone || f&FlagV1 != 0 }
func (f Flags) allowsV2() bool { return f == FlagNone || f&FlagV2 != 0 }

// NetType identifies the address family a PROXY header declared, per
// spec.md §4.4's getters.
type NetType int

const (
	// NetTypeAny is reported for a LOCAL/UNKNOWN connection (no addresses).
	NetTypeAny NetType = iota
	// NetTypeIPv4 is reported when the header carried IPv4 addresses.
	NetTypeIPv4
	// NetTypeIPv6 is reported when the header carried IPv6 addresses.
	NetTypeIPv6
)

// String returns the net type's name.
func (n NetType) String() string {
	switch n {
	case NetTypeAny:
		return "ANY"
	case NetTypeIPv4:
		return "IPv4"
	case NetTypeIPv6:
		return "IPv6"
	default:
		return "UNKNOWN"
	}
}
