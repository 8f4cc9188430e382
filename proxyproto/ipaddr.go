// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package proxyproto

import "net"

// putIPv4 validates s as a dotted-quad address and writes its 4-byte form
// to dst, implementing the "validated via a binary conversion" requirement
// from spec.md §4.4.
func putIPv4(dst []byte, s string) error {
	ip := net.ParseIP(s)
	if ip == nil {
		return ErrMalformedHeader
	}
	v4 := ip.To4()
	if v4 == nil {
		return ErrMalformedHeader
	}
	copy(dst, v4)
	return nil
}

// putIPv6 validates s as a colon-hex address and writes its 16-byte form to dst.
func putIPv6(dst []byte, s string) error {
	ip := net.ParseIP(s)
	if ip == nil {
		return ErrMalformedHeader
	}
	v6 := ip.To16()
	if v6 == nil || ip.To4() != nil {
		return ErrMalformedHeader
	}
	copy(dst, v6)
	return nil
}

func ipv4String(b []byte) string {
	return net.IP(b).String()
}

func ipv6String(b []byte) string {
	return net.IP(b).String()
}
