// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package proxyproto

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the inbound parser and outbound formatter.
var (
	// ErrIncompatibleVersion is the message-bearing error delivered with
	// ERROR_STATE when a handle's flags require a specific PROXY protocol
	// version and the buffered bytes declare the other one.
	ErrIncompatibleVersion = errors.New("proxyproto: incompatible proxy protocol version detected")

	// ErrMalformedHeader covers any v1/v2 parse failure that isn't a
	// version mismatch: bad literal, bad token, bad address, bad port.
	ErrMalformedHeader = errors.New("proxyproto: malformed proxy protocol header")

	// ErrPortOutOfRange is returned when a parsed or supplied port falls
	// outside [1, 65535].
	ErrPortOutOfRange = errors.New("proxyproto: port out of range")

	// ErrFamilyMismatch is returned by SetSourceEndpoints when the source
	// and destination addresses aren't the same IP family.
	ErrFamilyMismatch = errors.New("proxyproto: source and destination addresses must be the same family")

	// ErrNotComplete describes an inbound header that has not finished
	// parsing; the getters return plain values and do not return it.
	ErrNotComplete = errors.New("proxyproto: header has not finished parsing")

	// ErrConnectTimeout is surfaced when connect_timeout_ms elapses before
	// the header finishes being received or transmitted.
	ErrConnectTimeout = errors.New("proxyproto: connect timeout exceeded")
)

// wrapf wraps err with a contextual message, preserving it for
// errors.Is/errors.As, matching the eventloop package's WrapError idiom.
func wrapf(format string, err error, args ...any) error {
	args = append(args, err)
	return fmt.Errorf(format+": %w", args...)
}
