// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package proxyproto implements the PROXY protocol v1/v2 layer described in
// spec.md §4.4: an inbound parser that suppresses CONNECTED until the
// header is fully parsed, and an outbound formatter that emits the header
// before passing a connection through. Both directions are built on package
// ioloop's layer model and package statemachine's runtime, serving as the
// worked concrete example of both.
package proxyproto
