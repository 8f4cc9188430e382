// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package ioloop implements a layered I/O handle: an ordered stack of
// [Layer] values (base transport, protocol layers, tracing, ...) sharing a
// single [Io] identity, each with its own soft-event queue.
//
// # Layering
//
// Layer 0 is always the base transport. Higher layers filter reads/writes
// and may synthesize soft-events that re-enter the dispatch path — either
// immediately (hard events converted from OS readiness) or on the next
// [eventloop.Loop] turn (events a layer's own [Callbacks.ProcessEvent]
// synthesizes while handling another event, bounding recursive redelivery
// within a single turn).
//
// # Soft-event queue
//
// Each layer owns a FIFO of pending [SoftEvent] values. Duplicate pending
// READ/WRITE events on the same layer collapse to one; DISCONNECTED/ERROR
// events are terminal, override pending non-terminal events, and are never
// coalesced away. Delivery walks every layer from the bottom up: for each
// drained event every higher layer's ProcessEvent callback gets a chance to
// mutate the event kind or suppress it before it reaches the user-level
// callback registered via [eventloop.Loop.Add].
//
// # Attaching to a Loop
//
// [Io] implements [eventloop.Handle] and [eventloop.Attacher], so it can be
// passed directly to [eventloop.Loop.Add]/[eventloop.Loop.Remove].
package ioloop
