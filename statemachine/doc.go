// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package statemachine implements the hierarchical state-machine runtime
// described in spec.md §4.3: leaf states and sub-state-machine states,
// linear vs. explicit transitions, cooperative WAIT suspension, and
// per-state cleanup machines run deepest-first on error, reset, or cancel.
//
// # States
//
// A [Sm] is a directed graph of states identified by [StateID]. Each state
// is either a leaf (a [StateFunc] closure) or a sub-machine (itself a [Sm],
// optionally wrapped with pre/post hooks). [Sm.Run] drives the graph one
// state at a time, returning a [Status] that is either a request to keep
// driving (never returned to the caller — only WAIT, DONE and the ERROR_*
// statuses are), a cooperative suspension ([StatusWait]), a successful
// terminal state ([StatusDone]), or a failure terminal state.
//
// # Cleanup
//
// Every state entered during a run is pushed onto an internal visited
// stack. On any error status, an explicit [Sm.Reset] with [CleanupReset] or
// [CleanupCancel], the runtime walks that stack from the most recently
// entered state backward, running each state's [CleanupSm] (if any) to
// completion. A cleanup machine may itself return [StatusWait]; a further
// call to [Sm.Run] resumes it, while [Sm.Reset] with [CleanupCancel] aborts
// it outright.
package statemachine
