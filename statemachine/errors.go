// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package statemachine

import "errors"

// Sentinel errors returned by Sm/CleanupSm construction and insertion.
var (
	// ErrInvalidStateID is returned when inserting a state under the
	// reserved zero StateID.
	ErrInvalidStateID = errors.New("statemachine: state id 0 is reserved")

	// ErrDuplicateStateID is returned when inserting a state under an id
	// already present in the machine.
	ErrDuplicateStateID = errors.New("statemachine: duplicate state id")

	// ErrNilRunFunc is returned when inserting a leaf state with a nil StateFunc.
	ErrNilRunFunc = errors.New("statemachine: state requires a non-nil run function")

	// ErrNilSubMachine is returned when inserting a sub-state-machine state with a nil Sm.
	ErrNilSubMachine = errors.New("statemachine: sub-state-machine requires a non-nil Sm")

	// ErrUnknownAllowedNext describes a state whose declared allowed-next set
	// names an id that never gets inserted; no operation currently returns it.
	ErrUnknownAllowedNext = errors.New("statemachine: allowed-next id is never inserted")
)
