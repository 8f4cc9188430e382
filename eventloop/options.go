// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import "github.com/joeycumines/logiface"

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	flags  Flags
	logger *logiface.Logger[logiface.Event]
}

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithFlags sets the loop's exit-behavior and wakeup flags (see Flags).
func WithFlags(flags Flags) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.flags = flags
		return nil
	}}
}

// WithLogger attaches a structured logger (see package logiface) used for
// diagnostic events: poll errors, panics recovered from callbacks, and
// timer/trigger lifecycle notices. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
