// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package proxyproto

import "github.com/joeycumines/logiface"

// proxyOptions holds configuration for a ProxyHandle, built via ProxyOption.
type proxyOptions struct {
	flags            Flags
	connectTimeoutMs int64
	logger           *logiface.Logger[logiface.Event]
}

const defaultConnectTimeoutMs = 500

// ProxyOption configures a ProxyHandle at construction, matching the
// eventloop package's LoopOption pattern.
type ProxyOption interface {
	applyProxy(*proxyOptions)
}

type proxyOptionFunc func(*proxyOptions)

func (f proxyOptionFunc) applyProxy(opts *proxyOptions) { f(opts) }

// WithFlags restricts the layer to a specific PROXY protocol version (or
// leaves it auto-detecting/defaulting to v2, the zero value FlagNone).
func WithFlags(flags Flags) ProxyOption {
	return proxyOptionFunc(func(opts *proxyOptions) { opts.flags = flags })
}

// WithConnectTimeoutMs bounds header reception (inbound) or transmission
// (outbound); 0 keeps the 500ms default. See spec.md §4.4.
func WithConnectTimeoutMs(ms int64) ProxyOption {
	return proxyOptionFunc(func(opts *proxyOptions) { opts.connectTimeoutMs = ms })
}

// WithLogger attaches a structured logger for parse failures and timeouts.
func WithLogger(logger *logiface.Logger[logiface.Event]) ProxyOption {
	return proxyOptionFunc(func(opts *proxyOptions) { opts.logger = logger })
}

func resolveProxyOptions(opts []ProxyOption) *proxyOptions {
	cfg := &proxyOptions{connectTimeoutMs: defaultConnectTimeoutMs}
	for _, o := range opts {
		if o != nil {
			o.applyProxy(cfg)
		}
	}
	if cfg.connectTimeoutMs <= 0 {
		cfg.connectTimeoutMs = defaultConnectTimeoutMs
	}
	return cfg
}

func (o *proxyOptions) logf(format string, args ...any) {
	if o.logger == nil {
		return
	}
	o.logger.Err().Logf(format, args...)
}
