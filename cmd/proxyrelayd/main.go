// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Command proxyrelayd is a small TCP relay daemon demonstrating the
// eventloop/ioloop/proxyproto stack end to end: it accepts connections on
// one listener, dials an upstream per accepted connection, tags the
// upstream leg with a PROXY protocol header carrying the original client's
// address, and splices bytes between the two once both sides are ready.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/logiface"
	izerolog "github.com/joeycumines/logiface-zerolog"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/joeycumines/mstdlib-go/proxyproto"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		listenAddr   string
		upstreamAddr string
		proxyVersion string
		connectMs    int64
		verbose      bool
	)

	cmd := &cobra.Command{
		Use:   "proxyrelayd",
		Short: "Relay TCP connections upstream, tagging each with a PROXY protocol header",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags, err := parseProxyVersion(proxyVersion)
			if err != nil {
				return err
			}
			logger := newLogger(verbose)
			d := &daemon{
				listenAddr:   listenAddr,
				upstreamAddr: upstreamAddr,
				proxyFlags:   flags,
				connectMs:    connectMs,
				logger:       logger,
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return d.run(ctx)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", ":8404", "address to accept client connections on")
	cmd.Flags().StringVar(&upstreamAddr, "upstream", "", "address of the upstream server to relay to")
	cmd.Flags().StringVar(&proxyVersion, "proxy-version", "v2", "PROXY protocol version to emit upstream: v1 or v2")
	cmd.Flags().Int64Var(&connectMs, "connect-timeout-ms", 500, "upstream connect/handshake timeout in milliseconds")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug-level logging")
	_ = cmd.MarkFlagRequired("upstream")

	return cmd
}

func parseProxyVersion(s string) (proxyproto.Flags, error) {
	switch s {
	case "v1":
		return proxyproto.FlagV1, nil
	case "v2":
		return proxyproto.FlagV2, nil
	default:
		return 0, fmt.Errorf("proxy-version: unrecognized value %q (want v1 or v2)", s)
	}
}

func newLogger(verbose bool) *logiface.Logger[logiface.Event] {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	level := izerolog.L.WithLevel(izerolog.L.LevelInformational())
	if verbose {
		level = izerolog.L.WithLevel(izerolog.L.LevelDebug())
	}
	return izerolog.L.New(izerolog.L.WithZerolog(zl), level).Logger()
}
