// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/joeycumines/logiface"

	"github.com/joeycumines/mstdlib-go/eventloop"
	"github.com/joeycumines/mstdlib-go/ioloop"
	"github.com/joeycumines/mstdlib-go/proxyproto"
)

type daemon struct {
	listenAddr   string
	upstreamAddr string
	proxyFlags   proxyproto.Flags
	connectMs    int64
	logger       *logiface.Logger[logiface.Event]
}

func (d *daemon) logf(format string, args ...any) {
	if d.logger == nil {
		return
	}
	d.logger.Info().Logf(format, args...)
}

func (d *daemon) errorf(format string, args ...any) {
	if d.logger == nil {
		return
	}
	d.logger.Err().Logf(format, args...)
}

func (d *daemon) run(ctx context.Context) error {
	loop, err := eventloop.New(eventloop.WithLogger(d.logger))
	if err != nil {
		return err
	}

	listener, err := ioloop.ListenTCP(d.listenAddr)
	if err != nil {
		return err
	}

	destIP, destPort := d.listenerEndpoint()

	if err := loop.Add(listener, func(h eventloop.Handle, kind eventloop.EventKind, ioErr error) {
		if kind != eventloop.KindRead {
			return
		}
		d.acceptLoop(loop, listener, destIP, destPort)
	}); err != nil {
		return err
	}

	d.logf("proxyrelayd: listening on %s, relaying to %s", d.listenAddr, d.upstreamAddr)
	return loop.Run(ctx)
}

// listenerEndpoint resolves the address clients see when they connect to
// d.listenAddr, used as the PROXY header's destination endpoint — the
// daemon doesn't expose getsockname, so an unspecified bind address falls
// back to 0.0.0.0, a reasonable approximation for a demo relay.
func (d *daemon) listenerEndpoint() (string, uint16) {
	addr, err := net.ResolveTCPAddr("tcp", d.listenAddr)
	if err != nil || addr.IP == nil || addr.IP.IsUnspecified() {
		return "0.0.0.0", uint16(addrPortOrZero(addr))
	}
	return addr.IP.String(), uint16(addr.Port)
}

func addrPortOrZero(addr *net.TCPAddr) int {
	if addr == nil {
		return 0
	}
	return addr.Port
}

func (d *daemon) acceptLoop(loop *eventloop.Loop, listener *ioloop.Io, destIP string, destPort uint16) {
	for {
		child, err := listener.AcceptTCP()
		if err != nil {
			if errors.Is(err, ioloop.ErrWouldBlock) {
				return
			}
			d.errorf("proxyrelayd: accept failed: %v", err)
			return
		}
		d.handleAccept(loop, child, destIP, destPort)
	}
}

func (d *daemon) handleAccept(loop *eventloop.Loop, client *ioloop.Io, destIP string, destPort uint16) {
	upstream, err := ioloop.DialTCP(d.upstreamAddr)
	if err != nil {
		d.errorf("proxyrelayd: dial upstream %s failed: %v", d.upstreamAddr, err)
		client.Destroy()
		return
	}

	proxyHandle, err := proxyproto.AddOutbound(upstream,
		proxyproto.WithFlags(d.proxyFlags),
		proxyproto.WithConnectTimeoutMs(d.connectMs),
		proxyproto.WithLogger(d.logger),
	)
	if err != nil {
		d.errorf("proxyrelayd: adding proxy layer failed: %v", err)
		client.Destroy()
		upstream.Destroy()
		return
	}

	if sourceIP, sourcePort, ok := splitHostPort(client); ok {
		if err := proxyHandle.SetSourceEndpoints(sourceIP, destIP, sourcePort, destPort); err != nil {
			d.logf("proxyrelayd: relaying %s as LOCAL (endpoint mismatch: %v)", sourceIP, err)
		}
	}

	if err := wireRelay(client, upstream); err != nil {
		d.errorf("proxyrelayd: wiring relay failed: %v", err)
		client.Destroy()
		upstream.Destroy()
		return
	}

	if err := loop.Add(client, client.Callback(d.relayEventLogger("client"))); err != nil {
		d.errorf("proxyrelayd: registering client handle failed: %v", err)
		client.Destroy()
		upstream.Destroy()
		return
	}
	if err := loop.Add(upstream, upstream.Callback(d.relayEventLogger("upstream"))); err != nil {
		d.errorf("proxyrelayd: registering upstream handle failed: %v", err)
		client.Destroy()
		upstream.Destroy()
		return
	}
}

func (d *daemon) relayEventLogger(side string) eventloop.Callback {
	return func(_ eventloop.Handle, kind eventloop.EventKind, ioErr error) {
		if kind == eventloop.KindError {
			d.errorf("proxyrelayd: %s error: %v", side, ioErr)
		}
	}
}

func splitHostPort(io *ioloop.Io) (string, uint16, bool) {
	addr, ok := io.RemoteAddr()
	if !ok {
		return "", 0, false
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, false
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, false
	}
	return host, uint16(port), true
}
