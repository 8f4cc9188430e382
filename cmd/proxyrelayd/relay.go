// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"errors"
	"sync"

	"github.com/joeycumines/mstdlib-go/eventloop"
	"github.com/joeycumines/mstdlib-go/ioloop"
)

// relaySide buffers bytes read from one Io until its peer is ready to
// accept them, so a slow peer never blocks the cooperative loop.
type relaySide struct {
	io   *ioloop.Io
	peer *relaySide

	mu     sync.Mutex
	outbuf []byte
	closed bool
}

// wireRelay adds a relay layer atop both a and b and cross-links them, so
// bytes read from one are queued for write on the other. Must be called
// before either handle is registered with a loop.
func wireRelay(a, b *ioloop.Io) error {
	sa := &relaySide{io: a}
	sb := &relaySide{io: b}
	sa.peer = sb
	sb.peer = sa

	if err := sa.install(); err != nil {
		return err
	}
	return sb.install()
}

func (s *relaySide) install() error {
	_, err := s.io.AddLayer(ioloop.Callbacks{
		ProcessEvent:  s.processEvent,
		PendingEgress: s.pendingEgress,
		Destroy:       func(*ioloop.Layer) {},
	})
	return err
}

func (s *relaySide) processEvent(_ *ioloop.Layer, kind eventloop.EventKind, _ error) (eventloop.EventKind, bool) {
	switch kind {
	case eventloop.KindRead:
		s.pump()
	case eventloop.KindWrite:
		s.flush()
	case eventloop.KindDisconnected, eventloop.KindError:
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.peer.teardown()
	}
	return kind, true
}

func (s *relaySide) pendingEgress(*ioloop.Layer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outbuf) > 0
}

// pump drains every byte currently available from s.io into the peer's
// outbound buffer, then gives the peer a chance to flush immediately.
func (s *relaySide) pump() {
	var buf [8192]byte
	for {
		n, err := s.io.Read(buf[:])
		if n > 0 {
			s.peer.queue(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, ioloop.ErrWouldBlock) {
				s.teardown()
			}
			break
		}
		if n == 0 {
			break
		}
	}
	s.peer.flush()
}

func (s *relaySide) queue(data []byte) {
	s.mu.Lock()
	s.outbuf = append(s.outbuf, data...)
	s.mu.Unlock()
	s.io.SyncWantEvents()
}

// flush writes as much of the queued backlog as the underlying connection
// currently accepts, stopping at the first WouldBlock.
func (s *relaySide) flush() {
	s.mu.Lock()
	for len(s.outbuf) > 0 {
		n, err := s.io.Write(s.outbuf)
		if n > 0 {
			s.outbuf = s.outbuf[n:]
		}
		if err != nil {
			if !errors.Is(err, ioloop.ErrWouldBlock) {
				s.closed = true
			}
			break
		}
		if n == 0 {
			break
		}
	}
	s.mu.Unlock()
	s.io.SyncWantEvents()
}

// teardown closes this side once its peer has gone away, so a relay half
// never lingers after the other half of the pair has disconnected.
func (s *relaySide) teardown() {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	if already {
		return
	}
	s.io.Disconnect()
}
