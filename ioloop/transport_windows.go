//go:build windows

package ioloop

import "errors"

// errWindowsUnsupported mirrors the teacher's own windows poller support
// level: IOCP completion-port plumbing exists in eventloop, but the raw
// socket transport helpers here have not been ported. A Windows build can
// still use ioloop with a custom Transport implementation passed to NewIo.
var errWindowsUnsupported = errors.New("ioloop: raw TCP transport helpers are not implemented on windows")

func isWouldBlock(err error) bool { return false }

// ListenTCP is unimplemented on windows; see errWindowsUnsupported.
func ListenTCP(addr string) (*Io, error) { return nil, errWindowsUnsupported }

// DialTCP is unimplemented on windows; see errWindowsUnsupported.
func DialTCP(addr string) (*Io, error) { return nil, errWindowsUnsupported }

// AcceptTCP is unimplemented on windows; see errWindowsUnsupported.
func (io *Io) AcceptTCP() (*Io, error) { return nil, errWindowsUnsupported }
