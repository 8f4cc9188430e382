//go:build linux || darwin

package ioloop

import (
	"errors"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// fdTransport is a raw, non-blocking socket transport, the base layer for
// every Io created via DialTCP/ListenTCP/Accept on Unix platforms.
type fdTransport struct {
	fd int
}

// newFDTransport wraps an already-connected, non-blocking fd.
func newFDTransport(fd int) Transport {
	return &fdTransport{fd: fd}
}

func (t *fdTransport) FD() int { return t.fd }

func (t *fdTransport) Read(buf []byte) (int, error) {
	return unix.Read(t.fd, buf)
}

func (t *fdTransport) Write(buf []byte) (int, error) {
	return unix.Write(t.fd, buf)
}

func (t *fdTransport) Close() error {
	return unix.Close(t.fd)
}

// RemoteAddr implements remoteAddrTransport via getpeername(2).
func (t *fdTransport) RemoteAddr() (string, bool) {
	sa, err := unix.Getpeername(t.fd)
	if err != nil {
		return "", false
	}
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(addr.Addr[:]).String(), strconv.Itoa(addr.Port)), true
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(addr.Addr[:]).String(), strconv.Itoa(addr.Port)), true
	default:
		return "", false
	}
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// ListenTCP creates a non-blocking, listening TCP socket bound to addr
// (e.g. "0.0.0.0:8404") and wraps it as a listening Io with a single base
// layer. Accept must be called once the loop reports the handle readable.
func ListenTCP(addr string) (*Io, error) {
	fd, err := tcpListenSocket(addr)
	if err != nil {
		return nil, err
	}
	io, err := NewIo(newFDTransport(fd), NewBaseCallbacks(newFDTransport(fd)))
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	io.listening = true
	io.ioState = StateListening
	return io, nil
}

// AcceptTCP accepts one pending connection on a listening Io created via
// ListenTCP, cloning every higher layer onto the new handle per spec.md
// §4.2's accept semantics.
func (io *Io) AcceptTCP() (*Io, error) {
	if !io.listening {
		return nil, ErrNotListening
	}
	nfd, _, err := unix.Accept4(io.FD(), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if isWouldBlock(err) {
			return nil, ErrWouldBlock
		}
		return nil, err
	}
	transport := newFDTransport(nfd)
	child, err := NewIo(transport, NewBaseCallbacks(transport))
	if err != nil {
		_ = unix.Close(nfd)
		return nil, err
	}
	child.ioState = StateAccepted

	io.layersMu.RLock()
	parents := append([]*Layer(nil), io.layers[1:]...)
	io.layersMu.RUnlock()
	for _, parent := range parents {
		if parent.cb.Accept != nil {
			if err := parent.cb.Accept(parent, child); err != nil {
				return nil, err
			}
		}
	}
	return child, nil
}
