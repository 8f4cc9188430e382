//go:build linux || darwin

package ioloop

import (
	"net"

	"golang.org/x/sys/unix"
)

// tcpListenSocket creates a non-blocking TCP listening socket bound to addr.
// Address parsing uses net.ResolveTCPAddr (stdlib): no third-party package
// in the example corpus does hostname/IP resolution, and re-implementing
// getaddrinfo would be a net negative for correctness over the stdlib.
func tcpListenSocket(addr string) (int, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, err
	}
	domain := unix.AF_INET
	if tcpAddr.IP != nil && tcpAddr.IP.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	sa, err := sockaddrFromTCPAddr(domain, tcpAddr)
	if err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// tcpConnectSocket creates a non-blocking TCP socket and starts an
// asynchronous connect to addr. The caller registers the fd for WRITE
// readiness (connect completion) with the event loop.
func tcpConnectSocket(addr string) (int, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, err
	}
	domain := unix.AF_INET
	if tcpAddr.IP != nil && tcpAddr.IP.To4() == nil {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	sa, err := sockaddrFromTCPAddr(domain, tcpAddr)
	if err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func sockaddrFromTCPAddr(domain int, addr *net.TCPAddr) (unix.Sockaddr, error) {
	if domain == unix.AF_INET6 {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		if addr.IP != nil {
			copy(sa.Addr[:], addr.IP.To16())
		}
		return sa, nil
	}
	sa := &unix.SockaddrInet4{Port: addr.Port}
	if addr.IP != nil {
		copy(sa.Addr[:], addr.IP.To4())
	}
	return sa, nil
}

// DialTCP starts a non-blocking outbound TCP connection to addr and wraps
// it as an Io with a single base layer. The handle transitions CONNECTING
// -> CONNECTED once the loop reports it writable; callers typically add a
// proxyproto outbound layer before registering with a Loop.
func DialTCP(addr string) (*Io, error) {
	fd, err := tcpConnectSocket(addr)
	if err != nil {
		return nil, err
	}
	transport := newFDTransport(fd)
	io, err := NewIo(transport, NewBaseCallbacks(transport))
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	io.ioState = StateConnecting
	return io, nil
}
