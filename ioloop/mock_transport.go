package ioloop

import (
	"bytes"
	"io"
	"sync"
)

// MockTransport is an in-memory [Transport] for tests: Read drains an
// internal buffer fed by Feed; Write appends to an internal outbound
// buffer inspectable via Written. FD always reports -1 (software-only),
// so it never gets registered with a Loop's OS poller — tests drive
// dispatch by invoking the callback returned by Io.Callback directly.
type MockTransport struct {
	mu         sync.Mutex
	inbound    bytes.Buffer
	out        bytes.Buffer
	closed     bool
	remoteAddr string
}

func NewMockTransport() *MockTransport { return &MockTransport{} }

func (m *MockTransport) FD() int { return -1 }

func (m *MockTransport) Read(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inbound.Len() == 0 {
		return 0, ErrWouldBlock
	}
	return m.inbound.Read(buf)
}

func (m *MockTransport) Write(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, io.ErrClosedPipe
	}
	return m.out.Write(buf)
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Feed appends bytes for a subsequent Read to return.
func (m *MockTransport) Feed(b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbound.Write(b)
}

// SetRemoteAddr configures the value RemoteAddr reports, for tests that
// exercise proxyproto's get_ipaddr fallback on a non-relayed connection.
func (m *MockTransport) SetRemoteAddr(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remoteAddr = addr
}

// RemoteAddr implements remoteAddrTransport.
func (m *MockTransport) RemoteAddr() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.remoteAddr == "" {
		return "", false
	}
	return m.remoteAddr, true
}

// Written returns (a copy of) everything written so far.
func (m *MockTransport) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, m.out.Len())
	copy(out, m.out.Bytes())
	return out
}
