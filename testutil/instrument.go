package testutil

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"
)

// FakeInstrument is an in-process TCP server that behaves like an instrument
// streaming measurement lines. Only the most recent connection is kept.
type FakeInstrument struct {
	t        *testing.T
	listener net.Listener

	mu       sync.Mutex
	conn     net.Conn
	accepted int
	conns    chan net.Conn
	closed   bool
}

// NewFakeInstrument starts listening on a random loopback port. The server is
// closed when the test ends.
func NewFakeInstrument(t *testing.T) *FakeInstrument {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("fake instrument: listen: %v", err)
	}

	f := &FakeInstrument{
		t:        t,
		listener: listener,
		conns:    make(chan net.Conn, 16),
	}
	go f.acceptLoop()
	t.Cleanup(f.Close)

	return f
}

func (f *FakeInstrument) acceptLoop() {
	for {
		conn, err := f.listener.Accept()
		if err != nil {
			return
		}

		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			_ = conn.Close()
			return
		}
		if f.conn != nil {
			_ = f.conn.Close()
		}
		f.conn = conn
		f.accepted++
		f.mu.Unlock()

		select {
		case f.conns <- conn:
		default:
		}
	}
}

// Host returns the listening IP
func (f *FakeInstrument) Host() string {
	return f.listener.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the listening port
func (f *FakeInstrument) Port() int {
	return f.listener.Addr().(*net.TCPAddr).Port
}

// Address returns host:port
func (f *FakeInstrument) Address() string {
	return net.JoinHostPort(f.Host(), strconv.Itoa(f.Port()))
}

// Accepted returns how many connections have been accepted so far
func (f *FakeInstrument) Accepted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepted
}

// WaitForConnection blocks until the n-th connection has been accepted.
func (f *FakeInstrument) WaitForConnection(n int, timeout time.Duration) {
	f.t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if f.Accepted() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.t.Fatalf("fake instrument: timeout waiting for connection %d (accepted %d)", n, f.Accepted())
}

// SendLines writes each line followed by "\r\n", as the instrument does.
func (f *FakeInstrument) SendLines(lines ...string) {
	f.t.Helper()
	for _, line := range lines {
		f.SendRaw([]byte(line + "\r\n"))
	}
}

// SendRaw writes data unchanged to the current connection.
func (f *FakeInstrument) SendRaw(data []byte) {
	f.t.Helper()

	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()

	if conn == nil {
		f.t.Fatalf("fake instrument: no client connected")
	}
	if _, err := conn.Write(data); err != nil {
		f.t.Fatalf("fake instrument: write: %v", err)
	}
}

// Drop closes the current connection, simulating an instrument reset.
func (f *FakeInstrument) Drop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
}

// Close stops accepting connections and closes the current one.
func (f *FakeInstrument) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	_ = f.listener.Close()
	f.Drop()
}
