package push_test

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/omochice/taskflow-chat/internal/transport"
)

// mockConn is a mock implementation of transport.Conn for testing.
type mockConn struct {
	readCh     chan []byte
	mu         sync.Mutex
	closed     bool
	closeOnce  sync.Once
	closedCh   chan struct{}
	remoteAddr string
}

func newMockConn(addr string) *mockConn {
	return &mockConn{
		readCh:     make(chan []byte, 10),
		closedCh:   make(chan struct{}),
		remoteAddr: addr,
	}
}

func (m *mockConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.closedCh:
		return nil, io.EOF
	case data, ok := <-m.readCh:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	}
}

func (m *mockConn) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.closedCh)
	})
	return nil
}

func (m *mockConn) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

// mockDialer hands out the queued conns in order and fails once they run out.
type mockDialer struct {
	mu    sync.Mutex
	conns []*mockConn
	dials int
}

func (d *mockDialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *mockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Compile-time check that mockConn implements transport.Conn
var _ transport.Conn = (*mockConn)(nil)
