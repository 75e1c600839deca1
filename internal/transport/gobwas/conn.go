// Package gobwas provides a push socket dialer built on github.com/gobwas/ws.
package gobwas

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/taskflow-chat/internal/transport"
)

// Conn wraps a client-side net.Conn speaking the WebSocket protocol.
//
// Every frame written to conn goes out while mu is held: control replies are
// written by wsutil inside Read, and Close waits for Read to return before
// sending its close frame.
type Conn struct {
	conn net.Conn
	rw   io.ReadWriter
	mu   sync.Mutex

	// stateMu guards closed and the read deadline.
	stateMu sync.Mutex
	closed  bool
}

type readWriter struct {
	io.Reader
	io.Writer
}

// NewConn wraps conn. br holds bytes the handshake read past the response and
// may be nil.
func NewConn(conn net.Conn, br *bufio.Reader) *Conn {
	c := &Conn{conn: conn, rw: conn}
	if br != nil {
		c.rw = readWriter{Reader: br, Writer: conn}
	}
	return c
}

// Read implements transport.Conn.
// Ping and close frames are answered by wsutil before data is returned.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stateMu.Lock()
	if c.closed {
		c.stateMu.Unlock()
		return nil, net.ErrClosed
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(dl)
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}
	c.stateMu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	data, _, err := wsutil.ReadServerData(c.rw)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if c.isClosed() {
			return nil, net.ErrClosed
		}
		return nil, err
	}
	return data, nil
}

// Close implements transport.Conn. A pending Read is interrupted first.
func (c *Conn) Close() error {
	c.stateMu.Lock()
	if c.closed {
		c.stateMu.Unlock()
		return nil
	}
	c.closed = true
	_ = c.conn.SetReadDeadline(time.Now())
	c.stateMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	return c.conn.Close()
}

func (c *Conn) isClosed() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.closed
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Dialer dials push sockets with gobwas/ws.
type Dialer struct {
	// Timeout bounds the handshake. Zero leaves it to the context.
	Timeout time.Duration
}

// NewDialer returns a Dialer with default settings.
func NewDialer() *Dialer {
	return &Dialer{}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	dialer := ws.Dialer{Timeout: d.Timeout}
	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return NewConn(conn, br), nil
}

var _ transport.Dialer = (*Dialer)(nil)
