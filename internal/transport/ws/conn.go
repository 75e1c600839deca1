// Package ws provides the default push socket dialer, built on
// nhooyr.io/websocket.
package ws

import (
	"context"
	"fmt"
	"net/url"

	"github.com/omochice/taskflow-chat/internal/transport"
	"nhooyr.io/websocket"
)

const defaultReadLimit = 1 << 20

// Conn adapts nhooyr.io/websocket to transport.Conn.
type Conn struct {
	conn       *websocket.Conn
	remoteAddr string
}

// NewConn wraps a websocket.Conn with empty remote address.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// NewConnWithAddr wraps a websocket.Conn with the specified remote address.
func NewConnWithAddr(conn *websocket.Conn, addr string) *Conn {
	return &Conn{conn: conn, remoteAddr: addr}
}

// Read implements transport.Conn.
// Text and binary messages are both returned as raw payloads.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Dialer dials push sockets with nhooyr.io/websocket.
type Dialer struct {
	// ReadLimit caps the size of a single frame. Zero means 1 MiB.
	ReadLimit int64
}

// NewDialer returns a Dialer with default settings.
func NewDialer() *Dialer {
	return &Dialer{}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, rawURL string) (transport.Conn, error) {
	conn, _, err := websocket.Dial(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rawURL, err)
	}

	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	conn.SetReadLimit(limit)

	addr := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		addr = u.Host
	}
	return NewConnWithAddr(conn, addr), nil
}

var _ transport.Dialer = (*Dialer)(nil)
