// Package transport abstracts the push socket so the push channel does not
// depend on a particular WebSocket library.
package transport

import "context"

// Conn is an inbound-only socket. The client never writes application data to
// the push socket; requests go over HTTP.
type Conn interface {
	// Read blocks until the next data frame arrives and returns its payload.
	// Control frames are handled internally.
	Read(ctx context.Context) ([]byte, error)

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Dialer opens a Conn to a ws:// or wss:// URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}
