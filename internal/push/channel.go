// Package push maintains the single push socket of a mounted messaging view
// and turns its frames into events.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/omochice/taskflow-chat/internal/logger"
	"github.com/omochice/taskflow-chat/internal/metrics"
	"github.com/omochice/taskflow-chat/internal/transport"
	"github.com/omochice/taskflow-chat/pkg/protocol"
)

// ErrAlreadyOpen is returned by Open on a channel that was opened before.
var ErrAlreadyOpen = errors.New("push channel already opened")

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.logger = logger.OrDiscard(l) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

// WithReconnect enables redialing with exponential backoff after the socket
// drops. Off by default: a dropped socket stays down until the view remounts.
func WithReconnect(enabled bool) Option {
	return func(c *Channel) { c.reconnect = enabled }
}

// WithBackOff replaces the reconnect policy.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Channel) { c.newBackOff = newBackOff }
}

// Channel owns exactly one push socket. It never mutates client state; it only
// emits decoded message frames on Events.
type Channel struct {
	dialer     transport.Dialer
	url        string
	logger     *slog.Logger
	metrics    *metrics.Metrics
	reconnect  bool
	newBackOff func() backoff.BackOff
	buffer     int

	events chan protocol.Frame
	mu     sync.RWMutex
	conn   transport.Conn
	opened bool
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// New creates a Channel that will dial url with dialer.
func New(dialer transport.Dialer, url string, opts ...Option) *Channel {
	c := &Channel{
		dialer:     dialer,
		url:        url,
		logger:     logger.Discard(),
		newBackOff: defaultBackOff,
		buffer:     16,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.events = make(chan protocol.Frame, c.buffer)
	return c
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	return b
}

// Open dials the socket and starts receiving. It may be called once.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.opened || c.closing() {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.opened = true
	c.mu.Unlock()

	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		close(c.events)
		return fmt.Errorf("failed to open push channel: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	c.logger.Info("push channel opened", "remote", conn.RemoteAddr())

	c.wg.Add(1)
	go c.receive(runCtx)

	return nil
}

// Events returns the decoded "message" frames. The channel is closed when the
// receive loop ends.
func (c *Channel) Events() <-chan protocol.Frame {
	return c.events
}

// IsConnected returns whether a socket is currently open.
func (c *Channel) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Close closes the socket and waits for the receive loop to finish.
func (c *Channel) Close() {
	c.once.Do(func() {
		close(c.done)
	})

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Channel) closing() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Channel) receive(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.events)

	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		data, err := conn.Read(ctx)
		if err != nil {
			if c.closing() {
				return
			}
			c.logger.Warn("push channel read failed", "error", err)
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			conn.Close()

			if !c.reconnect || !c.redial(ctx) {
				return
			}
			continue
		}

		c.handle(data)
	}
}

func (c *Channel) handle(data []byte) {
	c.metrics.FrameReceived()

	frame, err := protocol.DecodeFrame(data)
	if err != nil {
		c.metrics.FrameDropped(metrics.ReasonMalformed)
		c.logger.Warn("dropping malformed push frame", "error", err)
		return
	}
	if !frame.IsMessage() {
		c.metrics.FrameDropped(metrics.ReasonIgnored)
		c.logger.Debug("ignoring push frame", "type", frame.Type)
		return
	}

	select {
	case c.events <- frame:
	case <-c.done:
	}
}

// redial reports whether a new socket is in place.
func (c *Channel) redial(ctx context.Context) bool {
	op := func() error {
		conn, err := c.dialer.Dial(ctx, c.url)
		if err != nil {
			return err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closing() {
			conn.Close()
			return backoff.Permanent(context.Canceled)
		}
		c.conn = conn
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("push channel reconnect failed", "error", err, "retry_in", wait)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		if !c.closing() {
			c.logger.Error("push channel gave up reconnecting", "error", err)
		}
		return false
	}
	c.metrics.Reconnected()
	c.logger.Info("push channel reconnected")
	return true
}
