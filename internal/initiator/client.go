// Package initiator implements the client side of the harness: a correlator
// that pairs outbound requests with their asynchronous responses by
// correlation key.
package initiator

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradelab/internal/errs"
	"github.com/aristath/tradelab/internal/message"
)

const defaultAwaitTimeout = 30 * time.Second

// Conn is the outbound transport the client sends through.
type Conn interface {
	Connected() bool
	Send(m *message.Message) error
}

// KeyFunc extracts the correlation key from a message.
type KeyFunc func(m *message.Message) (string, bool)

// ClOrdIDKey correlates on the client order id. It is the default.
func ClOrdIDKey(m *message.Message) (string, bool) {
	return m.String(message.TagClOrdID)
}

// Client sends requests and blocks callers until the matching response
// arrives. Each correlation key may have at most one waiter at a time.
type Client struct {
	conn    Conn
	keyFn   KeyFunc
	timeout time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan *message.Message
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default 30s await timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithKeyFunc overrides how correlation keys are derived.
func WithKeyFunc(fn KeyFunc) Option {
	return func(c *Client) { c.keyFn = fn }
}

// NewClient builds a correlating client over the given transport.
func NewClient(conn Conn, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		keyFn:   ClOrdIDKey,
		timeout: defaultAwaitTimeout,
		log:     log.With().Str("component", "initiator").Logger(),
		pending: make(map[string]chan *message.Message),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send transmits a message without waiting for a response.
func (c *Client) Send(m *message.Message) error {
	if !c.conn.Connected() {
		return fmt.Errorf("send %s: %w", m.MsgType(), errs.ErrNoSession)
	}
	if err := c.conn.Send(m); err != nil {
		return fmt.Errorf("send %s: %w: %w", m.MsgType(), errs.ErrTransportFailure, err)
	}
	return nil
}

// SendAndAwait transmits a message and blocks until the response carrying
// the same correlation key arrives, or the timeout elapses. The key slot is
// released before returning on every path.
func (c *Client) SendAndAwait(m *message.Message) (*message.Message, error) {
	key, ok := c.keyFn(m)
	if !ok {
		return nil, fmt.Errorf("message %s: %w", m.MsgType(), errs.ErrMissingCorrelationKey)
	}
	if !c.conn.Connected() {
		return nil, fmt.Errorf("key %q: %w", key, errs.ErrNoSession)
	}

	ch := make(chan *message.Message, 1)
	c.mu.Lock()
	if _, exists := c.pending[key]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("key %q: %w", key, errs.ErrDuplicateKey)
	}
	c.pending[key] = ch
	c.mu.Unlock()

	if err := c.conn.Send(m); err != nil {
		c.cancel(key)
		return nil, fmt.Errorf("key %q: %w: %w", key, errs.ErrTransportFailure, err)
	}
	c.log.Debug().Str("key", key).Str("msg_type", m.MsgType()).Msg("awaiting response")

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		c.cancel(key)
		// A response may have been claimed just as the timer fired.
		select {
		case resp := <-ch:
			return resp, nil
		default:
		}
		return nil, fmt.Errorf("key %q: no response within %s: %w", key, c.timeout, errs.ErrTimeout)
	}
}

// Deliver routes an inbound response to its waiter. It reports whether a
// waiter claimed the message; each slot is consumed exactly once, and
// responses without a waiter are dropped.
func (c *Client) Deliver(m *message.Message) bool {
	key, ok := c.keyFn(m)
	if !ok {
		c.log.Debug().Str("msg_type", m.MsgType()).Msg("inbound message has no correlation key; dropped")
		return false
	}
	c.mu.Lock()
	ch, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if !ok {
		c.log.Debug().Str("key", key).Msg("no waiter for inbound response; dropped")
		return false
	}
	ch <- m
	return true
}

// PendingCount reports the number of keys currently awaiting a response.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) cancel(key string) {
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
}
