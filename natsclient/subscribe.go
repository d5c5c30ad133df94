package natsclient

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
)

// msgTimeout bounds how long one message handler may run.
const msgTimeout = 30 * time.Second

// wrapHandler derives a per-message context from the subscription
// context so a stuck handler cannot block the delivery goroutine
// forever.
func wrapHandler(ctx context.Context, handler func(context.Context, []byte)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, msgTimeout)
		defer cancel()
		handler(msgCtx, msg.Data)
	}
}

// Subscribe subscribes to a subject. The subscription is tracked and
// drained on Close; callers may also unsubscribe it themselves.
// Errors from nats.go pass through unwrapped so callers can test for
// sentinels like nats.ErrBadSubject.
func (c *Client) Subscribe(
	ctx context.Context,
	subject string,
	handler func(context.Context, []byte),
) (*nats.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return nil, ErrNotConnected
	}

	sub, err := c.conn.Subscribe(subject, wrapHandler(ctx, handler))
	if err != nil {
		return nil, err
	}

	c.subs = append(c.subs, sub)
	return sub, nil
}

// QueueSubscribe subscribes as part of a queue group, so multiple feed
// instances share the readout stream instead of duplicating it.
func (c *Client) QueueSubscribe(
	ctx context.Context,
	subject, queue string,
	handler func(context.Context, []byte),
) (*nats.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.IsConnected() {
		return nil, ErrNotConnected
	}

	sub, err := c.conn.QueueSubscribe(subject, queue, wrapHandler(ctx, handler))
	if err != nil {
		return nil, err
	}

	c.subs = append(c.subs, sub)
	return sub, nil
}

// Publish sends data to a subject on the live connection.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}

	return conn.Publish(subject, data)
}

// RTT measures the round-trip time to the server.
func (c *Client) RTT() (time.Duration, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return 0, ErrNotConnected
	}

	return conn.RTT()
}
