package media

import (
	"context"
	"sync"
)

// WebhookTransport is the adapter for providers that report participant
// activity through signed HTTP callbacks. Join registers the channel; the
// webhook handler feeds provider events in through Deliver.
type WebhookTransport struct {
	mu    sync.Mutex
	conns map[string]*webhookConn
}

func NewWebhookTransport() *WebhookTransport {
	return &WebhookTransport{conns: map[string]*webhookConn{}}
}

func (t *WebhookTransport) Join(ctx context.Context, req JoinRequest) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Channel == "" || req.SessionID == "" {
		return nil, ErrInvalidEvent
	}
	c := &webhookConn{
		transport: t,
		channel:   req.Channel,
		events:    make(chan Event, 32),
	}
	t.mu.Lock()
	if old, ok := t.conns[req.Channel]; ok {
		old.close()
	}
	t.conns[req.Channel] = c
	t.mu.Unlock()
	return c, nil
}

// Deliver routes a provider event to the connection that owns its channel.
func (t *WebhookTransport) Deliver(ctx context.Context, ev Event) error {
	if ev.Channel == "" || ev.Type == "" {
		return ErrInvalidEvent
	}
	t.mu.Lock()
	c, ok := t.conns[ev.Channel]
	t.mu.Unlock()
	if !ok {
		return ErrUnknownChannel
	}
	return c.send(ctx, ev)
}

// Open reports how many channels are joined.
func (t *WebhookTransport) Open() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

type webhookConn struct {
	transport *WebhookTransport
	channel   string

	mu     sync.Mutex
	closed bool
	events chan Event
}

func (c *webhookConn) Events() <-chan Event { return c.events }

func (c *webhookConn) Leave(ctx context.Context) error {
	_ = ctx
	c.transport.mu.Lock()
	if cur, ok := c.transport.conns[c.channel]; ok && cur == c {
		delete(c.transport.conns, c.channel)
	}
	c.transport.mu.Unlock()
	c.close()
	return nil
}

func (c *webhookConn) send(ctx context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *webhookConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}
