package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/suman7063/ifindLife-sub000/internal/session"
)

// DefaultRequestTTL is how long a callee has to answer.
const DefaultRequestTTL = 60 * time.Second

// Request is what the orchestrator asks the channel to publish.
type Request struct {
	SessionID string
	CallerID  string
	CalleeID  string
	CallType  session.CallType
	// ExpiresAt defaults to now + the channel's TTL.
	ExpiresAt time.Time
}

// Handler consumes frames for one session. Calls are sequential.
type Handler func(Message)

// Channel implements the call request handshake on top of a Bus and a
// RequestStore.
//
// Frames always go to the session topic; request/accept/decline/expire/cancel
// are mirrored to the other party's user topic for their clients.
type Channel struct {
	bus   Bus
	store RequestStore
	clock clockwork.Clock
	ttl   time.Duration
	log   *slog.Logger

	mu     sync.Mutex
	timers map[string]clockwork.Timer
}

type ChannelOption func(*Channel)

func WithRequestTTL(d time.Duration) ChannelOption {
	return func(c *Channel) {
		if d > 0 {
			c.ttl = d
		}
	}
}

func WithLogger(l *slog.Logger) ChannelOption {
	return func(c *Channel) {
		if l != nil {
			c.log = l
		}
	}
}

func NewChannel(bus Bus, store RequestStore, clock clockwork.Clock, opts ...ChannelOption) *Channel {
	c := &Channel{
		bus:    bus,
		store:  store,
		clock:  clock,
		ttl:    DefaultRequestTTL,
		log:    slog.Default(),
		timers: map[string]clockwork.Timer{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// PublishRequest stores a pending request, rings the callee and arms the
// expiry timer. It returns the request id.
func (c *Channel) PublishRequest(ctx context.Context, r Request) (string, error) {
	if r.SessionID == "" || r.CallerID == "" || r.CalleeID == "" || !r.CallType.Valid() {
		return "", ErrInvalidRequest
	}
	now := c.clock.Now().UTC()
	expiresAt := r.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(c.ttl)
	}

	req := session.CallRequest{
		ID:        uuid.NewString(),
		SessionID: r.SessionID,
		CallerID:  r.CallerID,
		CalleeID:  r.CalleeID,
		CallType:  r.CallType,
		Status:    session.RequestPending,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := c.store.Create(ctx, req); err != nil {
		return "", fmt.Errorf("store request: %w", err)
	}

	c.armExpiry(req.ID, expiresAt.Sub(now))

	msg := frame(TypeRequest, req)
	if err := c.fanout(ctx, msg, req.CalleeID); err != nil {
		c.disarm(req.ID)
		// Leave no pending request behind that could later expire.
		_, _ = c.store.Resolve(context.WithoutCancel(ctx), req.ID, session.RequestCancelled)
		return "", err
	}
	return req.ID, nil
}

// Respond records the callee's answer. A resolved request yields ErrConflict
// and nothing is emitted.
func (c *Channel) Respond(ctx context.Context, requestID string, accept bool) error {
	status, typ := session.RequestDeclined, TypeDecline
	if accept {
		status, typ = session.RequestAccepted, TypeAccept
	}
	req, err := c.store.Resolve(ctx, requestID, status)
	if err != nil {
		return err
	}
	c.disarm(requestID)
	return c.fanout(ctx, frame(typ, req), req.CallerID)
}

// Cancel withdraws a pending request. A resolved request yields ErrConflict.
func (c *Channel) Cancel(ctx context.Context, requestID string) error {
	req, err := c.store.Resolve(ctx, requestID, session.RequestCancelled)
	if err != nil {
		return err
	}
	c.disarm(requestID)
	return c.fanout(ctx, frame(TypeCancel, req), req.CalleeID)
}

// Subscribe delivers the session's frames to handler until the returned
// function is called or ctx ends. Redelivered frames are dropped.
func (c *Channel) Subscribe(ctx context.Context, sessionID string, handler Handler) (func(), error) {
	sub, err := c.bus.Subscribe(ctx, SessionTopic(sessionID))
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		seen := map[string]struct{}{}
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-sub.C():
				if !ok {
					return
				}
				if m.SessionID != sessionID {
					continue
				}
				k := m.dedupKey()
				if _, dup := seen[k]; dup {
					c.log.Debug("signaling: duplicate frame dropped", "session_id", sessionID, "type", m.Type, "request_id", m.RequestID)
					continue
				}
				seen[k] = struct{}{}
				handler(m)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = sub.Close()
			<-done
		})
	}, nil
}

// Notify sends a frame to one user's clients.
func (c *Channel) Notify(ctx context.Context, userID string, msg Message) error {
	if userID == "" {
		return ErrInvalidRequest
	}
	return c.bus.Publish(ctx, UserTopic(userID), msg)
}

// Close disarms every pending expiry timer owned by this process.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *Channel) armExpiry(requestID string, after time.Duration) {
	if after < 0 {
		after = 0
	}
	t := c.clock.AfterFunc(after, func() { c.expire(requestID) })
	c.mu.Lock()
	c.timers[requestID] = t
	c.mu.Unlock()
}

func (c *Channel) disarm(requestID string) {
	c.mu.Lock()
	t, ok := c.timers[requestID]
	delete(c.timers, requestID)
	c.mu.Unlock()
	if ok {
		t.Stop()
	}
}

func (c *Channel) expire(requestID string) {
	c.mu.Lock()
	delete(c.timers, requestID)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := c.store.Resolve(ctx, requestID, session.RequestExpired)
	if err != nil {
		// Lost the race to accept/decline/cancel; nothing to emit.
		if !errors.Is(err, ErrConflict) {
			c.log.Warn("signaling: expire failed", "request_id", requestID, "error", err)
		}
		return
	}
	if err := c.fanout(ctx, frame(TypeExpire, req), req.CallerID, req.CalleeID); err != nil {
		c.log.Warn("signaling: expire publish failed", "request_id", requestID, "session_id", req.SessionID, "error", err)
	}
}

func (c *Channel) fanout(ctx context.Context, msg Message, users ...string) error {
	if err := c.bus.Publish(ctx, SessionTopic(msg.SessionID), msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Type, err)
	}
	for _, u := range users {
		if err := c.bus.Publish(ctx, UserTopic(u), msg); err != nil {
			c.log.Warn("signaling: user fanout failed", "user_id", u, "type", msg.Type, "error", err)
		}
	}
	return nil
}

func frame(typ MessageType, req session.CallRequest) Message {
	exp := req.ExpiresAt
	return Message{
		Type:      typ,
		RequestID: req.ID,
		SessionID: req.SessionID,
		CallerID:  req.CallerID,
		CalleeID:  req.CalleeID,
		CallType:  req.CallType,
		ExpiresAt: &exp,
	}
}
