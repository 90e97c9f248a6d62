// Package realtime pushes signaling frames to connected parties over
// websockets and takes their answers back.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/suman7063/ifindLife-sub000/internal/signaling"
)

var (
	// ErrBufferFull is returned when a client cannot keep up.
	ErrBufferFull = errors.New("realtime: send buffer full")
	ErrClosed     = errors.New("realtime: client closed")
)

const sendBuffer = 64

// Client is one websocket connection of a user.
type Client struct {
	ID     string
	UserID string

	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// userClients are the connections of one user plus the bus subscription
// that feeds them.
type userClients struct {
	clients map[*Client]struct{}
	sub     signaling.Subscription
	stop    chan struct{}
}

// Hub fans user-topic frames out to every connection of that user. One bus
// subscription is held per user with at least one connection.
type Hub struct {
	bus signaling.Bus
	log *slog.Logger

	mu    sync.RWMutex
	users map[string]*userClients
}

func NewHub(bus signaling.Bus, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{bus: bus, log: log, users: map[string]*userClients{}}
}

// Register adds a connection for userID, subscribing to the user's topic on
// the first one.
func (h *Hub) Register(ctx context.Context, userID string, conn *websocket.Conn) (*Client, error) {
	c := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    h,
	}

	if h.join(c) {
		return c, nil
	}

	// Subscribing is a bus round trip; keep it out of the lock.
	sub, err := h.bus.Subscribe(ctx, signaling.UserTopic(userID))
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if uc, ok := h.users[userID]; ok {
		// A concurrent first connection won.
		uc.clients[c] = struct{}{}
		h.mu.Unlock()
		_ = sub.Close()
		h.log.Debug("realtime client registered", "user_id", userID, "client_id", c.ID)
		return c, nil
	}
	uc := &userClients{clients: map[*Client]struct{}{c: {}}, sub: sub, stop: make(chan struct{})}
	h.users[userID] = uc
	h.mu.Unlock()

	go h.forward(userID, uc)
	h.log.Debug("realtime client registered", "user_id", userID, "client_id", c.ID, "subscribed", true)
	return c, nil
}

// join adds c to an already subscribed user.
func (h *Hub) join(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	uc, ok := h.users[c.UserID]
	if !ok {
		return false
	}
	uc.clients[c] = struct{}{}
	h.log.Debug("realtime client registered", "user_id", c.UserID, "client_id", c.ID)
	return true
}

// Unregister drops a connection. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	var last signaling.Subscription
	h.mu.Lock()
	if uc, ok := h.users[c.UserID]; ok {
		if _, member := uc.clients[c]; member {
			delete(uc.clients, c)
			if len(uc.clients) == 0 {
				delete(h.users, c.UserID)
				close(uc.stop)
				last = uc.sub
			}
		}
	}
	h.mu.Unlock()
	if last != nil {
		_ = last.Close()
	}

	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

func (h *Hub) forward(userID string, uc *userClients) {
	for {
		select {
		case <-uc.stop:
			return
		case m, ok := <-uc.sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(m)
			if err != nil {
				h.log.Warn("realtime encode failed", "user_id", userID, "error", err)
				continue
			}
			h.deliver(userID, data)
		}
	}
}

func (h *Hub) deliver(userID string, data []byte) {
	h.mu.RLock()
	uc, ok := h.users[userID]
	var targets []*Client
	if ok {
		targets = make([]*Client, 0, len(uc.clients))
		for c := range uc.clients {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := h.Send(c, data); errors.Is(err, ErrBufferFull) {
			h.log.Warn("realtime client too slow, dropping", "user_id", userID, "client_id", c.ID)
			h.Unregister(c)
		}
	}
}

// Send queues data for one client without blocking.
func (h *Hub) Send(c *Client, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendJSON queues v as a JSON text frame.
func (h *Hub) SendJSON(c *Client, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.Send(c, data)
}

// Connections returns the number of registered connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, uc := range h.users {
		n += len(uc.clients)
	}
	return n
}

// Online reports whether userID has at least one connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.users[userID]
	return ok
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Client
	for _, uc := range h.users {
		for c := range uc.clients {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.Unregister(c)
		_ = c.conn.Close()
	}
}

func (c *Client) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}
