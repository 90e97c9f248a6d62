package media

import (
	"context"
	"errors"
	"time"

	"github.com/suman7063/ifindLife-sub000/internal/session"
)

// Transport is the provider-agnostic media boundary used by the orchestrator.
//
// Rules:
// - No provider SDK calls outside media adapters.
// - Adapters translate provider events into Event values; they never decide
//   what happens to a session.
type Transport interface {
	Join(ctx context.Context, req JoinRequest) (Connection, error)
}

// Connection is a joined media channel. Events is closed after Leave.
type Connection interface {
	Events() <-chan Event
	Leave(ctx context.Context) error
}

// JoinRequest opens the channel for one session.
type JoinRequest struct {
	SessionID string           `json:"session_id"`
	Channel   string           `json:"channel"`
	CallType  session.CallType `json:"call_type"`

	// Participants carry the per-party channel credentials.
	Participants []Participant `json:"participants"`
}

type Participant struct {
	UserID     string     `json:"user_id"`
	Credential Credential `json:"credential"`
}

type EventType string

const (
	EventUserJoined             EventType = "user-joined"
	EventUserLeft               EventType = "user-left"
	EventConnectionStateChanged EventType = "connection-state-changed"
)

type ConnectionState string

const (
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateDisconnected ConnectionState = "disconnected"
	StateFailed       ConnectionState = "failed"
)

// Event is a provider-agnostic media event.
type Event struct {
	Type       EventType       `json:"event"`
	Channel    string          `json:"channel"`
	UserID     string          `json:"user_id,omitempty"`
	State      ConnectionState `json:"state,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

var (
	ErrUnknownChannel = errors.New("media: unknown channel")
	ErrChannelClosed  = errors.New("media: channel closed")
	ErrInvalidEvent   = errors.New("media: invalid event")
)

// ChannelName derives the provider channel for a session.
func ChannelName(sessionID string) string { return "call-" + sessionID }
