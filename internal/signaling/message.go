package signaling

import (
	"errors"
	"time"

	"github.com/suman7063/ifindLife-sub000/internal/session"
)

// MessageType is the "type" field of every signaling frame.
type MessageType string

const (
	TypeRequest MessageType = "request"
	TypeAccept  MessageType = "accept"
	TypeDecline MessageType = "decline"
	TypeExpire  MessageType = "expire"
	TypeCancel  MessageType = "cancel"
	TypeWarning MessageType = "warning"
	TypeStatus  MessageType = "status"
)

// Message is the JSON frame exchanged on the bus and relayed to clients.
type Message struct {
	Type      MessageType      `json:"type"`
	RequestID string           `json:"requestId,omitempty"`
	SessionID string           `json:"sessionId"`
	CallerID  string           `json:"callerId,omitempty"`
	CalleeID  string           `json:"calleeId,omitempty"`
	CallType  session.CallType `json:"callType,omitempty"`
	ExpiresAt *time.Time       `json:"expiresAt,omitempty"`
	Status    session.Status   `json:"status,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

// dedupKey identifies redeliveries of the same logical message.
// Status and warning frames are keyed by their content instead.
func (m Message) dedupKey() string {
	switch m.Type {
	case TypeStatus, TypeWarning:
		return string(m.Type) + "|" + m.SessionID + "|" + string(m.Status) + "|" + m.Reason
	}
	return string(m.Type) + "|" + m.RequestID
}

// SessionTopic carries every frame of one session.
func SessionTopic(sessionID string) string { return "call:session:" + sessionID }

// UserTopic carries the frames a user's clients should see.
func UserTopic(userID string) string { return "call:user:" + userID }

var (
	// ErrConflict is returned when a request was already resolved.
	ErrConflict        = errors.New("signaling: request already resolved")
	ErrRequestNotFound = errors.New("signaling: request not found")
	ErrInvalidRequest  = errors.New("signaling: invalid request")
	ErrClosed          = errors.New("signaling: subscription closed")
)
