package session

import (
	"fmt"
	"time"
)

// DefaultFreeAllowanceSeconds is the uncharged opening of every session.
const DefaultFreeAllowanceSeconds = 900

// CallType is the media kind requested by the caller.
type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

func (t CallType) Valid() bool {
	return t == CallTypeAudio || t == CallTypeVideo
}

// TerminalReason records why a session stopped. Keep values stable; they are
// persisted in the session log and embedded in idempotency keys.
type TerminalReason string

const (
	ReasonNone                 TerminalReason = ""
	ReasonUserEnded            TerminalReason = "user_ended"
	ReasonExpertNoShow         TerminalReason = "expert_no_show"
	ReasonDeclined             TerminalReason = "declined"
	ReasonExpired              TerminalReason = "expired"
	ReasonDisconnected         TerminalReason = "disconnected"
	ReasonPaymentFailed        TerminalReason = "payment_failed"
	ReasonUserCancelled        TerminalReason = "user_cancelled"
	ReasonReservationExhausted TerminalReason = "reservation_exhausted"
	ReasonMediaFailed          TerminalReason = "media_failed"
	ReasonSignalingFailed      TerminalReason = "signaling_failed"
)

// Party identifies which side of a session acted.
type Party string

const (
	PartyNone   Party = ""
	PartyCaller Party = "caller"
	PartyCallee Party = "callee"
	PartySystem Party = "system"
)

// CallSession is owned by the orchestrator loop for its whole life.
// Other goroutines only ever see copies (see Snapshot).
type CallSession struct {
	ID       string   `json:"id"`
	CallerID string   `json:"caller_id"`
	CalleeID string   `json:"callee_id"`
	CallType CallType `json:"call_type"`

	Status Status `json:"status"`

	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`

	FreeAllowanceSeconds int    `json:"free_allowance_seconds"`
	RatePerMinuteMinor   int64  `json:"rate_per_minute_minor"`
	Currency             string `json:"currency"`

	// ReservedDurationSeconds covers the free allowance plus every applied extension.
	ReservedDurationSeconds int   `json:"reserved_duration_seconds"`
	ReservedAmountMinor     int64 `json:"reserved_amount_minor"`
	AccruedCostMinor        int64 `json:"accrued_cost_minor"`
	ExtensionCount          int   `json:"extension_count"`

	RequestID     string `json:"request_id,omitempty"`
	ReservationID string `json:"reservation_id,omitempty"`

	TerminalReason TerminalReason `json:"terminal_reason,omitempty"`
	EndedBy        Party          `json:"ended_by,omitempty"`

	// BillingTransactionID is written once, by SetBillingTransaction.
	BillingTransactionID string `json:"billing_transaction_id,omitempty"`
}

// Transition moves the session to next if the state machine allows it.
// The session is left untouched on error.
func (s *CallSession) Transition(next Status) error {
	if !s.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	}
	s.Status = next
	return nil
}

// CompareAndSwapStatus performs the transition only when the current status is
// one of from. It reports whether the swap happened.
func (s *CallSession) CompareAndSwapStatus(next Status, from ...Status) bool {
	for _, f := range from {
		if s.Status == f && f.CanTransitionTo(next) {
			s.Status = next
			return true
		}
	}
	return false
}

// SetBillingTransaction records the settlement transaction id.
// Returns false when an id is already present; the existing id is kept.
func (s *CallSession) SetBillingTransaction(id string) bool {
	if s.BillingTransactionID != "" || id == "" {
		return false
	}
	s.BillingTransactionID = id
	return true
}

// Snapshot returns a deep copy safe to hand to other goroutines.
func (s *CallSession) Snapshot() CallSession {
	out := *s
	out.ScheduledStart = copyTime(s.ScheduledStart)
	out.StartedAt = copyTime(s.StartedAt)
	out.EndedAt = copyTime(s.EndedAt)
	out.DisconnectedAt = copyTime(s.DisconnectedAt)
	return out
}

// IsParticipant reports whether userID is the caller or the callee.
func (s *CallSession) IsParticipant(userID string) bool {
	return userID != "" && (userID == s.CallerID || userID == s.CalleeID)
}

// PartyOf maps a user id onto the session's parties.
func (s *CallSession) PartyOf(userID string) Party {
	switch userID {
	case "":
		return PartyNone
	case s.CallerID:
		return PartyCaller
	case s.CalleeID:
		return PartyCallee
	default:
		return PartyNone
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// RequestStatus is the lifecycle of a single CallRequest.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestDeclined  RequestStatus = "declined"
	RequestExpired   RequestStatus = "expired"
	RequestCancelled RequestStatus = "cancelled"
)

func (s RequestStatus) Resolved() bool { return s != RequestPending }

// CallRequest is the signaling-side record of "caller rings callee".
type CallRequest struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	CallerID  string        `json:"caller_id"`
	CalleeID  string        `json:"callee_id"`
	CallType  CallType      `json:"call_type"`
	Status    RequestStatus `json:"status"`
	ExpiresAt time.Time     `json:"expires_at"`
	CreatedAt time.Time     `json:"created_at"`
}
