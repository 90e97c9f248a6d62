package sessionlog

import (
	"time"

	"github.com/suman7063/ifindLife-sub000/internal/session"
)

// Record is the immutable outcome of one finished session.
//
// Invariants:
// - One record per session_id; records are never updated or deleted.
// - Written only after the session's settlement succeeded, so
//   billing_transaction_id is always set.
//
// Storage (Postgres): table call_session_log with an INSERT-only policy and
// a primary key on session_id.
type Record struct {
	SessionID string `json:"session_id" db:"session_id"`
	CallerID  string `json:"caller_id" db:"caller_id"`
	CalleeID  string `json:"callee_id" db:"callee_id"`

	Status         session.Status         `json:"status" db:"status"`
	TerminalReason session.TerminalReason `json:"terminal_reason" db:"terminal_reason"`

	FinalCostMinor       int64          `json:"final_cost_minor" db:"final_cost_minor"`
	Currency             string         `json:"currency" db:"currency"`
	SettlementKind       SettlementKind `json:"settlement_kind" db:"settlement_kind"`
	BillingTransactionID string         `json:"billing_transaction_id" db:"billing_transaction_id"`

	// Session is the final snapshot, stored as JSONB.
	Session session.CallSession `json:"session" db:"snapshot"`

	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}

// SettlementKind is the ledger operation that closed the session.
type SettlementKind string

const (
	SettlementDebit   SettlementKind = "debit"
	SettlementRefund  SettlementKind = "refund"
	SettlementRelease SettlementKind = "release"
)
