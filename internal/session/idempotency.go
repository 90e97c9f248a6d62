package session

import "fmt"

// Ledger operations used in idempotency keys.
const (
	OpReserve = "reserve"
	OpRelease = "release"
	OpDebit   = "debit"
	OpRefund  = "refund"
)

// IdempotencyKey builds "<sessionId>:<operation>:<qualifier>".
// For settlement operations the qualifier is the terminal reason, so a
// retried settlement always reuses the same key.
func IdempotencyKey(sessionID, operation, qualifier string) string {
	return fmt.Sprintf("%s:%s:%s", sessionID, operation, qualifier)
}

// InitialReservationKey is the key for the reservation taken at creation.
func InitialReservationKey(sessionID string) string {
	return IdempotencyKey(sessionID, OpReserve, "initial")
}

// ExtensionReservationKey is the key for the n-th extension (1-based).
func ExtensionReservationKey(sessionID string, n int) string {
	return IdempotencyKey(sessionID, OpReserve, fmt.Sprintf("ext-%d", n))
}

// SettlementKey is the key for the single settlement of a session.
func SettlementKey(sessionID, operation string, reason TerminalReason) string {
	return IdempotencyKey(sessionID, operation, string(reason))
}

// AbandonedHoldKey is the key for releasing the initial hold of a session
// that never got registered.
func AbandonedHoldKey(sessionID string) string {
	return IdempotencyKey(sessionID, OpRelease, "abandoned")
}
