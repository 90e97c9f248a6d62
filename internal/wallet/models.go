package wallet

import "time"

// Wallet is a user's money account.
// Invariant: balance is derived from immutable ledger entries; nothing mutates
// a balance without writing a corresponding ledger entry.
type Wallet struct {
	ID       string `json:"id" db:"id"`
	UserID   string `json:"user_id" db:"user_id"`
	Currency string `json:"currency" db:"currency"`

	Status WalletStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type WalletStatus string

const (
	WalletStatusActive   WalletStatus = "active"
	WalletStatusDisabled WalletStatus = "disabled"
)

// Transaction is an immutable append-only ledger entry.
//
// AmountMinor is signed: holds and debits are negative, releases, refunds
// and credits are positive. The available balance is the sum of all entries.
type Transaction struct {
	ID       string `json:"id" db:"id"`
	UserID   string `json:"user_id" db:"user_id"`
	WalletID string `json:"wallet_id" db:"wallet_id"`

	Type TransactionType `json:"type" db:"type"`

	AmountMinor int64  `json:"amount_minor" db:"amount_minor"`
	Currency    string `json:"currency" db:"currency"`

	// ReferenceID is the call session the entry belongs to.
	ReferenceID string `json:"reference_id" db:"reference_id"`

	// IdempotencyKey is unique per wallet.
	IdempotencyKey string `json:"idempotency_key" db:"idempotency_key"`

	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type TransactionType string

const (
	TransactionTypeCredit  TransactionType = "credit"
	TransactionTypeHold    TransactionType = "hold"
	TransactionTypeRelease TransactionType = "release"
	TransactionTypeDebit   TransactionType = "debit"
	TransactionTypeRefund  TransactionType = "refund"
)

// affectsHold reports whether t moves money into or out of a session hold.
func (t TransactionType) affectsHold() bool {
	return t == TransactionTypeHold || t == TransactionTypeRelease || t == TransactionTypeRefund
}

type Balance struct {
	UserID       string    `json:"user_id"`
	WalletID     string    `json:"wallet_id"`
	Currency     string    `json:"currency"`
	BalanceMinor int64     `json:"balance_minor"`
	UpdatedAt    time.Time `json:"updated_at"`
}
