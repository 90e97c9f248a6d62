package wallet

import (
	"context"
	"errors"
)

// Ledger is the client side of the shared wallet ledger.
//
// Every call carries an idempotency key. Replaying a key returns the entry
// posted the first time and never moves money twice.
type Ledger interface {
	// Reserve places a hold of AmountMinor against the caller's balance.
	Reserve(ctx context.Context, req ReserveRequest) (Transaction, error)
	// Release returns every open hold of the session to the balance.
	Release(ctx context.Context, req SettleRequest) (Transaction, error)
	// Debit charges AmountMinor and closes every open hold of the session.
	Debit(ctx context.Context, req SettleRequest) (Transaction, error)
	// Refund returns AmountMinor of the session's holds as a refund and
	// closes the rest.
	Refund(ctx context.Context, req SettleRequest) (Transaction, error)
}

type ReserveRequest struct {
	UserID         string
	SessionID      string
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
}

// SettleRequest closes a session's holds. AmountMinor is ignored by Release.
type SettleRequest struct {
	UserID         string
	SessionID      string
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
	Reason         string
}

var (
	ErrNotFound          = errors.New("wallet: not found")
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
	ErrInvalidArgument   = errors.New("wallet: invalid argument")
	// ErrLedgerUnavailable marks transient failures; callers may retry with
	// the same idempotency key.
	ErrLedgerUnavailable = errors.New("wallet: ledger unavailable")
	ErrNoOpenReservation = errors.New("wallet: no open reservation for session")
)

// companionKey is the key of the release entry posted next to a debit or
// refund so the session's remaining hold is closed in the same transaction.
func companionKey(key string) string {
	return key + "#release"
}

func validateReserve(req ReserveRequest) error {
	if req.UserID == "" || req.SessionID == "" {
		return ErrInvalidArgument
	}
	if req.Currency == "" || req.IdempotencyKey == "" {
		return ErrInvalidArgument
	}
	if req.AmountMinor <= 0 {
		return ErrInvalidArgument
	}
	return nil
}

func validateSettle(req SettleRequest, needAmount bool) error {
	if req.UserID == "" || req.SessionID == "" {
		return ErrInvalidArgument
	}
	if req.Currency == "" || req.IdempotencyKey == "" {
		return ErrInvalidArgument
	}
	if needAmount && req.AmountMinor <= 0 {
		return ErrInvalidArgument
	}
	return nil
}

// settlementEntries computes the entries that settle a session with hold
// outstanding. The first entry is the primary one and carries the request key.
func settlementEntries(typ TransactionType, req SettleRequest, hold int64) ([]Transaction, error) {
	switch typ {
	case TransactionTypeRelease:
		if hold <= 0 {
			return nil, ErrNoOpenReservation
		}
		return []Transaction{{Type: TransactionTypeRelease, AmountMinor: hold, IdempotencyKey: req.IdempotencyKey}}, nil

	case TransactionTypeDebit:
		out := []Transaction{{Type: TransactionTypeDebit, AmountMinor: -req.AmountMinor, IdempotencyKey: req.IdempotencyKey}}
		if hold > 0 {
			out = append(out, Transaction{Type: TransactionTypeRelease, AmountMinor: hold, IdempotencyKey: companionKey(req.IdempotencyKey)})
		}
		return out, nil

	case TransactionTypeRefund:
		if hold <= 0 {
			return nil, ErrNoOpenReservation
		}
		if req.AmountMinor > hold {
			return nil, ErrInvalidArgument
		}
		out := []Transaction{{Type: TransactionTypeRefund, AmountMinor: req.AmountMinor, IdempotencyKey: req.IdempotencyKey}}
		if rest := hold - req.AmountMinor; rest > 0 {
			out = append(out, Transaction{Type: TransactionTypeRelease, AmountMinor: rest, IdempotencyKey: companionKey(req.IdempotencyKey)})
		}
		return out, nil
	}
	return nil, ErrInvalidArgument
}

func sumAmounts(entries []Transaction) int64 {
	var total int64
	for _, e := range entries {
		total += e.AmountMinor
	}
	return total
}
