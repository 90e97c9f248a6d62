package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/suman7063/ifindLife-sub000/pkg/utils"

	"github.com/google/uuid"
)

// PostgresLedger implements Ledger on the wallet tables.
//
// Money invariants:
// - No balance updates without a ledger entry
// - Ledger is append-only (immutable)
// - Every operation runs in one DB transaction under the wallet row lock
type PostgresLedger struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db, clock: time.Now}
}

func (l *PostgresLedger) Reserve(ctx context.Context, req ReserveRequest) (Transaction, error) {
	if err := validateReserve(req); err != nil {
		return Transaction{}, err
	}
	now := l.clock().UTC()

	var out Transaction
	err := utils.WithTx(ctx, l.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		w, err := lockWalletByUser(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if w.Currency != req.Currency || w.Status != WalletStatusActive {
			return ErrInvalidArgument
		}

		if existing, ok, err := findByIdempotency(ctx, tx, w.ID, req.IdempotencyKey); err != nil {
			return err
		} else if ok {
			out = existing
			return nil
		}

		b, err := getBalanceTx(ctx, tx, w.ID)
		if errors.Is(err, ErrNotFound) {
			return ErrInsufficientFunds
		}
		if err != nil {
			return err
		}
		if b.BalanceMinor < req.AmountMinor {
			return ErrInsufficientFunds
		}

		entry := Transaction{
			ID:             uuid.NewString(),
			UserID:         req.UserID,
			WalletID:       w.ID,
			Type:           TransactionTypeHold,
			AmountMinor:    -req.AmountMinor,
			Currency:       req.Currency,
			ReferenceID:    req.SessionID,
			IdempotencyKey: req.IdempotencyKey,
			CreatedAt:      now,
		}
		if err := insertEntry(ctx, tx, entry); err != nil {
			return err
		}
		if _, err := applyBalanceDelta(ctx, tx, req.UserID, w.ID, req.Currency, -req.AmountMinor, now); err != nil {
			return err
		}
		out = entry
		return nil
	})
	return out, classify(err)
}

func (l *PostgresLedger) Release(ctx context.Context, req SettleRequest) (Transaction, error) {
	if err := validateSettle(req, false); err != nil {
		return Transaction{}, err
	}
	return l.settle(ctx, TransactionTypeRelease, req)
}

func (l *PostgresLedger) Debit(ctx context.Context, req SettleRequest) (Transaction, error) {
	if err := validateSettle(req, true); err != nil {
		return Transaction{}, err
	}
	return l.settle(ctx, TransactionTypeDebit, req)
}

func (l *PostgresLedger) Refund(ctx context.Context, req SettleRequest) (Transaction, error) {
	if err := validateSettle(req, true); err != nil {
		return Transaction{}, err
	}
	return l.settle(ctx, TransactionTypeRefund, req)
}

func (l *PostgresLedger) settle(ctx context.Context, typ TransactionType, req SettleRequest) (Transaction, error) {
	now := l.clock().UTC()

	var out Transaction
	err := utils.WithTx(ctx, l.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		w, err := lockWalletByUser(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if w.Currency != req.Currency {
			return ErrInvalidArgument
		}

		if existing, ok, err := findByIdempotency(ctx, tx, w.ID, req.IdempotencyKey); err != nil {
			return err
		} else if ok {
			out = existing
			return nil
		}

		hold, err := outstandingHold(ctx, tx, w.ID, req.SessionID)
		if err != nil {
			return err
		}
		entries, err := settlementEntries(typ, req, hold)
		if err != nil {
			return err
		}
		delta := sumAmounts(entries)

		b, err := getBalanceTx(ctx, tx, w.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if b.BalanceMinor+delta < 0 {
			return ErrInsufficientFunds
		}

		for i := range entries {
			entries[i].ID = uuid.NewString()
			entries[i].UserID = req.UserID
			entries[i].WalletID = w.ID
			entries[i].Currency = req.Currency
			entries[i].ReferenceID = req.SessionID
			entries[i].Metadata = reasonMetadata(req.Reason)
			entries[i].CreatedAt = now
			if err := insertEntry(ctx, tx, entries[i]); err != nil {
				return err
			}
		}
		if _, err := applyBalanceDelta(ctx, tx, req.UserID, w.ID, req.Currency, delta, now); err != nil {
			return err
		}
		out = entries[0]
		return nil
	})
	return out, classify(err)
}

// classify maps driver-level transient failures to ErrLedgerUnavailable and
// leaves domain errors untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrNoOpenReservation):
		return err
	}
	if utils.IsTransient(err) {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return err
}

func reasonMetadata(reason string) string {
	if reason == "" {
		return ""
	}
	return fmt.Sprintf(`{"reason":%q}`, reason)
}
