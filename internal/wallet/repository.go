package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the following tables exist:
// - wallets (one per user)
// - wallet_ledger (immutable append-only)
// - wallet_balances (projection)
//
// with UNIQUE (wallet_id, idempotency_key) on wallet_ledger and an index on
// (wallet_id, reference_id).

func lockWalletByUser(ctx context.Context, tx *sql.Tx, userID string) (Wallet, error) {
	// Lock the wallet row to serialize concurrent money operations per user.
	const q = `
SELECT id, user_id, currency, status, created_at, updated_at
FROM wallets
WHERE user_id = $1
FOR UPDATE
`
	var w Wallet
	if err := tx.QueryRowContext(ctx, q, userID).Scan(
		&w.ID,
		&w.UserID,
		&w.Currency,
		&w.Status,
		&w.CreatedAt,
		&w.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	return w, nil
}

func getBalanceTx(ctx context.Context, tx *sql.Tx, walletID string) (Balance, error) {
	const q = `
SELECT user_id, wallet_id, currency, balance_minor, updated_at
FROM wallet_balances
WHERE wallet_id = $1
`
	var b Balance
	if err := tx.QueryRowContext(ctx, q, walletID).Scan(
		&b.UserID,
		&b.WalletID,
		&b.Currency,
		&b.BalanceMinor,
		&b.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, ErrNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func findByIdempotency(ctx context.Context, tx *sql.Tx, walletID, key string) (Transaction, bool, error) {
	const q = `
SELECT id, user_id, wallet_id, type, amount_minor, currency, reference_id, idempotency_key, metadata, created_at
FROM wallet_ledger
WHERE wallet_id = $1 AND idempotency_key = $2
LIMIT 1
`
	var e Transaction
	err := tx.QueryRowContext(ctx, q, walletID, key).Scan(
		&e.ID,
		&e.UserID,
		&e.WalletID,
		&e.Type,
		&e.AmountMinor,
		&e.Currency,
		&e.ReferenceID,
		&e.IdempotencyKey,
		&e.Metadata,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transaction{}, false, nil
		}
		return Transaction{}, false, err
	}
	return e, true, nil
}

// outstandingHold is what the session still holds: holds are negative,
// releases and refunds positive.
func outstandingHold(ctx context.Context, tx *sql.Tx, walletID, sessionID string) (int64, error) {
	const q = `
SELECT COALESCE(-SUM(amount_minor), 0)
FROM wallet_ledger
WHERE wallet_id = $1 AND reference_id = $2 AND type IN ('hold', 'release', 'refund')
`
	var hold int64
	if err := tx.QueryRowContext(ctx, q, walletID, sessionID).Scan(&hold); err != nil {
		return 0, err
	}
	return hold, nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e Transaction) error {
	const q = `
INSERT INTO wallet_ledger (
  id, user_id, wallet_id, type, amount_minor, currency, reference_id, idempotency_key, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := tx.ExecContext(ctx, q,
		e.ID,
		e.UserID,
		e.WalletID,
		e.Type,
		e.AmountMinor,
		e.Currency,
		e.ReferenceID,
		e.IdempotencyKey,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}

func applyBalanceDelta(ctx context.Context, tx *sql.Tx, userID, walletID, currency string, deltaMinor int64, now time.Time) (Balance, error) {
	const q = `
INSERT INTO wallet_balances (user_id, wallet_id, currency, balance_minor, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (wallet_id)
DO UPDATE SET balance_minor = wallet_balances.balance_minor + EXCLUDED.balance_minor,
              updated_at = EXCLUDED.updated_at
RETURNING user_id, wallet_id, currency, balance_minor, updated_at
`
	var b Balance
	if err := tx.QueryRowContext(ctx, q, userID, walletID, currency, deltaMinor, now).Scan(
		&b.UserID,
		&b.WalletID,
		&b.Currency,
		&b.BalanceMinor,
		&b.UpdatedAt,
	); err != nil {
		return Balance{}, err
	}
	return b, nil
}
