package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
)

// Money movement itself needs Postgres (SELECT ... FOR UPDATE); these cover
// what can be checked without a DB.

func TestPostgresLedger_RejectsInvalidArgs(t *testing.T) {
	l := NewPostgresLedger((*sql.DB)(nil))
	ctx := context.Background()

	if _, err := l.Reserve(ctx, ReserveRequest{SessionID: "s", AmountMinor: 1, Currency: "INR", IdempotencyKey: "k"}); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := l.Reserve(ctx, ReserveRequest{UserID: "u", SessionID: "s", AmountMinor: 0, Currency: "INR", IdempotencyKey: "k"}); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := l.Debit(ctx, SettleRequest{UserID: "u", SessionID: "s", AmountMinor: 0, Currency: "INR", IdempotencyKey: "k"}); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := l.Release(ctx, SettleRequest{UserID: "u", SessionID: "s", Currency: "INR"}); err != ErrInvalidArgument {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	if err := classify(ErrInsufficientFunds); err != ErrInsufficientFunds {
		t.Fatalf("domain errors must pass through, got %v", err)
	}
	if err := classify(fmt.Errorf("begin tx: %w", sql.ErrConnDone)); !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}
	if err := classify(errors.New("syntax error")); errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("permanent errors must not be retried")
	}
}
