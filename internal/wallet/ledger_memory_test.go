package wallet

import (
	"context"
	"errors"
	"testing"
)

func newFunded(t *testing.T, amount int64) *MemoryLedger {
	t.Helper()
	l := NewMemoryLedger()
	l.Deposit("u1", "INR", amount)
	return l
}

func reserve(t *testing.T, l *MemoryLedger, session, key string, amount int64) Transaction {
	t.Helper()
	tx, err := l.Reserve(context.Background(), ReserveRequest{UserID: "u1", SessionID: session, AmountMinor: amount, Currency: "INR", IdempotencyKey: key})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	return tx
}

func TestMemoryLedger_ReserveIsIdempotent(t *testing.T) {
	l := newFunded(t, 10000)

	a := reserve(t, l, "s1", "s1:reserve:initial", 4500)
	b := reserve(t, l, "s1", "s1:reserve:initial", 4500)

	if a.ID != b.ID {
		t.Fatalf("expected replayed key to return the same entry")
	}
	if got := l.Balance("u1"); got != 5500 {
		t.Fatalf("expected balance 5500, got %d", got)
	}
}

func TestMemoryLedger_ReserveInsufficientFunds(t *testing.T) {
	l := newFunded(t, 100)
	_, err := l.Reserve(context.Background(), ReserveRequest{UserID: "u1", SessionID: "s1", AmountMinor: 4500, Currency: "INR", IdempotencyKey: "k"})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := l.Balance("u1"); got != 100 {
		t.Fatalf("balance must be untouched, got %d", got)
	}
}

func TestMemoryLedger_DebitClosesAllHolds(t *testing.T) {
	l := newFunded(t, 20000)
	reserve(t, l, "s1", "s1:reserve:initial", 4500)
	reserve(t, l, "s1", "s1:reserve:ext-1", 3000)

	tx, err := l.Debit(context.Background(), SettleRequest{UserID: "u1", SessionID: "s1", AmountMinor: 600, Currency: "INR", IdempotencyKey: "s1:debit:user_ended"})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if tx.Type != TransactionTypeDebit || tx.AmountMinor != -600 {
		t.Fatalf("unexpected primary entry: %+v", tx)
	}
	if got := l.Balance("u1"); got != 19400 {
		t.Fatalf("expected 19400, got %d", got)
	}

	// Replays do not move money again.
	again, err := l.Debit(context.Background(), SettleRequest{UserID: "u1", SessionID: "s1", AmountMinor: 600, Currency: "INR", IdempotencyKey: "s1:debit:user_ended"})
	if err != nil || again.ID != tx.ID {
		t.Fatalf("expected idempotent replay, got %+v, %v", again, err)
	}
	if got := l.Balance("u1"); got != 19400 {
		t.Fatalf("expected 19400 after replay, got %d", got)
	}
}

func TestMemoryLedger_RefundFullReservation(t *testing.T) {
	l := newFunded(t, 10000)
	reserve(t, l, "s1", "s1:reserve:initial", 4500)

	tx, err := l.Refund(context.Background(), SettleRequest{UserID: "u1", SessionID: "s1", AmountMinor: 4500, Currency: "INR", IdempotencyKey: "s1:refund:expert_no_show"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if tx.Type != TransactionTypeRefund || tx.AmountMinor != 4500 {
		t.Fatalf("unexpected entry: %+v", tx)
	}
	if got := l.Balance("u1"); got != 10000 {
		t.Fatalf("expected full balance back, got %d", got)
	}
	for _, e := range l.Entries("s1") {
		if e.Type == TransactionTypeDebit {
			t.Fatalf("no-show must never debit")
		}
	}
}

func TestMemoryLedger_RefundMoreThanHeldRejected(t *testing.T) {
	l := newFunded(t, 10000)
	reserve(t, l, "s1", "k1", 100)
	_, err := l.Refund(context.Background(), SettleRequest{UserID: "u1", SessionID: "s1", AmountMinor: 200, Currency: "INR", IdempotencyKey: "k2"})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestMemoryLedger_ReleaseWithoutHold(t *testing.T) {
	l := newFunded(t, 10000)
	_, err := l.Release(context.Background(), SettleRequest{UserID: "u1", SessionID: "nope", Currency: "INR", IdempotencyKey: "k"})
	if !errors.Is(err, ErrNoOpenReservation) {
		t.Fatalf("expected ErrNoOpenReservation, got %v", err)
	}
}

func TestMemoryLedger_FailNext(t *testing.T) {
	l := newFunded(t, 10000)
	reserve(t, l, "s1", "k1", 100)
	l.FailNext(OpRelease, 2, ErrLedgerUnavailable)

	req := SettleRequest{UserID: "u1", SessionID: "s1", Currency: "INR", IdempotencyKey: "s1:release:declined"}
	for i := 0; i < 2; i++ {
		if _, err := l.Release(context.Background(), req); !errors.Is(err, ErrLedgerUnavailable) {
			t.Fatalf("attempt %d: expected ErrLedgerUnavailable, got %v", i, err)
		}
	}
	if _, err := l.Release(context.Background(), req); err != nil {
		t.Fatalf("third attempt: %v", err)
	}
	if got := l.Balance("u1"); got != 10000 {
		t.Fatalf("expected 10000, got %d", got)
	}
	if n := len(l.Calls()); n != 4 {
		t.Fatalf("expected 4 recorded calls, got %d", n)
	}
}

func TestSettlementEntries_DebitWithoutHold(t *testing.T) {
	entries, err := settlementEntries(TransactionTypeDebit, SettleRequest{AmountMinor: 50, IdempotencyKey: "k"}, 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(entries) != 1 || sumAmounts(entries) != -50 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
