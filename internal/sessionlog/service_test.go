package sessionlog

import (
	"context"
	"testing"
	"time"

	"github.com/suman7063/ifindLife-sub000/internal/session"
)

func validRecord() Record {
	return Record{
		SessionID:            "s1",
		CallerID:             "u1",
		CalleeID:             "e1",
		Status:               session.StatusCancelled,
		TerminalReason:       session.ReasonExpertNoShow,
		SettlementKind:       SettlementRefund,
		BillingTransactionID: "tx1",
	}
}

func TestService_Append_Validates(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	bad := validRecord()
	bad.BillingTransactionID = ""
	if err := svc.Append(context.Background(), bad); err != ErrInvalidRecord {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}

	bad = validRecord()
	bad.Status = session.StatusConnected
	if err := svc.Append(context.Background(), bad); err != ErrInvalidRecord {
		t.Fatalf("expected ErrInvalidRecord for live status, got %v", err)
	}
}

func TestService_Append_SetsRecordedAtAndIsIdempotent(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.clock = func() time.Time { return fixed }

	if err := svc.Append(context.Background(), validRecord()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	second := validRecord()
	second.FinalCostMinor = 999
	if err := svc.Append(context.Background(), second); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	recs := repo.Records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if !recs[0].RecordedAt.Equal(fixed) {
		t.Fatalf("expected recorded_at to be set")
	}
	if recs[0].FinalCostMinor != 0 {
		t.Fatalf("first record must win")
	}
}

func TestService_Get(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if _, err := svc.Get(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = svc.Append(context.Background(), validRecord())
	rec, err := svc.Get(context.Background(), "s1")
	if err != nil || rec.TerminalReason != session.ReasonExpertNoShow {
		t.Fatalf("unexpected %+v, %v", rec, err)
	}
}
