package session

import (
	"errors"
	"testing"
)

func TestStatus_TerminalStatesHaveNoTransitions(t *testing.T) {
	for _, s := range []Status{StatusEnded, StatusDeclined, StatusExpired, StatusCancelled, StatusFailed} {
		if !s.IsTerminal() {
			t.Fatalf("expected %s terminal", s)
		}
		for next := range validTransitions {
			if s.CanTransitionTo(next) {
				t.Fatalf("terminal %s must not transition to %s", s, next)
			}
		}
	}
	if StatusEnding.IsTerminal() {
		t.Fatalf("ending is not terminal; settlement is still in flight")
	}
}

func TestStatus_EveryTransitionTargetIsKnown(t *testing.T) {
	for from, targets := range validTransitions {
		for _, to := range targets {
			if !to.Valid() {
				t.Fatalf("%s -> %s targets an unknown status", from, to)
			}
		}
	}
}

func TestStatus_PreConnectNeverReachesEnding(t *testing.T) {
	for _, s := range PreConnect {
		if !s.IsPreConnect() {
			t.Fatalf("%s should be pre-connect", s)
		}
		if s.CanTransitionTo(StatusEnding) {
			t.Fatalf("%s must not reach ending without connecting", s)
		}
	}
}

func TestTransition_RejectsOutOfOrder(t *testing.T) {
	s := &CallSession{Status: StatusWaiting}
	err := s.Transition(StatusConnected)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if s.Status != StatusWaiting {
		t.Fatalf("status must be unchanged, got %s", s.Status)
	}
}

func TestCompareAndSwapStatus(t *testing.T) {
	s := &CallSession{Status: StatusWaiting}
	if !s.CompareAndSwapStatus(StatusCancelled, StatusWaiting, StatusConnecting) {
		t.Fatalf("expected swap")
	}
	if s.CompareAndSwapStatus(StatusExpired, StatusWaiting) {
		t.Fatalf("second terminal swap must lose")
	}
	if s.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", s.Status)
	}
}

func TestSetBillingTransaction_Once(t *testing.T) {
	s := &CallSession{}
	if !s.SetBillingTransaction("tx-1") {
		t.Fatalf("expected first set to win")
	}
	if s.SetBillingTransaction("tx-2") {
		t.Fatalf("expected second set to lose")
	}
	if s.BillingTransactionID != "tx-1" {
		t.Fatalf("expected tx-1 kept, got %s", s.BillingTransactionID)
	}
}

func TestIdempotencyKeys(t *testing.T) {
	if got := SettlementKey("s1", OpDebit, ReasonUserEnded); got != "s1:debit:user_ended" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := ExtensionReservationKey("s1", 2); got != "s1:reserve:ext-2" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := AbandonedHoldKey("s1"); got != "s1:release:abandoned" {
		t.Fatalf("unexpected key %q", got)
	}
}
