package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/suman7063/ifindLife-sub000/internal/session"
	"github.com/suman7063/ifindLife-sub000/internal/sessionlog"
	"github.com/suman7063/ifindLife-sub000/internal/wallet"
	"github.com/suman7063/ifindLife-sub000/pkg/utils"
)

// newBackOff returns the ledger retry policy. maxRetries == 0 retries until
// ctx is done.
func (o *Orchestrator) newBackOff(ctx context.Context, maxRetries uint64) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.cfg.RetryInitial
	eb.MaxInterval = o.cfg.RetryMax
	eb.MaxElapsedTime = 0
	eb.Reset()

	var b backoff.BackOff = eb
	if maxRetries > 0 {
		b = backoff.WithMaxRetries(b, maxRetries)
	}
	return backoff.WithContext(b, ctx)
}

// retryable keeps only ErrLedgerUnavailable in the retry loop.
func retryable(err error) error {
	if err == nil || errors.Is(err, wallet.ErrLedgerUnavailable) {
		return err
	}
	return backoff.Permanent(err)
}

// reserve places a hold with a bounded number of retries; somebody is
// waiting on the answer.
func (o *Orchestrator) reserve(ctx context.Context, req wallet.ReserveRequest) (wallet.Transaction, error) {
	var tx wallet.Transaction
	op := func() error {
		cctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		defer cancel()
		var err error
		tx, err = o.deps.Ledger.Reserve(cctx, req)
		return retryable(err)
	}
	notify := func(err error, next time.Duration) {
		utils.LedgerRetries.WithLabelValues(session.OpReserve).Inc()
		o.log.Warn("ledger reserve retry", "session_id", req.SessionID, "key", req.IdempotencyKey, "error", err, "next", next)
	}
	if err := backoff.RetryNotify(op, o.newBackOff(ctx, o.cfg.ReserveRetries), notify); err != nil {
		return wallet.Transaction{}, err
	}
	return tx, nil
}

// abandonHold releases the initial hold of a session the loop never took
// over. The ledger may have posted the hold even though the reserve call
// reported a failure, so the release is sent whenever the outcome is unknown.
func (o *Orchestrator) abandonHold(ctx context.Context, s *session.CallSession) {
	ctx = context.WithoutCancel(ctx)
	req := wallet.SettleRequest{
		UserID:         s.CallerID,
		SessionID:      s.ID,
		Currency:       s.Currency,
		IdempotencyKey: session.AbandonedHoldKey(s.ID),
		Reason:         "abandoned",
	}
	op := func() error {
		cctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		defer cancel()
		_, err := o.deps.Ledger.Release(cctx, req)
		if errors.Is(err, wallet.ErrNoOpenReservation) {
			return nil
		}
		return retryable(err)
	}
	notify := func(err error, next time.Duration) {
		utils.LedgerRetries.WithLabelValues(session.OpRelease).Inc()
		o.log.Warn("abandoned hold release retry", "session_id", s.ID, "error", err, "next", next)
	}
	if err := backoff.RetryNotify(op, o.newBackOff(ctx, o.cfg.ReserveRetries), notify); err != nil {
		o.log.Error("abandoned hold left open", "session_id", s.ID, "key", req.IdempotencyKey, "error", err)
		return
	}
	o.log.Info("abandoned hold released", "session_id", s.ID)
}

// settlement picks the single ledger operation that closes a session.
func settlement(s *session.CallSession) (string, sessionlog.SettlementKind, int64) {
	switch {
	case s.TerminalReason == session.ReasonExpertNoShow:
		return session.OpRefund, sessionlog.SettlementRefund, s.ReservedAmountMinor
	case s.Status == session.StatusEnding && s.AccruedCostMinor > 0:
		return session.OpDebit, sessionlog.SettlementDebit, s.AccruedCostMinor
	default:
		return session.OpRelease, sessionlog.SettlementRelease, 0
	}
}

// beginSettlement starts the one settlement of a session. It waits for an
// in-flight extension so the extension's hold is covered too.
func (o *Orchestrator) beginSettlement(rt *runtime) {
	if rt.settling {
		return
	}
	if rt.extending {
		rt.settleQueued = true
		return
	}
	rt.settling = true

	op, kind, amount := settlement(rt.s)
	req := wallet.SettleRequest{
		UserID:         rt.s.CallerID,
		SessionID:      rt.s.ID,
		AmountMinor:    amount,
		Currency:       rt.s.Currency,
		IdempotencyKey: session.SettlementKey(rt.s.ID, op, rt.s.TerminalReason),
		Reason:         string(rt.s.TerminalReason),
	}
	log := rt.log
	log.Info("settlement started", "operation", op, "amount_minor", amount, "key", req.IdempotencyKey)

	o.async(func(ctx context.Context) {
		var tx wallet.Transaction
		call := func() error {
			cctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
			defer cancel()
			var err error
			switch op {
			case session.OpRefund:
				tx, err = o.deps.Ledger.Refund(cctx, req)
			case session.OpDebit:
				tx, err = o.deps.Ledger.Debit(cctx, req)
			default:
				tx, err = o.deps.Ledger.Release(cctx, req)
			}
			return retryable(err)
		}
		notify := func(err error, next time.Duration) {
			utils.LedgerRetries.WithLabelValues(op).Inc()
			log.Warn("settlement retry", "operation", op, "error", err, "next", next)
		}
		if err := backoff.RetryNotify(call, o.newBackOff(ctx, 0), notify); err != nil {
			o.post(ctx, evSettleFailed{sessionID: req.SessionID, err: err})
			return
		}
		o.post(ctx, evSettled{sessionID: req.SessionID, kind: kind, tx: tx})
	})
}

func (o *Orchestrator) onSettled(e evSettled) {
	rt, ok := o.sessions[e.sessionID]
	if !ok {
		return
	}
	if !rt.s.SetBillingTransaction(e.tx.ID) {
		rt.log.Warn("billing transaction already set", "existing", rt.s.BillingTransactionID, "incoming", e.tx.ID)
	}
	if rt.s.CompareAndSwapStatus(session.StatusEnded, session.StatusEnding) {
		o.notifyStatus(rt)
	}
	utils.Settlements.WithLabelValues(string(e.kind)).Inc()
	rt.log.Info("session settled",
		"kind", e.kind,
		"billing_transaction_id", rt.s.BillingTransactionID,
		"final_cost_minor", rt.s.AccruedCostMinor,
		"status", rt.s.Status,
	)
	o.appendLog(rt, e.kind)
}

func (o *Orchestrator) onSettleFailed(e evSettleFailed) {
	rt, ok := o.sessions[e.sessionID]
	if !ok {
		return
	}
	// Only permanent ledger errors land here; the hold stays open and the
	// session is kept for an operator.
	rt.log.Error("settlement failed", "error", e.err, "status", rt.s.Status, "reason", rt.s.TerminalReason)
}

// appendLog archives the final state. The session leaves the loop only once
// the record is stored.
func (o *Orchestrator) appendLog(rt *runtime, kind sessionlog.SettlementKind) {
	cost := int64(0)
	if kind == sessionlog.SettlementDebit {
		cost = rt.s.AccruedCostMinor
	}
	rec := sessionlog.Record{
		SessionID:            rt.s.ID,
		CallerID:             rt.s.CallerID,
		CalleeID:             rt.s.CalleeID,
		Status:               rt.s.Status,
		TerminalReason:       rt.s.TerminalReason,
		FinalCostMinor:       cost,
		Currency:             rt.s.Currency,
		SettlementKind:       kind,
		BillingTransactionID: rt.s.BillingTransactionID,
		Session:              rt.s.Snapshot(),
		RecordedAt:           o.now(),
	}
	log := rt.log

	o.async(func(ctx context.Context) {
		call := func() error {
			cctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
			defer cancel()
			err := o.deps.Log.Append(cctx, rec)
			if errors.Is(err, sessionlog.ErrInvalidRecord) {
				return backoff.Permanent(err)
			}
			return err
		}
		notify := func(err error, next time.Duration) {
			log.Warn("session log append retry", "error", err, "next", next)
		}
		if err := backoff.RetryNotify(call, o.newBackOff(ctx, 0), notify); err != nil {
			log.Error("session log append failed", "error", err)
			return
		}
		o.post(ctx, evLogged{sessionID: rec.SessionID})
	})
}

func (o *Orchestrator) onLogged(e evLogged) {
	rt, ok := o.sessions[e.sessionID]
	if !ok {
		return
	}
	delete(o.sessions, e.sessionID)
	utils.ActiveSessions.Dec()
	rt.log.Info("session archived")

	if o.deps.Limiter != nil {
		callerID := rt.s.CallerID
		o.async(func(ctx context.Context) {
			if err := o.deps.Limiter.Release(ctx, callerID); err != nil {
				rt.log.Warn("concurrency slot release failed", "error", err)
			}
		})
	}
}
