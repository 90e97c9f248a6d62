package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suman7063/ifindLife-sub000/internal/billing"
	"github.com/suman7063/ifindLife-sub000/internal/noshow"
	"github.com/suman7063/ifindLife-sub000/internal/session"
	"github.com/suman7063/ifindLife-sub000/internal/signaling"
	"github.com/suman7063/ifindLife-sub000/internal/wallet"
	"github.com/suman7063/ifindLife-sub000/pkg/logger"
	"github.com/suman7063/ifindLife-sub000/pkg/utils"
)

// Warning reasons sent to the caller.
const (
	warnNoShow         = "expert_no_show_warning"
	warnReservationEnd = "reservation_ending"
)

func (o *Orchestrator) handle(ev event) {
	switch e := ev.(type) {
	case cmdRegister:
		o.onRegister(e)
	case cmdGet:
		o.onGet(e)
	case cmdRequestID:
		o.onRequestID(e)
	case cmdCancel:
		o.onCancel(e)
	case cmdEnd:
		o.onEnd(e)
	case cmdExtend:
		o.onExtend(e)
	case cmdActive:
		e.reply <- len(o.sessions)

	case evSubscribed:
		o.onSubscribed(e)
	case evPublished:
		o.onPublished(e)
	case evStartFailed:
		o.onStartFailed(e)
	case evFrame:
		o.onFrame(e)

	case evJoined:
		o.onJoined(e)
	case evJoinFailed:
		o.onJoinFailed(e)
	case evMedia:
		o.onMedia(e)
	case evMediaClosed:
		o.onMediaClosed(e)
	case evJoinTimeout:
		o.onJoinTimeout(e)
	case evGraceExpired:
		o.onGraceExpired(e)

	case evTick:
		o.onTick(e)
	case evNoShow:
		o.onNoShow(e)
	case evExtendResult:
		o.onExtendResult(e)

	case evSettled:
		o.onSettled(e)
	case evSettleFailed:
		o.onSettleFailed(e)
	case evLogged:
		o.onLogged(e)

	default:
		o.log.Warn("orchestrator: unknown event", "type", fmt.Sprintf("%T", ev))
	}
}

/* ===================== COMMANDS ===================== */

func (o *Orchestrator) onRegister(e cmdRegister) {
	if _, dup := o.sessions[e.s.ID]; dup {
		e.reply <- result{err: session.ErrInvalidArgument}
		return
	}
	rt := &runtime{
		s:      e.s,
		log:    logger.ForSession(o.log, e.s.ID),
		joined: map[string]bool{},
	}
	o.sessions[e.s.ID] = rt
	utils.ActiveSessions.Inc()

	rt.log.Info("session created",
		"caller_id", rt.s.CallerID,
		"callee_id", rt.s.CalleeID,
		"call_type", rt.s.CallType,
		"scheduled", rt.s.ScheduledStart != nil,
		"reserved_minor", rt.s.ReservedAmountMinor,
	)
	e.reply <- result{view: rt.view(rt.s.CallerID)}
}

// lookup resolves a live session for userID ("" skips the participant check).
func (o *Orchestrator) lookup(sessionID, userID string) (*runtime, error) {
	rt, ok := o.sessions[sessionID]
	if !ok {
		return nil, session.ErrNotFound
	}
	if userID != "" && !rt.s.IsParticipant(userID) {
		return nil, session.ErrNotParticipant
	}
	return rt, nil
}

func (o *Orchestrator) onGet(e cmdGet) {
	rt, err := o.lookup(e.sessionID, e.userID)
	if err != nil {
		e.reply <- result{err: err}
		return
	}
	e.reply <- result{view: rt.view(e.userID)}
}

func (o *Orchestrator) onRequestID(e cmdRequestID) {
	rt, err := o.lookup(e.sessionID, e.userID)
	if err != nil {
		e.reply <- requestIDResult{err: err}
		return
	}
	if rt.s.PartyOf(e.userID) != session.PartyCallee {
		e.reply <- requestIDResult{err: session.ErrNotParticipant}
		return
	}
	if rt.s.Status != session.StatusWaiting || rt.s.RequestID == "" {
		e.reply <- requestIDResult{err: fmt.Errorf("%w: session is %s", session.ErrInvalidTransition, rt.s.Status)}
		return
	}
	e.reply <- requestIDResult{requestID: rt.s.RequestID}
}

func (o *Orchestrator) onCancel(e cmdCancel) {
	rt, err := o.lookup(e.sessionID, e.userID)
	if err != nil {
		e.reply <- result{err: err}
		return
	}
	if rt.s.PartyOf(e.userID) != session.PartyCaller {
		e.reply <- result{err: session.ErrNotParticipant}
		return
	}
	switch {
	case rt.s.Status.IsTerminal(), rt.s.Status == session.StatusEnding:
	case rt.s.Status == session.StatusConnected:
		e.reply <- result{err: fmt.Errorf("%w: connected sessions are ended, not cancelled", session.ErrInvalidTransition)}
		return
	default:
		o.terminate(rt, session.StatusCancelled, session.ReasonUserCancelled, session.PartyCaller)
	}
	e.reply <- result{view: rt.view(e.userID)}
}

func (o *Orchestrator) onEnd(e cmdEnd) {
	rt, err := o.lookup(e.sessionID, e.userID)
	if err != nil {
		e.reply <- result{err: err}
		return
	}
	switch {
	case rt.s.Status == session.StatusConnected:
		o.endConnected(rt, session.ReasonUserEnded, rt.s.PartyOf(e.userID), o.now())
	case rt.s.Status == session.StatusEnding, rt.s.Status.IsTerminal():
	default:
		e.reply <- result{err: fmt.Errorf("%w: session is %s", session.ErrInvalidTransition, rt.s.Status)}
		return
	}
	e.reply <- result{view: rt.view(e.userID)}
}

func (o *Orchestrator) onExtend(e cmdExtend) {
	rt, err := o.lookup(e.sessionID, e.userID)
	if err != nil {
		e.reply <- result{err: err}
		return
	}
	if rt.s.PartyOf(e.userID) != session.PartyCaller {
		e.reply <- result{err: session.ErrNotParticipant}
		return
	}
	if rt.s.Status != session.StatusConnected {
		e.reply <- result{err: fmt.Errorf("%w: session is %s", session.ErrInvalidTransition, rt.s.Status)}
		return
	}
	if rt.extending {
		e.reply <- result{err: ErrExtensionInFlight}
		return
	}

	rt.extending = true
	n := rt.s.ExtensionCount + 1
	seconds := o.cfg.ExtensionSeconds
	amount := billing.ReservationFor(seconds, rt.s.RatePerMinuteMinor)
	req := wallet.ReserveRequest{
		UserID:         rt.s.CallerID,
		SessionID:      rt.s.ID,
		AmountMinor:    amount,
		Currency:       rt.s.Currency,
		IdempotencyKey: session.ExtensionReservationKey(rt.s.ID, n),
	}
	id := rt.s.ID
	rt.log.Info("extension requested", "extension", n, "amount_minor", amount)

	o.async(func(ctx context.Context) {
		tx, err := o.reserve(ctx, req)
		o.post(ctx, evExtendResult{sessionID: id, n: n, seconds: seconds, amount: amount, tx: tx, err: err, reply: e.reply})
	})
}

/* ===================== SIGNALING ===================== */

func (o *Orchestrator) onSubscribed(e evSubscribed) {
	rt, ok := o.sessions[e.sessionID]
	if !ok || rt.s.Status.IsTerminal() || rt.s.Status == session.StatusEnding {
		o.async(func(context.Context) { e.unsubscribe() })
		return
	}
	rt.unsubscribe = e.unsubscribe
}

func (o *Orchestrator) onPublished(e evPublished) {
	rt, ok := o.sessions[e.sessionID]
	if !ok {
		o.withdrawRequest(e.sessionID, e.requestID)
		e.reply <- result{err: session.ErrNotFound}
		return
	}
	if rt.s.RequestID == "" {
		rt.s.RequestID = e.requestID
	}
	switch {
	case rt.s.Status == session.StatusRequested:
		o.markWaiting(rt)
	case rt.s.Status.IsTerminal():
		// Cancelled while the request was on its way out.
		o.withdrawRequest(rt.s.ID, e.requestID)
	}
	e.reply <- result{view: rt.view(rt.s.CallerID)}
}

func (o *Orchestrator) onStartFailed(e evStartFailed) {
	rt, ok := o.sessions[e.sessionID]
	if !ok {
		e.reply <- result{err: session.ErrNotFound}
		return
	}
	rt.log.Error("session failed before ringing", "error", e.err)
	o.terminate(rt, session.StatusFailed, e.reason, session.PartySystem)
	e.reply <- result{view: rt.view(rt.s.CallerID), err: ErrSignalingUnavailable}
}

func (o *Orchestrator) markWaiting(rt *runtime) {
	if !rt.s.CompareAndSwapStatus(session.StatusWaiting, session.StatusRequested) {
		return
	}
	if rt.s.ScheduledStart != nil {
		o.noshow.Watch(rt.s.ID, *rt.s.ScheduledStart)
	}
	rt.log.Info("session waiting", "request_id", rt.s.RequestID)
	o.notifyStatus(rt)
}

func (o *Orchestrator) onFrame(e evFrame) {
	m := e.msg
	switch m.Type {
	case signaling.TypeRequest, signaling.TypeWarning, signaling.TypeStatus:
		// Echoes of frames this process emitted.
		return
	}

	rt, ok := o.sessions[e.sessionID]
	if !ok {
		o.drop(m, "unknown_session")
		return
	}
	if rt.s.Status.IsTerminal() || rt.s.Status == session.StatusEnding {
		o.drop(m, "terminal_session")
		return
	}
	if rt.s.RequestID != "" && m.RequestID != rt.s.RequestID {
		o.drop(m, "stale_request")
		return
	}
	if rt.s.Status == session.StatusRequested && m.RequestID != "" {
		// The answer beat our own publish acknowledgement.
		rt.s.RequestID = m.RequestID
		o.markWaiting(rt)
	}

	switch m.Type {
	case signaling.TypeAccept:
		o.onAccepted(rt)
	case signaling.TypeDecline:
		o.terminate(rt, session.StatusDeclined, session.ReasonDeclined, session.PartyCallee)
	case signaling.TypeExpire:
		o.terminate(rt, session.StatusExpired, session.ReasonExpired, session.PartySystem)
	case signaling.TypeCancel:
		o.terminate(rt, session.StatusCancelled, session.ReasonUserCancelled, session.PartyCaller)
	default:
		o.drop(m, "unknown_type")
	}
}

func (o *Orchestrator) drop(m signaling.Message, cause string) {
	utils.SignalingDropped.WithLabelValues(string(m.Type), cause).Inc()
	o.log.Info("signaling frame dropped", "session_id", m.SessionID, "request_id", m.RequestID, "type", m.Type, "cause", cause)
}

/* ===================== TIMERS ===================== */

func (o *Orchestrator) onTick(e evTick) {
	rt, ok := o.sessions[e.sessionID]
	if !ok || rt.s.Status != session.StatusConnected || rt.meter == nil {
		return
	}
	o.accrue(rt, o.now())
}

// accrue refreshes the accrued cost and ends the session at its boundary.
func (o *Orchestrator) accrue(rt *runtime, now time.Time) {
	r := rt.meter.Read(now)
	if r.CostMinor > rt.s.AccruedCostMinor {
		rt.s.AccruedCostMinor = r.CostMinor
	}
	if !rt.lowWarned && r.RemainingSeconds > 0 && r.RemainingSeconds <= 60 {
		rt.lowWarned = true
		o.warn(rt, warnReservationEnd)
	}
	if !r.Exhausted() {
		return
	}
	if rt.extending {
		rt.exhausted = true
		return
	}
	o.endConnected(rt, session.ReasonReservationExhausted, session.PartySystem, rt.meter.Boundary())
}

func (o *Orchestrator) onNoShow(e evNoShow) {
	rt, ok := o.sessions[e.alert.SessionID]
	if !ok {
		return
	}
	if !rt.s.Status.IsPreConnect() {
		return
	}
	switch e.alert.Kind {
	case noshow.KindWarning:
		rt.log.Info("callee late", "scheduled_start", e.alert.ScheduledStart)
		o.warn(rt, warnNoShow)
	case noshow.KindHard:
		rt.log.Info("callee no-show", "scheduled_start", e.alert.ScheduledStart,
			"error", fmt.Errorf("%w after %s", session.ErrNoShowTimeout, o.cfg.NoShowHardAfter))
		o.terminate(rt, session.StatusCancelled, session.ReasonExpertNoShow, session.PartySystem)
	}
}

func (o *Orchestrator) onExtendResult(e evExtendResult) {
	rt, ok := o.sessions[e.sessionID]
	if !ok {
		e.reply <- result{err: session.ErrNotFound}
		return
	}
	rt.extending = false

	switch {
	case e.err == nil:
		rt.s.ExtensionCount = e.n
		rt.s.ReservedDurationSeconds += e.seconds
		rt.s.ReservedAmountMinor += e.amount
		if rt.meter != nil {
			rt.meter.Extend(e.seconds)
		}
		rt.lowWarned = false
		utils.Extensions.WithLabelValues("applied").Inc()
		rt.log.Info("extension applied", "extension", e.n, "reserved_seconds", rt.s.ReservedDurationSeconds)
	case errors.Is(e.err, wallet.ErrInsufficientFunds):
		utils.Extensions.WithLabelValues("insufficient_funds").Inc()
		rt.log.Info("extension rejected", "extension", e.n, "error", e.err)
	default:
		utils.Extensions.WithLabelValues("failed").Inc()
		rt.log.Warn("extension failed", "extension", e.n, "error", e.err)
	}

	switch {
	case rt.settleQueued:
		rt.settleQueued = false
		o.beginSettlement(rt)
	case rt.exhausted:
		rt.exhausted = false
		if rt.s.Status == session.StatusConnected {
			if e.err != nil {
				// The extra time was already being talked through when the
				// payment for it failed.
				o.endConnected(rt, session.ReasonPaymentFailed, session.PartySystem, rt.meter.Boundary())
			} else {
				o.accrue(rt, o.now())
			}
		}
	}
	e.reply <- result{view: rt.view(rt.s.CallerID), err: e.err}
}

/* ===================== TRANSITIONS ===================== */

// terminate ends a session that never connected. It is the single terminal
// entry point for pre-connect states: the status CAS decides the winner and
// every other trigger is a no-op.
func (o *Orchestrator) terminate(rt *runtime, status session.Status, reason session.TerminalReason, by session.Party) bool {
	prev := rt.s.Status
	if !rt.s.CompareAndSwapStatus(status, session.PreConnect...) {
		rt.log.Debug("terminal transition lost", "wanted", status, "reason", reason, "status", rt.s.Status)
		return false
	}
	now := o.now()
	rt.s.TerminalReason = reason
	rt.s.EndedBy = by
	rt.s.EndedAt = &now

	o.teardown(rt)
	if (prev == session.StatusRequested || prev == session.StatusWaiting) && rt.s.RequestID != "" &&
		reason != session.ReasonDeclined && reason != session.ReasonExpired {
		o.withdrawRequest(rt.s.ID, rt.s.RequestID)
	}

	utils.SessionTerminations.WithLabelValues(string(status), string(reason)).Inc()
	rt.log.Info("session terminated", "status", status, "reason", reason, "ended_by", by, "from", prev)
	o.notifyStatus(rt)
	o.beginSettlement(rt)
	return true
}

// endConnected moves a connected session to ending and freezes its cost at
// the given instant.
func (o *Orchestrator) endConnected(rt *runtime, reason session.TerminalReason, by session.Party, at time.Time) bool {
	if !rt.s.CompareAndSwapStatus(session.StatusEnding, session.StatusConnected) {
		return false
	}
	reading := rt.meter.Finalize(at)
	if reading.CostMinor > rt.s.AccruedCostMinor {
		rt.s.AccruedCostMinor = reading.CostMinor
	}
	rt.s.TerminalReason = reason
	rt.s.EndedBy = by
	rt.s.EndedAt = &at

	o.teardown(rt)
	utils.ConnectedSessions.Dec()
	utils.SessionTerminations.WithLabelValues(string(session.StatusEnded), string(reason)).Inc()
	rt.log.Info("session ending",
		"reason", reason,
		"ended_by", by,
		"elapsed_seconds", reading.ElapsedSeconds,
		"billable_seconds", reading.BillableSeconds,
		"final_cost_minor", rt.s.AccruedCostMinor,
	)
	o.notifyStatus(rt)
	o.beginSettlement(rt)
	return true
}

// teardown cancels every per-session task. Safe to call more than once.
func (o *Orchestrator) teardown(rt *runtime) {
	rt.stopTimers()
	o.noshow.Unwatch(rt.s.ID)
	o.billing.Stop(rt.s.ID)

	if rt.conn != nil {
		conn := rt.conn
		rt.conn = nil
		rt.connGen++
		o.async(func(ctx context.Context) {
			lctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
			defer cancel()
			if err := conn.Leave(lctx); err != nil {
				rt.log.Warn("media leave failed", "error", err)
			}
		})
	}
	if rt.unsubscribe != nil {
		unsub := rt.unsubscribe
		rt.unsubscribe = nil
		o.async(func(context.Context) { unsub() })
	}
}

func (o *Orchestrator) withdrawRequest(sessionID, requestID string) {
	o.async(func(ctx context.Context) {
		cctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		defer cancel()
		if err := o.deps.Signaling.Cancel(cctx, requestID); err != nil && !errors.Is(err, signaling.ErrConflict) {
			o.log.Warn("request withdraw failed", "session_id", sessionID, "request_id", requestID, "error", err)
		}
	})
}

/* ===================== NOTIFICATIONS ===================== */

func (o *Orchestrator) notifyStatus(rt *runtime) {
	msg := signaling.Message{
		Type:      signaling.TypeStatus,
		RequestID: rt.s.RequestID,
		SessionID: rt.s.ID,
		CallerID:  rt.s.CallerID,
		CalleeID:  rt.s.CalleeID,
		CallType:  rt.s.CallType,
		Status:    rt.s.Status,
		Reason:    string(rt.s.TerminalReason),
	}
	o.sendTo(msg, rt.s.CallerID, rt.s.CalleeID)
}

func (o *Orchestrator) warn(rt *runtime, reason string) {
	msg := signaling.Message{
		Type:      signaling.TypeWarning,
		SessionID: rt.s.ID,
		Status:    rt.s.Status,
		Reason:    reason,
	}
	o.sendTo(msg, rt.s.CallerID)
}

func (o *Orchestrator) sendTo(msg signaling.Message, users ...string) {
	o.async(func(ctx context.Context) {
		cctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		defer cancel()
		for _, u := range users {
			if err := o.deps.Signaling.Notify(cctx, u, msg); err != nil {
				o.log.Debug("notify failed", "session_id", msg.SessionID, "user_id", u, "type", msg.Type, "error", err)
			}
		}
	})
}

func (o *Orchestrator) now() time.Time { return o.clock.Now().UTC() }
