package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/suman7063/ifindLife-sub000/internal/billing"
	"github.com/suman7063/ifindLife-sub000/internal/session"
	"github.com/suman7063/ifindLife-sub000/internal/sessionlog"
	"github.com/suman7063/ifindLife-sub000/internal/signaling"
	"github.com/suman7063/ifindLife-sub000/internal/wallet"
)

type CreateRequest struct {
	CallerID       string
	CalleeID       string
	CallType       session.CallType
	ScheduledStart *time.Time
}

// CreateSession reserves the free allowance, registers the session and rings
// the callee. Insufficient funds fail before the callee hears anything.
func (o *Orchestrator) CreateSession(ctx context.Context, req CreateRequest) (View, error) {
	if req.CallerID == "" || req.CalleeID == "" || req.CallerID == req.CalleeID || !req.CallType.Valid() {
		return View{}, session.ErrInvalidArgument
	}
	now := o.clock.Now().UTC()

	if o.deps.Limiter != nil {
		ok, err := o.deps.Limiter.Acquire(ctx, req.CallerID)
		if err != nil {
			return View{}, fmt.Errorf("concurrency cap: %w", err)
		}
		if !ok {
			return View{}, session.ErrCallerBusy
		}
	}
	registered := false
	defer func() {
		if !registered && o.deps.Limiter != nil {
			_ = o.deps.Limiter.Release(context.WithoutCancel(ctx), req.CallerID)
		}
	}()

	quote, err := o.deps.Rates.QuoteFor(ctx, req.CalleeID, now)
	if err != nil {
		return View{}, err
	}
	free := quote.FreeAllowanceSeconds
	if free <= 0 {
		free = o.cfg.DefaultFreeAllowanceSeconds
	}
	amount := billing.ReservationFor(free, quote.RatePerMinuteMinor)
	if amount <= 0 {
		return View{}, fmt.Errorf("%w: nothing to reserve", session.ErrInvalidArgument)
	}

	s := &session.CallSession{
		ID:                      uuid.NewString(),
		CallerID:                req.CallerID,
		CalleeID:                req.CalleeID,
		CallType:                req.CallType,
		Status:                  session.StatusRequested,
		CreatedAt:               now,
		FreeAllowanceSeconds:    free,
		RatePerMinuteMinor:      quote.RatePerMinuteMinor,
		Currency:                quote.Currency,
		ReservedDurationSeconds: free,
		ReservedAmountMinor:     amount,
	}
	if req.ScheduledStart != nil {
		st := req.ScheduledStart.UTC()
		s.ScheduledStart = &st
	}

	tx, err := o.reserve(ctx, wallet.ReserveRequest{
		UserID:         s.CallerID,
		SessionID:      s.ID,
		AmountMinor:    amount,
		Currency:       s.Currency,
		IdempotencyKey: session.InitialReservationKey(s.ID),
	})
	if err != nil {
		if !errors.Is(err, wallet.ErrInsufficientFunds) && !errors.Is(err, wallet.ErrInvalidArgument) {
			o.abandonHold(ctx, s)
		}
		return View{}, err
	}
	s.ReservationID = tx.ID

	reply := newReply()
	if !o.post(o.runCtx, cmdRegister{s: s, reply: reply}) {
		o.abandonHold(ctx, s)
		return View{}, ErrShuttingDown
	}
	if _, err := o.await(o.runCtx, reply); err != nil {
		if !errors.Is(err, session.ErrInvalidArgument) {
			o.abandonHold(ctx, s)
		}
		return View{}, err
	}
	// From here the loop owns the session, the hold and the cap slot.
	registered = true

	unsub, err := o.deps.Signaling.Subscribe(o.runCtx, s.ID, o.frameHandler(s.ID))
	if err != nil {
		return o.startFailed(ctx, s.ID, err)
	}
	if !o.post(o.runCtx, evSubscribed{sessionID: s.ID, unsubscribe: unsub}) {
		unsub()
		return View{}, ErrShuttingDown
	}

	expiresAt := now.Add(o.cfg.RequestTTL)
	if s.ScheduledStart != nil {
		// Let the no-show checkpoint decide before the request lapses.
		if at := s.ScheduledStart.Add(o.cfg.NoShowHardAfter + o.cfg.RequestTTL); at.After(expiresAt) {
			expiresAt = at
		}
	}
	pubCtx, cancel := context.WithTimeout(o.runCtx, o.cfg.CallTimeout)
	requestID, err := o.deps.Signaling.PublishRequest(pubCtx, signaling.Request{
		SessionID: s.ID,
		CallerID:  s.CallerID,
		CalleeID:  s.CalleeID,
		CallType:  s.CallType,
		ExpiresAt: expiresAt,
	})
	cancel()
	if err != nil {
		return o.startFailed(ctx, s.ID, err)
	}

	pubReply := newReply()
	if !o.post(o.runCtx, evPublished{sessionID: s.ID, requestID: requestID, reply: pubReply}) {
		return View{}, ErrShuttingDown
	}
	return o.await(ctx, pubReply)
}

func (o *Orchestrator) startFailed(ctx context.Context, sessionID string, cause error) (View, error) {
	o.log.Error("session start failed", "session_id", sessionID, "error", cause)
	reply := newReply()
	if !o.post(o.runCtx, evStartFailed{sessionID: sessionID, reason: session.ReasonSignalingFailed, err: cause, reply: reply}) {
		return View{}, ErrShuttingDown
	}
	if _, err := o.await(ctx, reply); err != nil && !errors.Is(err, ErrSignalingUnavailable) {
		return View{}, err
	}
	return View{}, fmt.Errorf("%w: %v", ErrSignalingUnavailable, cause)
}

// Get returns a live session or, once archived, its logged final state.
// An empty userID skips the participant check (admin and internal use).
func (o *Orchestrator) Get(ctx context.Context, sessionID, userID string) (View, error) {
	reply := newReply()
	v, err := o.call(ctx, cmdGet{sessionID: sessionID, userID: userID, reply: reply}, reply)
	if !errors.Is(err, session.ErrNotFound) {
		return v, err
	}

	rec, err := o.deps.Log.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessionlog.ErrNotFound) {
			return View{}, session.ErrNotFound
		}
		return View{}, err
	}
	if userID != "" && !rec.Session.IsParticipant(userID) {
		return View{}, session.ErrNotParticipant
	}
	return View{CallSession: rec.Session}, nil
}

// Accept answers the pending request as the callee.
func (o *Orchestrator) Accept(ctx context.Context, sessionID, calleeID string) (View, error) {
	return o.respond(ctx, sessionID, calleeID, true)
}

// Decline refuses the pending request as the callee.
func (o *Orchestrator) Decline(ctx context.Context, sessionID, calleeID string) (View, error) {
	return o.respond(ctx, sessionID, calleeID, false)
}

func (o *Orchestrator) respond(ctx context.Context, sessionID, calleeID string, accept bool) (View, error) {
	reply := make(chan requestIDResult, 1)
	if !o.post(ctx, cmdRequestID{sessionID: sessionID, userID: calleeID, reply: reply}) {
		return View{}, ErrShuttingDown
	}
	var r requestIDResult
	select {
	case r = <-reply:
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-o.quit:
		return View{}, ErrShuttingDown
	}
	if r.err != nil {
		return View{}, r.err
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()
	// The resulting frame drives the state change through the loop.
	if err := o.deps.Signaling.Respond(callCtx, r.requestID, accept); err != nil {
		return View{}, err
	}
	return o.Get(ctx, sessionID, calleeID)
}

// Cancel withdraws a session that has not connected yet (caller only).
// Cancelling a finished session returns it unchanged.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID, callerID string) (View, error) {
	reply := newReply()
	v, err := o.call(ctx, cmdCancel{sessionID: sessionID, userID: callerID, reply: reply}, reply)
	if errors.Is(err, session.ErrNotFound) {
		return o.Get(ctx, sessionID, callerID)
	}
	return v, err
}

// End hangs up a connected session (either party). Ending an ending or
// ended session returns it unchanged.
func (o *Orchestrator) End(ctx context.Context, sessionID, userID string) (View, error) {
	reply := newReply()
	v, err := o.call(ctx, cmdEnd{sessionID: sessionID, userID: userID, reply: reply}, reply)
	if errors.Is(err, session.ErrNotFound) {
		return o.Get(ctx, sessionID, userID)
	}
	return v, err
}

// Extend reserves one more block for a connected session (caller only).
// It blocks until the ledger answers. wallet.ErrInsufficientFunds leaves the
// session running to its current boundary.
func (o *Orchestrator) Extend(ctx context.Context, sessionID, callerID string) (View, error) {
	reply := newReply()
	return o.call(ctx, cmdExtend{sessionID: sessionID, userID: callerID, reply: reply}, reply)
}

// Active returns the number of sessions held by the loop.
func (o *Orchestrator) Active(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	if !o.post(ctx, cmdActive{reply: reply}) {
		return 0, ErrShuttingDown
	}
	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-o.quit:
		return 0, ErrShuttingDown
	}
}

func (o *Orchestrator) await(ctx context.Context, reply chan result) (View, error) {
	select {
	case r := <-reply:
		return r.view, r.err
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-o.quit:
		return View{}, ErrShuttingDown
	}
}

func (o *Orchestrator) frameHandler(sessionID string) func(signaling.Message) {
	return func(m signaling.Message) {
		o.post(o.runCtx, evFrame{sessionID: sessionID, msg: m})
	}
}
