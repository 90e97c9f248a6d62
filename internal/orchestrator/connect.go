package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/suman7063/ifindLife-sub000/internal/billing"
	"github.com/suman7063/ifindLife-sub000/internal/media"
	"github.com/suman7063/ifindLife-sub000/internal/session"
	"github.com/suman7063/ifindLife-sub000/pkg/utils"
)

func (o *Orchestrator) onAccepted(rt *runtime) {
	if !rt.s.CompareAndSwapStatus(session.StatusAccepted, session.StatusWaiting) {
		return
	}
	rt.log.Info("session accepted")
	o.notifyStatus(rt)

	if rt.s.ScheduledStart == nil {
		// Scheduled sessions are bounded by the no-show checkpoint instead.
		rt.joinGen++
		gen, id := rt.joinGen, rt.s.ID
		rt.joinTimer = o.clock.AfterFunc(o.cfg.MediaJoinTimeout, func() {
			o.post(context.Background(), evJoinTimeout{sessionID: id, gen: gen})
		})
	}

	req := media.JoinRequest{
		SessionID: rt.s.ID,
		Channel:   media.ChannelName(rt.s.ID),
		CallType:  rt.s.CallType,
	}
	users := []string{rt.s.CallerID, rt.s.CalleeID}
	o.async(func(ctx context.Context) {
		now := o.now()
		creds := make(map[string]media.Credential, len(users))
		for _, u := range users {
			var c media.Credential
			if o.deps.Credentials != nil {
				var err error
				c, err = o.deps.Credentials.Issue(now, req.Channel, u)
				if err != nil {
					o.post(ctx, evJoinFailed{sessionID: req.SessionID, err: fmt.Errorf("issue credential: %w", err)})
					return
				}
				creds[u] = c
			}
			req.Participants = append(req.Participants, media.Participant{UserID: u, Credential: c})
		}

		jctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		defer cancel()
		conn, err := o.deps.Media.Join(jctx, req)
		if err != nil {
			o.post(ctx, evJoinFailed{sessionID: req.SessionID, err: err})
			return
		}
		if !o.post(ctx, evJoined{sessionID: req.SessionID, conn: conn, credentials: creds}) {
			_ = conn.Leave(context.WithoutCancel(ctx))
		}
	})
}

func (o *Orchestrator) onJoined(e evJoined) {
	rt, ok := o.sessions[e.sessionID]
	if !ok || !rt.s.CompareAndSwapStatus(session.StatusConnecting, session.StatusAccepted) {
		// Terminated while the join was in flight.
		o.async(func(ctx context.Context) {
			lctx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
			defer cancel()
			_ = e.conn.Leave(lctx)
		})
		return
	}
	rt.conn = e.conn
	rt.connGen++
	rt.credentials = e.credentials
	rt.log.Info("media channel open", "channel", media.ChannelName(rt.s.ID))
	o.notifyStatus(rt)
	o.pump(rt.s.ID, rt.connGen, e.conn)
}

// pump relays connection events into the loop until the connection closes.
func (o *Orchestrator) pump(sessionID string, gen int, conn media.Connection) {
	o.async(func(ctx context.Context) {
		events := conn.Events()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					o.post(ctx, evMediaClosed{sessionID: sessionID, connGen: gen})
					return
				}
				if !o.post(ctx, evMedia{sessionID: sessionID, connGen: gen, ev: ev}) {
					return
				}
			}
		}
	})
}

func (o *Orchestrator) onJoinFailed(e evJoinFailed) {
	rt, ok := o.sessions[e.sessionID]
	if !ok {
		return
	}
	rt.log.Warn("media join failed", "error", fmt.Errorf("%w: %v", session.ErrMediaJoinFailure, e.err))
	o.terminate(rt, session.StatusFailed, session.ReasonMediaFailed, session.PartySystem)
}

func (o *Orchestrator) onJoinTimeout(e evJoinTimeout) {
	rt, ok := o.sessions[e.sessionID]
	if !ok || e.gen != rt.joinGen {
		return
	}
	if rt.s.Status != session.StatusAccepted && rt.s.Status != session.StatusConnecting {
		return
	}
	rt.log.Warn("media join timed out", "timeout", o.cfg.MediaJoinTimeout)
	o.terminate(rt, session.StatusFailed, session.ReasonMediaFailed, session.PartySystem)
}

func (o *Orchestrator) onMedia(e evMedia) {
	rt, ok := o.sessions[e.sessionID]
	if !ok || e.connGen != rt.connGen || rt.conn == nil {
		return
	}
	ev := e.ev
	if ev.UserID != "" && !rt.s.IsParticipant(ev.UserID) {
		rt.log.Warn("media event for stranger", "user_id", ev.UserID, "event", ev.Type)
		return
	}

	switch ev.Type {
	case media.EventUserJoined:
		if ev.UserID != "" {
			rt.joined[ev.UserID] = true
		}
		o.checkConnected(rt)

	case media.EventUserLeft:
		if ev.UserID != "" {
			rt.joined[ev.UserID] = false
		}
		if rt.s.Status == session.StatusConnected {
			o.startGrace(rt, "user_left")
		}

	case media.EventConnectionStateChanged:
		switch ev.State {
		case media.StateConnected:
			if ev.UserID != "" {
				rt.joined[ev.UserID] = true
			}
			o.checkConnected(rt)
		case media.StateReconnecting, media.StateDisconnected:
			if rt.s.Status == session.StatusConnected {
				o.startGrace(rt, string(ev.State))
			}
		case media.StateFailed:
			switch rt.s.Status {
			case session.StatusConnected:
				o.startGrace(rt, string(ev.State))
			case session.StatusAccepted, session.StatusConnecting:
				o.terminate(rt, session.StatusFailed, session.ReasonMediaFailed, session.PartySystem)
			}
		}
	}
}

func (o *Orchestrator) onMediaClosed(e evMediaClosed) {
	rt, ok := o.sessions[e.sessionID]
	if !ok || e.connGen != rt.connGen || rt.conn == nil {
		return
	}
	rt.conn = nil
	switch rt.s.Status {
	case session.StatusAccepted, session.StatusConnecting:
		rt.log.Warn("media channel closed before both parties joined")
		o.terminate(rt, session.StatusFailed, session.ReasonMediaFailed, session.PartySystem)
	case session.StatusConnected:
		rt.joined = map[string]bool{}
		o.startGrace(rt, "channel_closed")
	}
}

// checkConnected promotes a connecting session once both parties are in, and
// cancels a running grace period when they are back.
func (o *Orchestrator) checkConnected(rt *runtime) {
	if !rt.bothJoined() {
		return
	}
	switch rt.s.Status {
	case session.StatusConnecting:
		if !rt.s.CompareAndSwapStatus(session.StatusConnected, session.StatusConnecting) {
			return
		}
		now := o.now()
		rt.s.StartedAt = &now
		rt.meter = billing.NewMeter(now, rt.s.FreeAllowanceSeconds, rt.s.RatePerMinuteMinor, rt.s.ReservedDurationSeconds)
		if rt.joinTimer != nil {
			rt.joinTimer.Stop()
			rt.joinTimer = nil
		}
		rt.joinGen++
		o.noshow.Unwatch(rt.s.ID)
		o.billing.Start(rt.s.ID)
		utils.ConnectedSessions.Inc()
		rt.log.Info("session connected", "reserved_seconds", rt.s.ReservedDurationSeconds)
		o.notifyStatus(rt)

	case session.StatusConnected:
		if rt.graceTimer == nil {
			return
		}
		rt.graceTimer.Stop()
		rt.graceTimer = nil
		rt.graceGen++
		now := o.now()
		var gap time.Duration
		if rt.s.DisconnectedAt != nil {
			gap = now.Sub(*rt.s.DisconnectedAt)
		}
		rt.s.DisconnectedAt = nil
		rt.meter.Resume(now)
		rt.log.Info("media recovered within grace", "gap", gap)
	}
}

// startGrace freezes the meter at the disconnect instant and ends the session
// if nobody recovers before the grace period runs out.
func (o *Orchestrator) startGrace(rt *runtime, cause string) {
	if rt.graceTimer != nil {
		return
	}
	now := o.now()
	rt.s.DisconnectedAt = &now
	rt.meter.Freeze(now)
	rt.graceGen++
	gen, id := rt.graceGen, rt.s.ID
	rt.graceTimer = o.clock.AfterFunc(o.cfg.DisconnectGrace, func() {
		o.post(context.Background(), evGraceExpired{sessionID: id, gen: gen})
	})
	rt.log.Info("media disconnected, grace started", "cause", cause, "grace", o.cfg.DisconnectGrace)
}

func (o *Orchestrator) onGraceExpired(e evGraceExpired) {
	rt, ok := o.sessions[e.sessionID]
	if !ok || e.gen != rt.graceGen || rt.s.Status != session.StatusConnected {
		return
	}
	rt.graceTimer = nil
	at := o.now()
	if rt.s.DisconnectedAt != nil {
		at = *rt.s.DisconnectedAt
	}
	o.endConnected(rt, session.ReasonDisconnected, session.PartySystem, at)
}
