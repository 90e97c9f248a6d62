package orchestrator

import (
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/suman7063/ifindLife-sub000/internal/billing"
	"github.com/suman7063/ifindLife-sub000/internal/media"
	"github.com/suman7063/ifindLife-sub000/internal/session"
)

// runtime is the loop-private state of one live session.
type runtime struct {
	s   *session.CallSession
	log *slog.Logger

	unsubscribe func()

	conn        media.Connection
	connGen     int
	credentials map[string]media.Credential
	joined      map[string]bool

	meter *billing.Meter

	joinTimer  clockwork.Timer
	joinGen    int
	graceTimer clockwork.Timer
	graceGen   int

	extending    bool
	exhausted    bool // boundary reached while an extension was in flight
	lowWarned    bool
	settleQueued bool // settlement waits for the in-flight extension

	settling bool
}

func (rt *runtime) stopTimers() {
	if rt.joinTimer != nil {
		rt.joinTimer.Stop()
		rt.joinTimer = nil
	}
	rt.joinGen++
	if rt.graceTimer != nil {
		rt.graceTimer.Stop()
		rt.graceTimer = nil
	}
	rt.graceGen++
}

func (rt *runtime) view(userID string) View {
	v := View{CallSession: rt.s.Snapshot()}
	if c, ok := rt.credentials[userID]; ok {
		cred := c
		v.MediaCredential = &cred
	}
	return v
}

func (rt *runtime) bothJoined() bool {
	return rt.joined[rt.s.CallerID] && rt.joined[rt.s.CalleeID]
}
