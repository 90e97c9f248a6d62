package orchestrator

import (
	"github.com/suman7063/ifindLife-sub000/internal/media"
	"github.com/suman7063/ifindLife-sub000/internal/noshow"
	"github.com/suman7063/ifindLife-sub000/internal/session"
	"github.com/suman7063/ifindLife-sub000/internal/sessionlog"
	"github.com/suman7063/ifindLife-sub000/internal/signaling"
	"github.com/suman7063/ifindLife-sub000/internal/wallet"
)

// event is anything the loop consumes.
type event interface{}

// Commands from API callers.
type (
	cmdRegister struct {
		s     *session.CallSession
		reply chan result
	}
	cmdGet struct {
		sessionID, userID string
		reply             chan result
	}
	// cmdRequestID resolves the pending request a callee answers.
	cmdRequestID struct {
		sessionID, userID string
		reply             chan requestIDResult
	}
	cmdCancel struct {
		sessionID, userID string
		reply             chan result
	}
	cmdEnd struct {
		sessionID, userID string
		reply             chan result
	}
	cmdExtend struct {
		sessionID, userID string
		reply             chan result
	}
	cmdActive struct {
		reply chan int
	}
)

type requestIDResult struct {
	requestID string
	err       error
}

// Events from per-session tasks and workers.
type (
	evSubscribed struct {
		sessionID   string
		unsubscribe func()
	}
	evPublished struct {
		sessionID string
		requestID string
		reply     chan result
	}
	evStartFailed struct {
		sessionID string
		reason    session.TerminalReason
		err       error
		reply     chan result
	}
	evFrame struct {
		sessionID string
		msg       signaling.Message
	}
	evJoined struct {
		sessionID   string
		conn        media.Connection
		credentials map[string]media.Credential
	}
	evJoinFailed struct {
		sessionID string
		err       error
	}
	evMedia struct {
		sessionID string
		connGen   int
		ev        media.Event
	}
	evMediaClosed struct {
		sessionID string
		connGen   int
	}
	evJoinTimeout struct {
		sessionID string
		gen       int
	}
	evGraceExpired struct {
		sessionID string
		gen       int
	}
	evTick struct {
		sessionID string
	}
	evNoShow struct {
		alert noshow.Alert
	}
	evExtendResult struct {
		sessionID string
		n         int
		seconds   int
		amount    int64
		tx        wallet.Transaction
		err       error
		reply     chan result
	}
	evSettled struct {
		sessionID string
		kind      sessionlog.SettlementKind
		tx        wallet.Transaction
	}
	evSettleFailed struct {
		sessionID string
		err       error
	}
	evLogged struct {
		sessionID string
	}
)
