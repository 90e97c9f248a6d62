package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/suman7063/ifindLife-sub000/internal/billing"
	"github.com/suman7063/ifindLife-sub000/internal/media"
	"github.com/suman7063/ifindLife-sub000/internal/noshow"
	"github.com/suman7063/ifindLife-sub000/internal/pricing"
	"github.com/suman7063/ifindLife-sub000/internal/session"
	"github.com/suman7063/ifindLife-sub000/internal/sessionlog"
	"github.com/suman7063/ifindLife-sub000/internal/signaling"
	"github.com/suman7063/ifindLife-sub000/internal/wallet"
)

// Signaling is the part of signaling.Channel the orchestrator drives.
type Signaling interface {
	PublishRequest(ctx context.Context, r signaling.Request) (string, error)
	Subscribe(ctx context.Context, sessionID string, h signaling.Handler) (func(), error)
	Respond(ctx context.Context, requestID string, accept bool) error
	Cancel(ctx context.Context, requestID string) error
	Notify(ctx context.Context, userID string, msg signaling.Message) error
}

// RateQuoter resolves the price of a callee.
type RateQuoter interface {
	QuoteFor(ctx context.Context, expertID string, at time.Time) (pricing.Quote, error)
}

// SessionLog stores finished sessions.
type SessionLog interface {
	Append(ctx context.Context, r sessionlog.Record) error
	Get(ctx context.Context, sessionID string) (sessionlog.Record, error)
}

// Credentials issues media channel tokens.
type Credentials interface {
	Issue(now time.Time, channel, userID string) (media.Credential, error)
}

// Limiter caps live sessions per caller.
type Limiter interface {
	Acquire(ctx context.Context, callerID string) (bool, error)
	Release(ctx context.Context, callerID string) error
}

type Config struct {
	DefaultFreeAllowanceSeconds int
	RequestTTL                  time.Duration
	NoShowWarningAfter          time.Duration
	NoShowHardAfter             time.Duration
	DisconnectGrace             time.Duration
	ExtensionSeconds            int
	MediaJoinTimeout            time.Duration
	TickInterval                time.Duration

	// CallTimeout bounds every single ledger, media or bus call.
	CallTimeout time.Duration
	// RetryInitial/RetryMax shape the backoff for ledger retries.
	RetryInitial time.Duration
	RetryMax     time.Duration
	// ReserveRetries bounds retries for reservations made on behalf of a
	// waiting API caller. Settlement retries never give up.
	ReserveRetries uint64

	InboxSize int
}

func (c Config) withDefaults() Config {
	out := c
	if out.DefaultFreeAllowanceSeconds <= 0 {
		out.DefaultFreeAllowanceSeconds = session.DefaultFreeAllowanceSeconds
	}
	if out.RequestTTL <= 0 {
		out.RequestTTL = signaling.DefaultRequestTTL
	}
	if out.NoShowWarningAfter <= 0 {
		out.NoShowWarningAfter = noshow.DefaultWarningAfter
	}
	if out.NoShowHardAfter <= 0 {
		out.NoShowHardAfter = noshow.DefaultHardAfter
	}
	if out.DisconnectGrace <= 0 {
		out.DisconnectGrace = 30 * time.Second
	}
	if out.ExtensionSeconds <= 0 {
		out.ExtensionSeconds = 600
	}
	if out.MediaJoinTimeout <= 0 {
		out.MediaJoinTimeout = 60 * time.Second
	}
	if out.TickInterval <= 0 {
		out.TickInterval = time.Second
	}
	if out.CallTimeout <= 0 {
		out.CallTimeout = 5 * time.Second
	}
	if out.RetryInitial <= 0 {
		out.RetryInitial = 200 * time.Millisecond
	}
	if out.RetryMax <= 0 {
		out.RetryMax = 30 * time.Second
	}
	if out.ReserveRetries == 0 {
		out.ReserveRetries = 3
	}
	if out.InboxSize <= 0 {
		out.InboxSize = 256
	}
	return out
}

type Deps struct {
	Ledger      wallet.Ledger
	Signaling   Signaling
	Media       media.Transport
	Rates       RateQuoter
	Log         SessionLog
	Credentials Credentials // optional
	Limiter     Limiter     // optional
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

var (
	ErrShuttingDown         = errors.New("orchestrator: shutting down")
	ErrExtensionInFlight    = errors.New("orchestrator: extension already in progress")
	ErrSignalingUnavailable = errors.New("orchestrator: signaling unavailable")
)

// Orchestrator owns every live session. A single loop goroutine (Run) is the
// only writer of session state; timers, tickers, media pumps and bus
// subscriptions post events to its inbox, and ledger/media/bus calls run in
// worker goroutines that report back the same way.
type Orchestrator struct {
	cfg   Config
	deps  Deps
	clock clockwork.Clock
	log   *slog.Logger

	inbox chan event
	quit  chan struct{}

	// runCtx is cancelled when Run returns; workers use it as their parent.
	runCtx    context.Context
	runCancel context.CancelFunc
	workers   sync.WaitGroup

	billing *billing.Engine
	noshow  *noshow.Monitor

	// Loop-owned.
	sessions map[string]*runtime
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Ledger == nil || deps.Signaling == nil || deps.Media == nil || deps.Rates == nil || deps.Log == nil {
		return nil, errors.New("orchestrator: ledger, signaling, media, rates and log are required")
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	runCtx, runCancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:       cfg,
		deps:      deps,
		clock:     deps.Clock,
		log:       deps.Logger,
		inbox:     make(chan event, cfg.InboxSize),
		quit:      make(chan struct{}),
		runCtx:    runCtx,
		runCancel: runCancel,
		sessions:  map[string]*runtime{},
	}
	o.billing = billing.NewEngine(o.clock, cfg.TickInterval, func(ctx context.Context, t billing.Tick) {
		o.post(ctx, evTick{sessionID: t.SessionID})
	})
	o.noshow = noshow.NewMonitor(o.clock, cfg.NoShowWarningAfter, cfg.NoShowHardAfter, func(a noshow.Alert) {
		// Overdue checkpoints fire inside Watch, which runs on the loop.
		go o.post(context.Background(), evNoShow{alert: a})
	})
	return o, nil
}

// Run processes the inbox until ctx is done. Live sessions are abandoned
// on shutdown; pending settlements stop retrying.
func (o *Orchestrator) Run(ctx context.Context) {
	defer func() {
		close(o.quit)
		o.runCancel()
		o.billing.StopAll()
		o.noshow.Close()
		for _, rt := range o.sessions {
			rt.stopTimers()
		}
		o.workers.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			o.log.Info("orchestrator stopping", "live_sessions", len(o.sessions))
			return
		case ev := <-o.inbox:
			o.handle(ev)
		}
	}
}

// post hands ev to the loop. It gives up when ctx is done or the loop exited.
func (o *Orchestrator) post(ctx context.Context, ev event) bool {
	// The inbox is buffered; without this check a send could still win
	// after the loop has exited.
	select {
	case <-o.quit:
		return false
	default:
	}
	select {
	case o.inbox <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-o.quit:
		return false
	}
}

// call posts a command and waits for its reply.
func (o *Orchestrator) call(ctx context.Context, ev event, reply chan result) (View, error) {
	if !o.post(ctx, ev) {
		if ctx.Err() != nil {
			return View{}, ctx.Err()
		}
		return View{}, ErrShuttingDown
	}
	return o.await(ctx, reply)
}

// async runs fn on a worker goroutine tracked for shutdown.
func (o *Orchestrator) async(fn func(ctx context.Context)) {
	o.workers.Add(1)
	go func() {
		defer o.workers.Done()
		fn(o.runCtx)
	}()
}

// View is what API callers see: the session plus, for a participant, their
// media channel credential once the channel is open.
type View struct {
	session.CallSession
	MediaCredential *media.Credential `json:"media_credential,omitempty"`
}

type result struct {
	view View
	err  error
}

func newReply() chan result { return make(chan result, 1) }
