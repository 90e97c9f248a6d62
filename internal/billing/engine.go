package billing

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Tick is delivered once per interval for every running session.
type Tick struct {
	SessionID string
	At        time.Time
}

// Sink receives ticks. ctx is cancelled when the ticker is stopped, so a
// sink blocked on a busy consumer can give up.
type Sink func(ctx context.Context, t Tick)

// Engine runs one ticker goroutine per connected session.
type Engine struct {
	clock    clockwork.Clock
	interval time.Duration
	sink     Sink

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewEngine(clock clockwork.Clock, interval time.Duration, sink Sink) *Engine {
	if interval <= 0 {
		interval = time.Second
	}
	return &Engine{
		clock:    clock,
		interval: interval,
		sink:     sink,
		running:  map[string]context.CancelFunc{},
	}
}

// Start begins ticking for sessionID. It returns false when a ticker for
// the session is already running.
func (e *Engine) Start(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.running[sessionID]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.running[sessionID] = cancel

	t := e.clock.NewTicker(e.interval)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case at := <-t.Chan():
				e.sink(ctx, Tick{SessionID: sessionID, At: at})
			}
		}
	}()
	return true
}

// Stop cancels the session's ticker. It does not wait for the goroutine.
func (e *Engine) Stop(sessionID string) {
	e.mu.Lock()
	cancel, ok := e.running[sessionID]
	delete(e.running, sessionID)
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

// StopAll cancels every ticker and waits for their goroutines to exit.
func (e *Engine) StopAll() {
	e.mu.Lock()
	for id, cancel := range e.running {
		cancel()
		delete(e.running, id)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) Running(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[sessionID]
	return ok
}
