package noshow

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultWarningAfter = 3 * time.Minute
	DefaultHardAfter    = 5 * time.Minute
)

type Kind string

const (
	// KindWarning is surfaced to the caller; the session continues.
	KindWarning Kind = "warning"
	// KindHard asks the orchestrator to cancel with expert_no_show.
	KindHard Kind = "hard"
)

type Alert struct {
	SessionID      string
	Kind           Kind
	ScheduledStart time.Time
	At             time.Time
}

// Sink receives alerts from timer goroutines.
type Sink func(Alert)

// Monitor arms the two checkpoints of a scheduled session. It never
// touches session state; deciding what an alert means is the caller's job.
type Monitor struct {
	clock     clockwork.Clock
	warnAfter time.Duration
	hardAfter time.Duration
	sink      Sink

	mu      sync.Mutex
	watches map[string]*watch
}

type watch struct {
	timers []clockwork.Timer
}

func NewMonitor(clock clockwork.Clock, warnAfter, hardAfter time.Duration, sink Sink) *Monitor {
	if warnAfter <= 0 {
		warnAfter = DefaultWarningAfter
	}
	if hardAfter <= 0 {
		hardAfter = DefaultHardAfter
	}
	return &Monitor{
		clock:     clock,
		warnAfter: warnAfter,
		hardAfter: hardAfter,
		sink:      sink,
		watches:   map[string]*watch{},
	}
}

// Watch arms the checkpoints for sessionID. At most one watch exists per
// session; a second call returns false. A warning already overdue is skipped
// when the hard checkpoint is overdue too.
func (m *Monitor) Watch(sessionID string, scheduledStart time.Time) bool {
	m.mu.Lock()
	if _, ok := m.watches[sessionID]; ok {
		m.mu.Unlock()
		return false
	}
	w := &watch{}
	m.watches[sessionID] = w
	m.mu.Unlock()

	now := m.clock.Now()
	warnAt := scheduledStart.Add(m.warnAfter)
	hardAt := scheduledStart.Add(m.hardAfter)

	var timers []clockwork.Timer
	if hardAt.After(now) {
		timers = append(timers, m.arm(w, sessionID, KindWarning, scheduledStart, warnAt.Sub(now)))
	}
	timers = append(timers, m.arm(w, sessionID, KindHard, scheduledStart, hardAt.Sub(now)))

	m.mu.Lock()
	if m.watches[sessionID] == w {
		w.timers = timers
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()
	// Unwatched (or already fired) while arming.
	for _, t := range timers {
		t.Stop()
	}
	return true
}

// Unwatch disarms the session's checkpoints. Safe to call repeatedly.
func (m *Monitor) Unwatch(sessionID string) {
	m.mu.Lock()
	w, ok := m.watches[sessionID]
	delete(m.watches, sessionID)
	m.mu.Unlock()
	if !ok {
		return
	}
	for _, t := range w.timers {
		t.Stop()
	}
}

func (m *Monitor) Watching(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watches[sessionID]
	return ok
}

// Close disarms everything.
func (m *Monitor) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.watches))
	for id := range m.watches {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Unwatch(id)
	}
}

func (m *Monitor) arm(w *watch, sessionID string, kind Kind, scheduledStart time.Time, after time.Duration) clockwork.Timer {
	if after < 0 {
		after = 0
	}
	return m.clock.AfterFunc(after, func() {
		m.mu.Lock()
		live := m.watches[sessionID] == w
		if live && kind == KindHard {
			// The hard checkpoint is the last one.
			delete(m.watches, sessionID)
		}
		m.mu.Unlock()
		if !live {
			return
		}
		m.sink(Alert{SessionID: sessionID, Kind: kind, ScheduledStart: scheduledStart, At: m.clock.Now()})
	})
}
