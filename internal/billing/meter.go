package billing

import (
	"time"

	"github.com/suman7063/ifindLife-sub000/internal/pricing"
)

// Reading is the meter state at one instant.
type Reading struct {
	At               time.Time
	ElapsedSeconds   int
	BillableSeconds  int
	CostMinor        int64
	RemainingSeconds int
}

// Exhausted reports whether the reserved duration is used up.
func (r Reading) Exhausted() bool { return r.RemainingSeconds <= 0 }

// Meter prices one connected session. It is not safe for concurrent use;
// the orchestrator loop owns it.
//
// Elapsed time is capped at the reserved duration, so cost never exceeds
// what was reserved. Readings never go backwards: an older instant or a
// frozen meter returns the last cost.
type Meter struct {
	startedAt time.Time
	free      int
	rate      int64
	reserved  int

	frozenAt *time.Time
	final    *Reading
	last     Reading
}

func NewMeter(startedAt time.Time, freeAllowanceSeconds int, ratePerMinuteMinor int64, reservedSeconds int) *Meter {
	return &Meter{
		startedAt: startedAt,
		free:      freeAllowanceSeconds,
		rate:      ratePerMinuteMinor,
		reserved:  reservedSeconds,
		last:      Reading{At: startedAt, RemainingSeconds: reservedSeconds},
	}
}

// Read computes the reading at the given instant.
func (m *Meter) Read(at time.Time) Reading {
	if m.final != nil {
		return *m.final
	}
	if m.frozenAt != nil && at.After(*m.frozenAt) {
		at = *m.frozenAt
	}
	if at.Before(m.last.At) {
		at = m.last.At
	}

	elapsed := int(at.Sub(m.startedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	charged := elapsed
	if charged > m.reserved {
		charged = m.reserved
	}
	billable := charged - m.free
	if billable < 0 {
		billable = 0
	}

	r := Reading{
		At:               at,
		ElapsedSeconds:   elapsed,
		BillableSeconds:  billable,
		CostMinor:        CostFor(billable, m.rate),
		RemainingSeconds: m.reserved - elapsed,
	}
	if r.CostMinor < m.last.CostMinor {
		r.CostMinor = m.last.CostMinor
	}
	m.last = r
	return r
}

// Extend raises the reserved duration by seconds.
func (m *Meter) Extend(seconds int) {
	if seconds > 0 {
		m.reserved += seconds
	}
}

// Boundary is the instant the reserved duration runs out.
func (m *Meter) Boundary() time.Time {
	return m.startedAt.Add(time.Duration(m.reserved) * time.Second)
}

// Freeze stops accrual at the given instant until Resume.
func (m *Meter) Freeze(at time.Time) {
	if m.frozenAt == nil {
		m.frozenAt = &at
	}
}

// Resume restarts accrual at the given instant. The frozen gap is not talk
// time: the start and the boundary both move forward by it.
func (m *Meter) Resume(at time.Time) {
	if m.frozenAt == nil {
		return
	}
	if gap := at.Sub(*m.frozenAt); gap > 0 {
		m.startedAt = m.startedAt.Add(gap)
		m.last.At = at
	}
	m.frozenAt = nil
}

// Finalize takes the closing reading. Later calls return the same reading.
func (m *Meter) Finalize(at time.Time) Reading {
	if m.final == nil {
		r := m.Read(at)
		m.final = &r
	}
	return *m.final
}

// CostFor prices billable seconds: every started minute is charged in full.
func CostFor(billableSeconds int, ratePerMinuteMinor int64) int64 {
	return pricing.CostForSeconds(billableSeconds, ratePerMinuteMinor)
}

// ReservationFor is the hold needed to cover seconds of talk time.
func ReservationFor(seconds int, ratePerMinuteMinor int64) int64 {
	return pricing.CostForSeconds(seconds, ratePerMinuteMinor)
}
