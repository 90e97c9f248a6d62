package pricing

import "time"

// Amounts are expressed in minor units (e.g., cents) using int64.

// ExpertRate is the per-minute price an expert charges for consultations.
// Rows are read-only here; profile management owns them.
type ExpertRate struct {
	ID       string `json:"id" db:"id"`
	ExpertID string `json:"expert_id" db:"expert_id"`

	Currency string `json:"currency" db:"currency"`

	// RatePerMinuteMinor is the price per started minute past the free allowance.
	RatePerMinuteMinor int64 `json:"rate_per_minute_minor" db:"rate_per_minute_minor"`

	// FreeAllowanceSeconds overrides the platform default when > 0.
	FreeAllowanceSeconds int `json:"free_allowance_seconds" db:"free_allowance_seconds"`

	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"`

	Status RateStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type RateStatus string

const (
	RateStatusActive   RateStatus = "active"
	RateStatusInactive RateStatus = "inactive"
)

// activeAt reports whether r applies at the given instant.
func (r ExpertRate) activeAt(at time.Time) bool {
	if r.Status != RateStatusActive {
		return false
	}
	if at.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !at.Before(*r.EffectiveTo) {
		return false
	}
	return true
}
