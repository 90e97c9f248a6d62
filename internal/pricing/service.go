package pricing

import (
	"context"
	"errors"
	"time"
)

// Service resolves what a consultation with an expert costs.
//
// Pure calculation + repository lookups; no wallet or media calls.
type Service struct {
	repo                 RateRepository
	defaultFreeAllowance int
	clock                func() time.Time
}

func NewService(repo RateRepository, defaultFreeAllowanceSeconds int) *Service {
	return &Service{repo: repo, defaultFreeAllowance: defaultFreeAllowanceSeconds, clock: time.Now}
}

// RateRepository abstracts rate persistence.
type RateRepository interface {
	FindRate(ctx context.Context, expertID string, at time.Time) (ExpertRate, bool, error)
}

// Quote is the pricing snapshot copied onto a session at creation.
// Later rate changes never affect a live session.
type Quote struct {
	ExpertID             string
	Currency             string
	RatePerMinuteMinor   int64
	FreeAllowanceSeconds int
}

var (
	ErrPricingNotFound   = errors.New("pricing not found")
	ErrInvalidPricingReq = errors.New("invalid pricing request")
)

// QuoteFor returns the effective rate for expertID at the given instant
// (service clock when at is zero).
func (s *Service) QuoteFor(ctx context.Context, expertID string, at time.Time) (Quote, error) {
	if expertID == "" {
		return Quote{}, ErrInvalidPricingReq
	}
	if at.IsZero() {
		at = s.clock().UTC()
	}
	r, ok, err := s.repo.FindRate(ctx, expertID, at)
	if err != nil {
		return Quote{}, err
	}
	if !ok {
		return Quote{}, ErrPricingNotFound
	}
	if r.RatePerMinuteMinor < 0 || r.Currency == "" {
		return Quote{}, ErrInvalidPricingReq
	}

	free := r.FreeAllowanceSeconds
	if free <= 0 {
		free = s.defaultFreeAllowance
	}
	return Quote{
		ExpertID:             expertID,
		Currency:             r.Currency,
		RatePerMinuteMinor:   r.RatePerMinuteMinor,
		FreeAllowanceSeconds: free,
	}, nil
}

// BillableMinutes rounds seconds up to whole started minutes.
func BillableMinutes(sec int) int {
	if sec <= 0 {
		return 0
	}
	m := sec / 60
	if sec%60 != 0 {
		m++
	}
	return m
}

// CostForSeconds prices sec billable seconds at ratePerMinute, per started minute.
func CostForSeconds(sec int, ratePerMinuteMinor int64) int64 {
	return int64(BillableMinutes(sec)) * ratePerMinuteMinor
}
