package pricing

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory RateRepository for tests and local runs.
type MemoryRepo struct {
	mu    sync.RWMutex
	Rates []ExpertRate
}

func (r *MemoryRepo) Add(rate ExpertRate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Rates = append(r.Rates, rate)
}

func (r *MemoryRepo) FindRate(ctx context.Context, expertID string, at time.Time) (ExpertRate, bool, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Prefer the most recent effective row.
	var best ExpertRate
	found := false
	for _, p := range r.Rates {
		if p.ExpertID != expertID || !p.activeAt(at) {
			continue
		}
		if !found || p.EffectiveFrom.After(best.EffectiveFrom) {
			best = p
			found = true
		}
	}
	return best, found, nil
}
