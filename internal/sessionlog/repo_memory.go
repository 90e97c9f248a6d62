package sessionlog

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory append-only repository for tests and local runs.
type MemoryRepo struct {
	mu      sync.Mutex
	order   []string
	records map[string]Record
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{records: map[string]Record{}} }

func (r *MemoryRepo) Append(ctx context.Context, rec Record) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.SessionID]; ok {
		return nil
	}
	r.records[rec.SessionID] = rec
	r.order = append(r.order, rec.SessionID)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, sessionID string) (Record, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[sessionID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Records returns every record in append order.
func (r *MemoryRepo) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id])
	}
	return out
}
