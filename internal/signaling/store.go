package signaling

import (
	"context"
	"sync"

	"github.com/suman7063/ifindLife-sub000/internal/session"
)

// RequestStore keeps CallRequests. Resolve is a compare-and-swap from
// pending, so concurrent resolutions have exactly one winner.
type RequestStore interface {
	Create(ctx context.Context, req session.CallRequest) error
	Get(ctx context.Context, requestID string) (session.CallRequest, error)
	// Resolve moves a pending request to status. It returns ErrConflict when
	// the request is already resolved.
	Resolve(ctx context.Context, requestID string, status session.RequestStatus) (session.CallRequest, error)
}

type MemoryRequestStore struct {
	mu   sync.Mutex
	reqs map[string]session.CallRequest
}

func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{reqs: map[string]session.CallRequest{}}
}

func (s *MemoryRequestStore) Create(ctx context.Context, req session.CallRequest) error {
	_ = ctx
	if req.ID == "" || req.SessionID == "" {
		return ErrInvalidRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reqs[req.ID]; ok {
		return ErrConflict
	}
	s.reqs[req.ID] = req
	return nil
}

func (s *MemoryRequestStore) Get(ctx context.Context, requestID string) (session.CallRequest, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reqs[requestID]
	if !ok {
		return session.CallRequest{}, ErrRequestNotFound
	}
	return r, nil
}

func (s *MemoryRequestStore) Resolve(ctx context.Context, requestID string, status session.RequestStatus) (session.CallRequest, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reqs[requestID]
	if !ok {
		return session.CallRequest{}, ErrRequestNotFound
	}
	if r.Status.Resolved() {
		return r, ErrConflict
	}
	r.Status = status
	s.reqs[requestID] = r
	return r, nil
}
