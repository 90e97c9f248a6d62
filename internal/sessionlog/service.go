package sessionlog

import (
	"context"
	"errors"
	"time"
)

// Repository is the persistence contract for session outcomes.
//
// It MUST be append-only. Appending an existing session_id is a no-op.
type Repository interface {
	Append(ctx context.Context, r Record) error
	Get(ctx context.Context, sessionID string) (Record, error)
}

// Service validates and stores session outcomes.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var (
	ErrInvalidRecord = errors.New("sessionlog: invalid record")
	ErrNotFound      = errors.New("sessionlog: not found")
)

func (s *Service) Append(ctx context.Context, r Record) error {
	if s.repo == nil {
		return errors.New("sessionlog: repository not configured")
	}
	if r.SessionID == "" || r.BillingTransactionID == "" {
		return ErrInvalidRecord
	}
	if !r.Status.IsTerminal() || r.TerminalReason == "" {
		return ErrInvalidRecord
	}
	if r.FinalCostMinor < 0 {
		return ErrInvalidRecord
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, r)
}

func (s *Service) Get(ctx context.Context, sessionID string) (Record, error) {
	if s.repo == nil {
		return Record{}, errors.New("sessionlog: repository not configured")
	}
	if sessionID == "" {
		return Record{}, ErrNotFound
	}
	return s.repo.Get(ctx, sessionID)
}
