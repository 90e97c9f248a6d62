package pricing

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo reads expert_rates. Expected table:
//
//	expert_rates (id, expert_id, currency, rate_per_minute_minor,
//	              free_allowance_seconds, effective_from, effective_to,
//	              status, created_at, updated_at)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) FindRate(ctx context.Context, expertID string, at time.Time) (ExpertRate, bool, error) {
	const q = `
SELECT id, expert_id, currency, rate_per_minute_minor, free_allowance_seconds,
       effective_from, effective_to, status, created_at, updated_at
FROM expert_rates
WHERE expert_id = $1
  AND status = 'active'
  AND effective_from <= $2
  AND (effective_to IS NULL OR effective_to > $2)
ORDER BY effective_from DESC
LIMIT 1
`
	var (
		p  ExpertRate
		to sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, expertID, at).Scan(
		&p.ID,
		&p.ExpertID,
		&p.Currency,
		&p.RatePerMinuteMinor,
		&p.FreeAllowanceSeconds,
		&p.EffectiveFrom,
		&to,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ExpertRate{}, false, nil
		}
		return ExpertRate{}, false, err
	}
	if to.Valid {
		v := to.Time
		p.EffectiveTo = &v
	}
	return p, true, nil
}
