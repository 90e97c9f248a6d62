package sessionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// PostgresRepo writes to call_session_log:
//
//	call_session_log (session_id PRIMARY KEY, caller_id, callee_id, status,
//	                  terminal_reason, final_cost_minor, currency,
//	                  settlement_kind, billing_transaction_id, snapshot JSONB,
//	                  recorded_at)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, rec Record) error {
	snap, err := json.Marshal(rec.Session)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO call_session_log (
  session_id, caller_id, callee_id, status, terminal_reason, final_cost_minor,
  currency, settlement_kind, billing_transaction_id, snapshot, recorded_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (session_id) DO NOTHING
`
	_, err = r.db.ExecContext(ctx, q,
		rec.SessionID,
		rec.CallerID,
		rec.CalleeID,
		rec.Status,
		rec.TerminalReason,
		rec.FinalCostMinor,
		rec.Currency,
		rec.SettlementKind,
		rec.BillingTransactionID,
		snap,
		rec.RecordedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, sessionID string) (Record, error) {
	const q = `
SELECT session_id, caller_id, callee_id, status, terminal_reason, final_cost_minor,
       currency, settlement_kind, billing_transaction_id, snapshot, recorded_at
FROM call_session_log
WHERE session_id = $1
`
	var (
		rec  Record
		snap []byte
	)
	err := r.db.QueryRowContext(ctx, q, sessionID).Scan(
		&rec.SessionID,
		&rec.CallerID,
		&rec.CalleeID,
		&rec.Status,
		&rec.TerminalReason,
		&rec.FinalCostMinor,
		&rec.Currency,
		&rec.SettlementKind,
		&rec.BillingTransactionID,
		&snap,
		&rec.RecordedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if len(snap) > 0 {
		if err := json.Unmarshal(snap, &rec.Session); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}
