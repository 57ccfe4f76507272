package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/otpgate/internal/otp/domain"
)

type outcomesRepo struct {
	db *sql.DB
}

func (r *outcomesRepo) RecordOutcome(ctx context.Context, rec domain.OutcomeRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO outcomes (id, session_id, principal, outcome, attempts, resends, started_ns, ended_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Principal, string(rec.Outcome),
		rec.Attempts, rec.Resends, toNanos(rec.StartedAt), toNanos(rec.EndedAt),
	)
	return err
}

func (r *outcomesRepo) ListOutcomes(ctx context.Context, principal string, limit int) ([]domain.OutcomeRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, principal, outcome, attempts, resends, started_ns, ended_ns
		 FROM outcomes WHERE principal = ? ORDER BY ended_ns DESC, id DESC LIMIT ?`,
		principal, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OutcomeRecord
	for rows.Next() {
		var (
			rec                domain.OutcomeRecord
			outcome            string
			startedNs, endedNs int64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Principal, &outcome,
			&rec.Attempts, &rec.Resends, &startedNs, &endedNs); err != nil {
			return nil, err
		}
		rec.Outcome = domain.Outcome(outcome)
		rec.StartedAt = fromNanos(startedNs)
		rec.EndedAt = fromNanos(endedNs)
		out = append(out, rec)
	}

	return out, rows.Err()
}

func (r *outcomesRepo) DeleteOutcomesBefore(ctx context.Context, t time.Time) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM outcomes WHERE ended_ns < ?`, toNanos(t))
	return err
}
