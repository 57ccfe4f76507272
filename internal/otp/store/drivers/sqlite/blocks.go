package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/otpgate/internal/otp/domain"
)

type blocksRepo struct {
	db *sql.DB
}

func (r *blocksRepo) GetBlock(ctx context.Context, principal string) (domain.Block, error) {
	var untilNs, createdNs int64
	err := r.db.QueryRowContext(ctx,
		`SELECT until_ns, created_ns FROM blocks WHERE principal = ?`,
		principal,
	).Scan(&untilNs, &createdNs)
	if err != nil {
		return domain.Block{}, mapNotFound(err)
	}

	return domain.Block{
		Principal: principal,
		Until:     fromNanos(untilNs),
		CreatedAt: fromNanos(createdNs),
	}, nil
}

func (r *blocksRepo) PutBlock(ctx context.Context, b domain.Block) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO blocks (principal, until_ns, created_ns) VALUES (?, ?, ?)
		 ON CONFLICT (principal) DO UPDATE SET until_ns = excluded.until_ns, created_ns = excluded.created_ns`,
		b.Principal, toNanos(b.Until), toNanos(b.CreatedAt),
	)
	return err
}

func (r *blocksRepo) DeleteBlock(ctx context.Context, principal string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM blocks WHERE principal = ?`, principal)
	return err
}

func (r *blocksRepo) DeleteExpiredBlocks(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM blocks WHERE until_ns <= ?`, toNanos(now))
	return err
}
