// Package memory is an in-process Store. Blocks survive across sessions but
// not across restarts; use the sqlite or redis driver for that.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aussiebroadwan/otpgate/internal/otp/domain"
	"github.com/aussiebroadwan/otpgate/internal/otp/store"
)

type Store struct {
	mu       sync.RWMutex
	blocks   map[string]domain.Block
	outcomes []domain.OutcomeRecord
}

func NewStore() *Store {
	return &Store{blocks: make(map[string]domain.Block)}
}

func (s *Store) Blocks() store.Blocks     { return (*blocksRepo)(s) }
func (s *Store) Outcomes() store.Outcomes { return (*outcomesRepo)(s) }

func (s *Store) ApplyMigrations() error         { return nil }
func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

type blocksRepo Store

func (r *blocksRepo) GetBlock(_ context.Context, principal string) (domain.Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.blocks[principal]
	if !ok {
		return domain.Block{}, store.ErrNotFound
	}
	return b, nil
}

func (r *blocksRepo) PutBlock(_ context.Context, b domain.Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.blocks[b.Principal] = b
	return nil
}

func (r *blocksRepo) DeleteBlock(_ context.Context, principal string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.blocks, principal)
	return nil
}

func (r *blocksRepo) DeleteExpiredBlocks(_ context.Context, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for p, b := range r.blocks {
		if !b.Active(now) {
			delete(r.blocks, p)
		}
	}
	return nil
}

type outcomesRepo Store

func (r *outcomesRepo) RecordOutcome(_ context.Context, rec domain.OutcomeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outcomes = append(r.outcomes, rec)
	return nil
}

func (r *outcomesRepo) ListOutcomes(_ context.Context, principal string, limit int) ([]domain.OutcomeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.OutcomeRecord
	for _, rec := range slices.Backward(r.outcomes) {
		if rec.Principal != principal {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *outcomesRepo) DeleteOutcomesBefore(_ context.Context, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outcomes = slices.DeleteFunc(r.outcomes, func(rec domain.OutcomeRecord) bool {
		return rec.EndedAt.Before(t)
	})
	return nil
}
