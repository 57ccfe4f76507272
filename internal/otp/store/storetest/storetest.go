// Package storetest holds a conformance suite every store driver runs.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/otpgate/internal/otp/domain"
	"github.com/aussiebroadwan/otpgate/internal/otp/store"
	"github.com/aussiebroadwan/otpgate/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Run exercises s through the store.Store contract. Times are anchored to the
// wall clock because some drivers hand expiry to the backend.
func Run(t *testing.T, s store.Store) {
	t.Helper()

	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))

	t.Run("blocks", func(t *testing.T) { testBlocks(t, s) })
	t.Run("outcomes", func(t *testing.T) { testOutcomes(t, s) })
}

func testBlocks(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	principal := "blocks-" + idx.New().String()

	_, err := s.Blocks().GetBlock(ctx, principal)
	require.ErrorIs(t, err, store.ErrNotFound)

	block := domain.Block{Principal: principal, Until: now.Add(2 * time.Minute), CreatedAt: now}
	require.NoError(t, s.Blocks().PutBlock(ctx, block))

	got, err := s.Blocks().GetBlock(ctx, principal)
	require.NoError(t, err)
	require.Equal(t, principal, got.Principal)
	require.True(t, got.Until.Equal(block.Until), "until %v != %v", got.Until, block.Until)
	require.True(t, got.Active(now))

	// Replacing extends the window
	block.Until = now.Add(5 * time.Minute)
	require.NoError(t, s.Blocks().PutBlock(ctx, block))
	got, err = s.Blocks().GetBlock(ctx, principal)
	require.NoError(t, err)
	require.True(t, got.Until.Equal(block.Until))

	// Blocks are keyed by principal
	_, err = s.Blocks().GetBlock(ctx, principal+"-other")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Housekeeping leaves active blocks alone
	require.NoError(t, s.Blocks().DeleteExpiredBlocks(ctx, now))
	_, err = s.Blocks().GetBlock(ctx, principal)
	require.NoError(t, err)

	require.NoError(t, s.Blocks().DeleteBlock(ctx, principal))
	_, err = s.Blocks().GetBlock(ctx, principal)
	require.ErrorIs(t, err, store.ErrNotFound)

	// A lapsed block is either gone or reported inactive, and housekeeping removes it
	lapsed := domain.Block{Principal: principal, Until: now.Add(-time.Second), CreatedAt: now.Add(-time.Minute)}
	require.NoError(t, s.Blocks().PutBlock(ctx, lapsed))
	if got, err := s.Blocks().GetBlock(ctx, principal); err == nil {
		require.False(t, got.Active(now))
	} else {
		require.ErrorIs(t, err, store.ErrNotFound)
	}
	require.NoError(t, s.Blocks().DeleteExpiredBlocks(ctx, now))
	_, err = s.Blocks().GetBlock(ctx, principal)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testOutcomes(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	principal := "outcomes-" + idx.New().String()

	records := []domain.OutcomeRecord{
		{Outcome: domain.OutcomeCancelled, Attempts: 0, Resends: 1},
		{Outcome: domain.OutcomeBlocked, Attempts: 3, Resends: 0},
		{Outcome: domain.OutcomeVerified, Attempts: 2, Resends: 0},
	}
	for i := range records {
		records[i].ID = idx.New().String()
		records[i].SessionID = idx.New().String()
		records[i].Principal = principal
		records[i].StartedAt = now.Add(time.Duration(i) * time.Minute)
		records[i].EndedAt = records[i].StartedAt.Add(30 * time.Second)
		require.NoError(t, s.Outcomes().RecordOutcome(ctx, records[i]))
	}

	// Newest first
	got, err := s.Outcomes().ListOutcomes(ctx, principal, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, records[2].ID, got[0].ID)
	require.Equal(t, domain.OutcomeVerified, got[0].Outcome)
	require.Equal(t, 2, got[0].Attempts)
	require.True(t, got[0].EndedAt.Equal(records[2].EndedAt))
	require.Equal(t, records[0].ID, got[2].ID)
	require.Equal(t, 1, got[2].Resends)

	limited, err := s.Outcomes().ListOutcomes(ctx, principal, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)

	other, err := s.Outcomes().ListOutcomes(ctx, principal+"-other", 0)
	require.NoError(t, err)
	require.Empty(t, other)

	require.NoError(t, s.Outcomes().DeleteOutcomesBefore(ctx, now.Add(-time.Hour)))
	got, err = s.Outcomes().ListOutcomes(ctx, principal, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
}
