package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/otpgate/internal/otp/domain"
)

var (
	ErrNotFound = errors.New("store: not found")
)

// Store is the root data access interface. Concrete drivers (memory, sqlite,
// redis) implement this and expose sub-repositories keyed by principal, so
// block state outlives any single verification session.
type Store interface {
	Blocks() Blocks
	Outcomes() Outcomes

	// ApplyMigrations prepares the backing schema. Drivers without a schema
	// treat it as a no-op.
	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backend is still reachable.
	Ping(ctx context.Context) error
}

type Blocks interface {
	// GetBlock returns the block recorded for principal, or ErrNotFound.
	// Drivers may return an already expired block; callers check Active.
	GetBlock(ctx context.Context, principal string) (domain.Block, error)

	// PutBlock creates or replaces the block for b.Principal.
	PutBlock(ctx context.Context, b domain.Block) error

	// DeleteBlock lifts a block early (administrative unlock).
	DeleteBlock(ctx context.Context, principal string) error

	// DeleteExpiredBlocks is housekeeping for blocks whose Until <= now.
	DeleteExpiredBlocks(ctx context.Context, now time.Time) error
}

type Outcomes interface {
	// RecordOutcome appends a terminal session outcome.
	RecordOutcome(ctx context.Context, rec domain.OutcomeRecord) error

	// ListOutcomes returns the newest outcomes for principal first.
	ListOutcomes(ctx context.Context, principal string, limit int) ([]domain.OutcomeRecord, error)

	// DeleteOutcomesBefore is housekeeping for records that ended before t.
	DeleteOutcomesBefore(ctx context.Context, t time.Time) error
}
