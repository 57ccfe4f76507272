// Package redis stores blocks and outcomes in Redis so several processes
// share one lockout view per principal.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/otpgate/internal/otp/store"
	goredis "github.com/redis/go-redis/v9"
)

const (
	blockPrefix   = "otp:block:"
	outcomePrefix = "otp:outcomes:"

	// maxOutcomes caps the per-principal audit list.
	maxOutcomes = 100
)

type Store struct {
	client *goredis.Client
}

// NewStore connects using a redis:// or rediss:// URL.
func NewStore(ctx context.Context, url string) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewStoreFromClient wraps an existing client.
func NewStoreFromClient(client *goredis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Blocks() store.Blocks     { return &blocksRepo{client: s.client} }
func (s *Store) Outcomes() store.Outcomes { return &outcomesRepo{client: s.client} }

// ApplyMigrations is a no-op; Redis keys need no schema.
func (s *Store) ApplyMigrations() error { return nil }

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
