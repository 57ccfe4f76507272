package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aussiebroadwan/otpgate/internal/otp/domain"
	"github.com/aussiebroadwan/otpgate/internal/otp/store"
	goredis "github.com/redis/go-redis/v9"
)

const (
	fieldUntil   = "until_ns"
	fieldCreated = "created_ns"
)

type blocksRepo struct {
	client *goredis.Client
}

func (r *blocksRepo) GetBlock(ctx context.Context, principal string) (domain.Block, error) {
	vals, err := r.client.HGetAll(ctx, blockPrefix+principal).Result()
	if err != nil {
		return domain.Block{}, err
	}
	if len(vals) == 0 {
		return domain.Block{}, store.ErrNotFound
	}

	until, err := strconv.ParseInt(vals[fieldUntil], 10, 64)
	if err != nil {
		return domain.Block{}, errors.New("redis: corrupt block entry")
	}
	created, _ := strconv.ParseInt(vals[fieldCreated], 10, 64)

	return domain.Block{
		Principal: principal,
		Until:     time.Unix(0, until).UTC(),
		CreatedAt: time.Unix(0, created).UTC(),
	}, nil
}

// PutBlock writes the block hash and lets Redis expire it at Until, so no
// housekeeping is needed for this driver.
func (r *blocksRepo) PutBlock(ctx context.Context, b domain.Block) error {
	key := blockPrefix + b.Principal

	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldUntil, strconv.FormatInt(b.Until.UnixNano(), 10),
			fieldCreated, strconv.FormatInt(b.CreatedAt.UnixNano(), 10),
		)
		pipe.PExpireAt(ctx, key, b.Until)
		return nil
	})
	return err
}

func (r *blocksRepo) DeleteBlock(ctx context.Context, principal string) error {
	return r.client.Del(ctx, blockPrefix+principal).Err()
}

// DeleteExpiredBlocks is a no-op: keys carry their own expiry.
func (r *blocksRepo) DeleteExpiredBlocks(context.Context, time.Time) error {
	return nil
}
