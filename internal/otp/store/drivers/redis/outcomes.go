package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aussiebroadwan/otpgate/internal/otp/domain"
	goredis "github.com/redis/go-redis/v9"
)

type outcomesRepo struct {
	client *goredis.Client
}

type outcomeJSON struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Principal string `json:"principal"`
	Outcome   string `json:"outcome"`
	Attempts  int    `json:"attempts"`
	Resends   int    `json:"resends"`
	StartedNs int64  `json:"started_ns"`
	EndedNs   int64  `json:"ended_ns"`
}

// RecordOutcome pushes onto a per-principal list capped at maxOutcomes.
func (r *outcomesRepo) RecordOutcome(ctx context.Context, rec domain.OutcomeRecord) error {
	data, err := json.Marshal(outcomeJSON{
		ID:        rec.ID,
		SessionID: rec.SessionID,
		Principal: rec.Principal,
		Outcome:   string(rec.Outcome),
		Attempts:  rec.Attempts,
		Resends:   rec.Resends,
		StartedNs: rec.StartedAt.UnixNano(),
		EndedNs:   rec.EndedAt.UnixNano(),
	})
	if err != nil {
		return err
	}

	key := outcomePrefix + rec.Principal
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, maxOutcomes-1)
		return nil
	})
	return err
}

func (r *outcomesRepo) ListOutcomes(ctx context.Context, principal string, limit int) ([]domain.OutcomeRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	raw, err := r.client.LRange(ctx, outcomePrefix+principal, 0, stop).Result()
	if err != nil {
		return nil, err
	}

	out := make([]domain.OutcomeRecord, 0, len(raw))
	for _, item := range raw {
		var o outcomeJSON
		if err := json.Unmarshal([]byte(item), &o); err != nil {
			return nil, err
		}
		out = append(out, domain.OutcomeRecord{
			ID:        o.ID,
			SessionID: o.SessionID,
			Principal: o.Principal,
			Outcome:   domain.Outcome(o.Outcome),
			Attempts:  o.Attempts,
			Resends:   o.Resends,
			StartedAt: time.Unix(0, o.StartedNs).UTC(),
			EndedAt:   time.Unix(0, o.EndedNs).UTC(),
		})
	}
	return out, nil
}

// DeleteOutcomesBefore is a no-op: lists are capped on write instead.
func (r *outcomesRepo) DeleteOutcomesBefore(context.Context, time.Time) error {
	return nil
}
