package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/otpgate/internal/otp/domain"
	"github.com/aussiebroadwan/otpgate/internal/otp/store"
	"github.com/aussiebroadwan/otpgate/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSession_WrongThenRightGuess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultPolicy(), scriptedRandom("482913"))

	sess, res, err := f.verifier.Start(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeIssued, res.Outcome)
	require.Equal(t, "482913", f.deliverer.last())
	require.Equal(t, domain.StateAwaitingInput, sess.State())

	f.at(10)
	res, err = sess.Submit(ctx, "000000")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeRejected, res.Outcome)
	require.Equal(t, 1, res.AttemptsUsed)
	require.Equal(t, 2, res.AttemptsRemaining)
	require.NoError(t, res.Err())

	f.at(20)
	res, err = sess.Submit(ctx, "482913")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeVerified, res.Outcome)
	require.Equal(t, domain.StateVerified, sess.State())

	// Verified is terminal
	_, err = sess.Submit(ctx, "482913")
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_ExhaustedAttemptsBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultPolicy(), scriptedRandom("482913"))

	sess, _, err := f.verifier.Start(ctx, "alice")
	require.NoError(t, err)

	for _, at := range []float64{5, 10} {
		f.at(at)
		res, err := sess.Submit(ctx, "111111")
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeRejected, res.Outcome)
	}

	f.at(15)
	res, err := sess.Submit(ctx, "222222")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeBlocked, res.Outcome)
	require.Equal(t, domain.StateBlocked, sess.State())
	require.Equal(t, t0.Add(135*time.Second), sess.BlockedUntil())
	require.Equal(t, 120*time.Second, res.BlockedFor)
	require.ErrorIs(t, res.Err(), ErrAttemptsExhausted)
	require.Equal(t, 3, f.issuer.verifies)

	// Further guesses, even correct ones, are refused without a comparison
	res, err = sess.Submit(ctx, "482913")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeBlocked, res.Outcome)
	require.Equal(t, 3, f.issuer.verifies)
	require.Equal(t, 3, sess.AttemptsUsed())

	// The block is persisted for the principal
	block, err := f.store.Blocks().GetBlock(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, t0.Add(135*time.Second), block.Until)

	outcomes, err := f.store.Outcomes().ListOutcomes(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, domain.OutcomeBlocked, outcomes[0].Outcome)
	require.Equal(t, 3, outcomes[0].Attempts)
}

func TestSession_BlockOutlivesSession(t *testing.T) {
	ctx := context.Background()
	policy := DefaultPolicy()
	policy.MaxAttempts = 1
	f := newFixture(t, policy, scriptedRandom("482913"))

	sess, _, err := f.verifier.Start(ctx, "alice")
	require.NoError(t, err)
	f.at(15)
	res, err := sess.Submit(ctx, "000000")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeBlocked, res.Outcome)
	sent := f.deliverer.count()

	// A new session inside the window is refused and nothing is sent
	f.at(100)
	blocked, res, err := f.verifier.Start(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, domain.StateBlocked, blocked.State())
	require.Equal(t, domain.OutcomeBlocked, res.Outcome)
	require.Equal(t, 35*time.Second, res.BlockedFor)
	require.Equal(t, sent, f.deliverer.count())

	// Other principals are unaffected
	other, res, err := f.verifier.Start(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, domain.StateAwaitingInput, other.State())
	require.Equal(t, domain.OutcomeIssued, res.Outcome)

	// Once the window passes the principal may try again
	f.at(135)
	again, res, err := f.verifier.Start(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, domain.StateAwaitingInput, again.State())
	require.Equal(t, domain.OutcomeIssued, res.Outcome)
}

func TestSession_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	const eps = time.Millisecond

	t.Run("accepted just before expiry", func(t *testing.T) {
		f := newFixture(t, DefaultPolicy(), scriptedRandom("482913"))
		sess, _, err := f.verifier.Start(ctx, "alice")
		require.NoError(t, err)

		f.clock.Set(t0.Add(60*time.Second - eps))
		res, err := sess.Submit(ctx, "482913")
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeVerified, res.Outcome)
	})

	t.Run("accepted exactly at expiry", func(t *testing.T) {
		f := newFixture(t, DefaultPolicy(), scriptedRandom("482913"))
		sess, _, err := f.verifier.Start(ctx, "alice")
		require.NoError(t, err)

		f.at(60)
		res, err := sess.Submit(ctx, "482913")
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeVerified, res.Outcome)
	})

	t.Run("rejected just after expiry", func(t *testing.T) {
		f := newFixture(t, DefaultPolicy(), scriptedRandom("482913"))
		sess, _, err := f.verifier.Start(ctx, "alice")
		require.NoError(t, err)

		f.clock.Set(t0.Add(60*time.Second + eps))
		res, err := sess.Submit(ctx, "482913")
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeExpired, res.Outcome)
		require.ErrorIs(t, res.Err(), ErrExpired)
	})
}

func TestSession_ExpiredBeforeComparing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultPolicy(), scriptedRandom("482913"))

	sess, _, err := f.verifier.Start(ctx, "alice")
	require.NoError(t, err)

	f.at(61)
	for _, guess := range []string{"482913", "000000", "garbage"} {
		res, err := sess.Submit(ctx, guess)
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeExpired, res.Outcome)
		require.Equal(t, domain.StateExpired, sess.State())
	}

	require.Zero(t, f.issuer.verifies, "expired guesses must not be compared")
	require.Zero(t, sess.AttemptsUsed())
}

func TestSession_CheckExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultPolicy(), nil)

	sess, _, err := f.verifier.Start(ctx, "alice")
	require.NoError(t, err)

	f.at(30)
	_, expired := sess.CheckExpiry()
	require.False(t, expired)
	require.Equal(t, 30*time.Second, sess.TimeRemaining())

	f.at(61)
	res, expired := sess.CheckExpiry()
	require.True(t, expired)
	require.Equal(t, domain.OutcomeExpired, res.Outcome)
	require.Zero(t, sess.TimeRemaining())

	// Only the first check transitions
	_, expired = sess.CheckExpiry()
	require.False(t, expired)
}

func TestSession_ResendInvalidatesOldCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultPolicy(), scriptedRandom("482913", "111111"))

	sess, _, err := f.verifier.Start(ctx, "alice")
	require.NoError(t, err)
	old := sess.Credential()

	f.at(5)
	res, err := sess.Submit(ctx, "000000")
	require.NoError(t, err)
	require.Equal(t, 1, res.AttemptsUsed)

	f.at(10)
	res, err = sess.Submit(ctx, " RESEND ")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeResent, res.Outcome)
	require.Equal(t, "111111", f.deliverer.last())
	require.Zero(t, sess.AttemptsUsed(), "attempts reset with the credential")
	require.NotEqual(t, old.Hash(), sess.Credential().Hash())
	require.Equal(t, t0.Add(10*time.Second), sess.Credential().IssuedAt())

	// The old code would have matched before the resend
	res, err = sess.Submit(ctx, "482913")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeRejected, res.Outcome)

	res, err = sess.Submit(ctx, "111111")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeVerified, res.Outcome)

	outcomes, err := f.store.Outcomes().ListOutcomes(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, 1, outcomes[0].Resends)
	require.Equal(t, 2, outcomes[0].Attempts)
}

func TestSession_ResendAfterExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultPolicy(), scriptedRandom("482913", "111111"))

	sess, _, err := f.verifier.Start(ctx, "alice")
	require.NoError(t, err)

	f.at(70)
	res, err := sess.Submit(ctx, "482913")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeExpired, res.Outcome)

	res, err = sess.Resend(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeResent, res.Outcome)
	require.Equal(t, domain.StateAwaitingInput, sess.State())
	require.Equal(t, t0.Add(130*time.Second), res.ExpiresAt)

	f.at(100)
	res, err = sess.Submit(ctx, "111111")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeVerified, res.Outcome)
}

func TestSession_ResendCooldown(t *testing.T) {
	ctx := context.Background()
	policy := DefaultPolicy()
	policy.ResendCooldown = 30 * time.Second
	f := newFixture(t, policy, nil)

	sess, _, err := f.verifier.Start(ctx, "alice")
	require.NoError(t, err)
	first := sess.Credential()

	f.at(10)
	res, err := sess.Resend(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeResendThrottled, res.Outcome)
	require.InDelta(t, float64(20*time.Second), float64(res.RetryAfter), float64(time.Millisecond))
	require.Equal(t, first.Hash(), sess.Credential().Hash(), "throttled resend keeps the credential")
	require.Equal(t, 1, f.deliverer.count())

	f.at(31)
	res, err = sess.Resend(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeResent, res.Outcome)
	require.Equal(t, 2, f.deliverer.count())
}

func TestSession_Cancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultPolicy(), nil)

	sess, _, err := f.verifier.Start(ctx, "alice")
	require.NoError(t, err)

	res, err := sess.Submit(ctx, "cancel")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCancelled, res.Outcome)
	require.ErrorIs(t, res.Err(), ErrCancelled)

	_, err = sess.Submit(ctx, "123456")
	require.ErrorIs(t, err, ErrSessionClosed)
	_, err = sess.Resend(ctx)
	require.ErrorIs(t, err, ErrSessionClosed)
	_, err = sess.Cancel(ctx)
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_MalformedInputConsumesAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultPolicy(), scriptedRandom("482913"))

	sess, _, err := f.verifier.Start(ctx, "alice")
	require.NoError(t, err)

	for i, input := range []string{"abc", ""} {
		res, err := sess.Submit(ctx, input)
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeRejected, res.Outcome)
		require.Equal(t, i+1, res.AttemptsUsed)
	}

	// Surrounding whitespace is trimmed before comparison
	res, err := sess.Submit(ctx, "  482913\t")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeVerified, res.Outcome)
}

func TestVerifier_StartErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid policy", func(t *testing.T) {
		f := newFixture(t, Policy{Expiry: time.Minute}, nil)
		_, _, err := f.verifier.Start(ctx, "alice")
		require.ErrorIs(t, err, ErrInvalidPolicy)
	})

	t.Run("missing principal", func(t *testing.T) {
		f := newFixture(t, DefaultPolicy(), nil)
		_, _, err := f.verifier.Start(ctx, "  ")
		require.Error(t, err)
	})

	t.Run("entropy failure aborts issuance", func(t *testing.T) {
		f := newFixture(t, DefaultPolicy(), failingReader{})
		_, _, err := f.verifier.Start(ctx, "alice")
		require.ErrorIs(t, err, cryptox.ErrInsufficientEntropy)
		require.Zero(t, f.deliverer.count())
	})
}

func TestVerifier_BlockLookupIgnoresLapsedBlocks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, DefaultPolicy(), nil)

	require.NoError(t, f.store.Blocks().PutBlock(ctx, domain.Block{Principal: "alice", Until: t0.Add(-time.Second)}))

	sess, res, err := f.verifier.Start(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeIssued, res.Outcome)
	require.Equal(t, domain.StateAwaitingInput, sess.State())

	_, err = f.store.Blocks().GetBlock(ctx, "bob")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	bad := []Policy{
		{Expiry: 0, MaxAttempts: 3},
		{Expiry: time.Minute, MaxAttempts: 0},
		{Expiry: time.Minute, MaxAttempts: 3, BlockFor: -time.Second},
		{Expiry: time.Minute, MaxAttempts: 3, ResendCooldown: -time.Second},
	}
	for _, p := range bad {
		require.ErrorIs(t, p.Validate(), ErrInvalidPolicy)
	}
}
