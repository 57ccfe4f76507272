package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/otpgate/internal/otp/domain"
	"github.com/aussiebroadwan/otpgate/pkg/idx"
	"golang.org/x/time/rate"
)

// Reserved inputs recognised while awaiting a code.
const (
	CommandResend = "resend"
	CommandCancel = "cancel"
)

// Session is the verification lifecycle for one principal's outstanding
// credential. It is driven by a single goroutine and is not safe for
// concurrent use.
type Session struct {
	v   *Verifier
	log *slog.Logger

	id        idx.ID
	principal string
	startedAt time.Time

	cred         domain.Credential
	state        domain.SessionState
	attemptsUsed int
	resends      int
	blockedUntil time.Time

	// nil when resends are not throttled
	resendLimiter *rate.Limiter
}

func (s *Session) ID() idx.ID                 { return s.id }
func (s *Session) Principal() string          { return s.principal }
func (s *Session) State() domain.SessionState { return s.state }
func (s *Session) AttemptsUsed() int          { return s.attemptsUsed }
func (s *Session) BlockedUntil() time.Time    { return s.blockedUntil }
func (s *Session) Credential() domain.Credential {
	return s.cred
}

func (s *Session) AttemptsRemaining() int {
	return max(s.v.Policy.MaxAttempts-s.attemptsUsed, 0)
}

// TimeRemaining is how long the current credential stays valid.
func (s *Session) TimeRemaining() time.Duration {
	if s.cred.IsZero() {
		return 0
	}
	return max(s.cred.ExpiresAt(s.v.Policy.Expiry).Sub(s.v.Clock.Now()), 0)
}

// CheckExpiry moves an awaiting session to Expired once its credential has
// lapsed. It reports whether that transition happened.
func (s *Session) CheckExpiry() (Result, bool) {
	if s.state != domain.StateAwaitingInput {
		return s.result(""), false
	}
	if !s.cred.Expired(s.v.Clock.Now(), s.v.Policy.Expiry) {
		return s.result(""), false
	}

	s.state = domain.StateExpired
	s.log.Info("otp expired", "attempts_used", s.attemptsUsed)
	return s.result(domain.OutcomeExpired), true
}

// Submit processes one line of user input: a reserved command or a guess.
//
// Expiry is judged at the moment of comparison, so a code typed in time but
// submitted late is still rejected. Malformed input is a wrong guess and
// consumes an attempt. Once blocked, input is refused without hashing.
func (s *Session) Submit(ctx context.Context, input string) (Result, error) {
	switch s.state {
	case domain.StateVerified, domain.StateCancelled:
		return s.result(""), ErrSessionClosed
	case domain.StateBlocked:
		return s.result(domain.OutcomeBlocked), nil
	}

	input = strings.TrimSpace(input)
	switch strings.ToLower(input) {
	case CommandResend:
		return s.Resend(ctx)
	case CommandCancel:
		return s.Cancel(ctx)
	}

	if s.state == domain.StateExpired {
		return s.result(domain.OutcomeExpired), nil
	}
	if res, expired := s.CheckExpiry(); expired {
		return res, nil
	}

	now := s.v.Clock.Now()
	s.attemptsUsed++

	if s.v.Issuer.Verify(s.cred, input) {
		s.state = domain.StateVerified
		s.log.Info("otp verified", "attempts_used", s.attemptsUsed)
		s.finish(ctx, domain.OutcomeVerified, now)
		return s.result(domain.OutcomeVerified), nil
	}

	if s.attemptsUsed < s.v.Policy.MaxAttempts {
		s.log.Info("otp rejected", "attempts_used", s.attemptsUsed, "attempts_remaining", s.AttemptsRemaining())
		return s.result(domain.OutcomeRejected), nil
	}

	s.blockedUntil = now.Add(s.v.Policy.BlockFor)
	s.state = domain.StateBlocked
	s.log.Warn("otp attempts exhausted", "blocked_until", s.blockedUntil)

	block := domain.Block{Principal: s.principal, Until: s.blockedUntil, CreatedAt: now}
	if err := s.v.Store.Blocks().PutBlock(ctx, block); err != nil {
		return s.result(domain.OutcomeBlocked), fmt.Errorf("failed to persist block: %w", err)
	}
	s.finish(ctx, domain.OutcomeBlocked, now)

	return s.result(domain.OutcomeBlocked), nil
}

// Resend replaces the credential with a fresh one and resets the attempt
// counter. The previous code stops matching immediately.
func (s *Session) Resend(ctx context.Context) (Result, error) {
	switch s.state {
	case domain.StateVerified, domain.StateCancelled:
		return s.result(""), ErrSessionClosed
	case domain.StateBlocked:
		return s.result(domain.OutcomeBlocked), nil
	}

	now := s.v.Clock.Now()
	if s.resendLimiter != nil && !s.resendLimiter.AllowN(now, 1) {
		r := s.resendLimiter.ReserveN(now, 1)
		wait := r.DelayFrom(now)
		r.CancelAt(now)

		s.log.Info("otp resend throttled", "retry_after", wait)
		res := s.result(domain.OutcomeResendThrottled)
		res.RetryAfter = wait
		return res, nil
	}

	cred, err := s.v.Issuer.Issue(ctx, s.principal)
	if err != nil {
		return s.result(""), fmt.Errorf("failed to reissue otp: %w", err)
	}

	s.cred = cred
	s.attemptsUsed = 0
	s.resends++
	s.state = domain.StateAwaitingInput
	s.log.Info("otp resent", "resends", s.resends)

	return s.result(domain.OutcomeResent), nil
}

// Cancel ends the session at the user's request.
func (s *Session) Cancel(ctx context.Context) (Result, error) {
	switch s.state {
	case domain.StateVerified, domain.StateCancelled:
		return s.result(""), ErrSessionClosed
	case domain.StateBlocked:
		return s.result(domain.OutcomeBlocked), nil
	}

	s.state = domain.StateCancelled
	s.log.Info("otp verification cancelled")
	s.finish(ctx, domain.OutcomeCancelled, s.v.Clock.Now())

	return s.result(domain.OutcomeCancelled), nil
}

// finish writes the audit record for a terminal transition. A failed write is
// logged only; the outcome itself has already been decided.
func (s *Session) finish(ctx context.Context, outcome domain.Outcome, at time.Time) {
	rec := domain.OutcomeRecord{
		ID:        idx.NewAt(at).String(),
		SessionID: s.id.String(),
		Principal: s.principal,
		Outcome:   outcome,
		Attempts:  s.attemptsUsed,
		Resends:   s.resends,
		StartedAt: s.startedAt,
		EndedAt:   at,
	}
	if err := s.v.Store.Outcomes().RecordOutcome(ctx, rec); err != nil {
		s.log.Error("failed to record session outcome", "outcome", outcome, "error", err)
	}
}

func (s *Session) result(outcome domain.Outcome) Result {
	res := Result{
		Outcome:           outcome,
		State:             s.state,
		AttemptsUsed:      s.attemptsUsed,
		AttemptsRemaining: s.AttemptsRemaining(),
		ValidFor:          s.v.Policy.Expiry,
		BlockedUntil:      s.blockedUntil,
	}
	if !s.cred.IsZero() {
		res.ExpiresAt = s.cred.ExpiresAt(s.v.Policy.Expiry)
	}
	if !s.blockedUntil.IsZero() {
		res.BlockedFor = max(s.blockedUntil.Sub(s.v.Clock.Now()), 0)
	}
	return res
}
