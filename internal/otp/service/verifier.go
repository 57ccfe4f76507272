package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/otpgate/internal/otp/domain"
	"github.com/aussiebroadwan/otpgate/internal/otp/store"
	"github.com/aussiebroadwan/otpgate/pkg/clock"
	"github.com/aussiebroadwan/otpgate/pkg/idx"
	"github.com/aussiebroadwan/otpgate/pkg/slogx"
	"golang.org/x/time/rate"
)

// Policy holds the verification limits.
type Policy struct {
	Expiry         time.Duration // credential lifetime (default: 60s)
	MaxAttempts    int           // guesses per credential (default: 3)
	BlockFor       time.Duration // lockout after exhausting attempts (default: 120s)
	ResendCooldown time.Duration // minimum gap between sends, 0 disables
}

// DefaultPolicy matches the documented configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		Expiry:      60 * time.Second,
		MaxAttempts: 3,
		BlockFor:    120 * time.Second,
	}
}

func (p Policy) Validate() error {
	switch {
	case p.Expiry <= 0:
		return fmt.Errorf("%w: expiry must be positive", ErrInvalidPolicy)
	case p.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts must be at least 1", ErrInvalidPolicy)
	case p.BlockFor < 0:
		return fmt.Errorf("%w: block duration must not be negative", ErrInvalidPolicy)
	case p.ResendCooldown < 0:
		return fmt.Errorf("%w: resend cooldown must not be negative", ErrInvalidPolicy)
	}
	return nil
}

// Terminal is the interactive collaborator that supplies raw input lines and
// displays prompts and results. ReadLine must return ctx.Err() once ctx is
// done, even while waiting for input.
type Terminal interface {
	ReadLine(ctx context.Context, prompt string) (string, error)
	Println(msg string) error
}

// Verifier starts verification sessions and drives them against a Terminal.
type Verifier struct {
	Issuer CredentialIssuer
	Store  store.Store
	Clock  clock.Clock
	Policy Policy
	Logger *slog.Logger // optional, defaults to the context logger
}

// Start opens a session for principal. A principal still inside a block
// window gets a session that is already Blocked and no code is issued.
func (v *Verifier) Start(ctx context.Context, principal string) (*Session, Result, error) {
	if err := v.Policy.Validate(); err != nil {
		return nil, Result{}, err
	}
	if strings.TrimSpace(principal) == "" {
		return nil, Result{}, errors.New("principal is required")
	}

	now := v.Clock.Now()
	s := &Session{
		v:         v,
		id:        idx.NewAt(now),
		principal: principal,
		startedAt: now,
		state:     domain.StateAwaitingInput,
	}

	base := v.Logger
	if base == nil {
		base = slogx.FromContext(ctx)
	}
	s.log = slogx.FromContext(slogx.WithSession(slogx.WithContext(ctx, base), s.id.String(), principal))

	block, err := v.Store.Blocks().GetBlock(ctx, principal)
	switch {
	case err == nil && block.Active(now):
		s.state = domain.StateBlocked
		s.blockedUntil = block.Until
		s.log.Warn("otp session refused, principal blocked", "blocked_until", block.Until)
		return s, s.result(domain.OutcomeBlocked), nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, Result{}, fmt.Errorf("failed to check block: %w", err)
	}

	if v.Policy.ResendCooldown > 0 {
		s.resendLimiter = rate.NewLimiter(rate.Every(v.Policy.ResendCooldown), 1)
		// The initial send spends the first token
		s.resendLimiter.AllowN(now, 1)
	}

	cred, err := v.Issuer.Issue(ctx, principal)
	if err != nil {
		return nil, Result{}, fmt.Errorf("failed to issue otp: %w", err)
	}
	s.cred = cred
	s.log.Info("otp issued", "expires_at", cred.ExpiresAt(v.Policy.Expiry))

	return s, s.result(domain.OutcomeIssued), nil
}

// Prompts shown by Run.
const (
	PromptCode   = "Enter the OTP you received (%s left, or 'resend' / 'cancel'): "
	PromptResend = "Send a new OTP? [y/N]: "
)

// Run drives one full verification for principal until it is verified,
// cancelled or blocked. End of input counts as cancellation.
//
// Only infrastructure failures and ctx cancellation are returned as errors;
// the final Result says how verification ended. A line read after ctx is
// done is never submitted.
func (v *Verifier) Run(ctx context.Context, principal string, term Terminal) (Result, error) {
	sess, res, err := v.Start(ctx, principal)
	if err != nil {
		return Result{}, err
	}
	if err := term.Println(res.Message()); err != nil {
		return res, fmt.Errorf("failed to write output: %w", err)
	}

	for !sess.State().Terminal() {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		// Judge expiry before prompting as well as after reading
		if r, expired := sess.CheckExpiry(); expired {
			if err := term.Println(r.Message()); err != nil {
				return r, fmt.Errorf("failed to write output: %w", err)
			}
		}

		var line string
		switch sess.State() {
		case domain.StateExpired:
			line, err = term.ReadLine(ctx, PromptResend)
			if err == nil && !isYes(line) {
				line = CommandCancel
			} else if err == nil {
				line = CommandResend
			}
		default:
			line, err = term.ReadLine(ctx, fmt.Sprintf(PromptCode, humanSeconds(sess.TimeRemaining())))
		}

		// An interrupt wins over whatever was typed
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		if errors.Is(err, io.EOF) {
			line, err = CommandCancel, nil
		}
		if err != nil {
			return res, fmt.Errorf("failed to read input: %w", err)
		}

		res, err = sess.Submit(ctx, line)
		if err != nil {
			return res, err
		}
		if err := term.Println(res.Message()); err != nil {
			return res, fmt.Errorf("failed to write output: %w", err)
		}
	}

	return res, nil
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", CommandResend:
		return true
	default:
		return false
	}
}
