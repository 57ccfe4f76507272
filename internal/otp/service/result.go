package service

import (
	"fmt"
	"math"
	"time"

	"github.com/aussiebroadwan/otpgate/internal/otp/domain"
)

// Result describes what one step of a session produced. Expected branches
// such as a wrong guess or an expired code are Results, not errors.
type Result struct {
	Outcome           domain.Outcome
	State             domain.SessionState
	AttemptsUsed      int
	AttemptsRemaining int
	ValidFor          time.Duration // lifetime of the current credential
	ExpiresAt         time.Time
	BlockedUntil      time.Time
	BlockedFor        time.Duration // time left on the block when the result was produced
	RetryAfter        time.Duration // resend cooldown still to wait
}

// Err maps outcomes that end or interrupt verification to their sentinel.
func (r Result) Err() error {
	switch r.Outcome {
	case domain.OutcomeExpired:
		return ErrExpired
	case domain.OutcomeBlocked:
		return ErrAttemptsExhausted
	case domain.OutcomeCancelled:
		return ErrCancelled
	default:
		return nil
	}
}

// Message is the user-facing text. Every outcome gets a distinct message so
// the user always learns why verification did not succeed.
func (r Result) Message() string {
	switch r.Outcome {
	case domain.OutcomeIssued:
		return fmt.Sprintf("OTP sent. It is valid for %s. You have %d attempt(s).",
			humanSeconds(r.ValidFor), r.AttemptsRemaining)
	case domain.OutcomeResent:
		return fmt.Sprintf("A new OTP has been sent. It is valid for %s. You have %d attempt(s).",
			humanSeconds(r.ValidFor), r.AttemptsRemaining)
	case domain.OutcomeResendThrottled:
		return fmt.Sprintf("Please wait %s before requesting another OTP.", humanSeconds(r.RetryAfter))
	case domain.OutcomeRejected:
		return fmt.Sprintf("Incorrect OTP. You have %d attempt(s) left.", r.AttemptsRemaining)
	case domain.OutcomeExpired:
		return "OTP expired. Request a new one to continue."
	case domain.OutcomeVerified:
		return "OTP verified successfully. Access granted."
	case domain.OutcomeBlocked:
		if r.AttemptsUsed > 0 {
			return fmt.Sprintf("Incorrect OTP. No attempts left. Verification is blocked for %s.",
				humanSeconds(r.BlockedFor))
		}
		return fmt.Sprintf("Too many failed attempts. Verification is blocked for another %s.",
			humanSeconds(r.BlockedFor))
	case domain.OutcomeCancelled:
		return "Verification cancelled."
	default:
		return ""
	}
}

func humanSeconds(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(math.Ceil(max(d, 0).Seconds())))
}
