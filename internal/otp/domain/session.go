package domain

import "time"

// SessionState is the position of a verification session in its lifecycle.
type SessionState int

const (
	StateAwaitingInput SessionState = iota
	StateExpired
	StateBlocked
	StateVerified
	StateCancelled
)

func (s SessionState) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateExpired:
		return "expired"
	case StateBlocked:
		return "blocked"
	case StateVerified:
		return "verified"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s SessionState) Terminal() bool {
	return s == StateBlocked || s == StateVerified || s == StateCancelled
}

// Outcome is what a single input-processing step produced.
type Outcome string

const (
	OutcomeIssued          Outcome = "issued"
	OutcomeResent          Outcome = "resent"
	OutcomeResendThrottled Outcome = "resend_throttled"
	OutcomeRejected        Outcome = "rejected"
	OutcomeExpired         Outcome = "expired"
	OutcomeVerified        Outcome = "verified"
	OutcomeBlocked         Outcome = "blocked"
	OutcomeCancelled       Outcome = "cancelled"
)

// Block locks a principal out of verification until Until.
type Block struct {
	Principal string
	Until     time.Time
	CreatedAt time.Time
}

// Active reports whether the block still applies at now.
func (b Block) Active(now time.Time) bool {
	return now.Before(b.Until)
}

// OutcomeRecord is the audit entry written when a session ends.
type OutcomeRecord struct {
	ID        string    // ULID
	SessionID string    // ULID of the session
	Principal string    // user identity the session verified
	Outcome   Outcome   // verified, cancelled or blocked
	Attempts  int       // guesses consumed against the final credential
	Resends   int       // number of reissued credentials
	StartedAt time.Time // session start
	EndedAt   time.Time // terminal transition
}
