package service

import "errors"

var (
	// ErrExpired: the credential outlived its validity window. Recoverable by resend.
	ErrExpired = errors.New("otp expired")
	// ErrAttemptsExhausted: the attempt budget is spent and the principal is blocked.
	ErrAttemptsExhausted = errors.New("otp attempts exhausted")
	// ErrCancelled: the user stopped verification. A normal outcome, not a fault.
	ErrCancelled = errors.New("otp verification cancelled")

	ErrDeliveryFailed = errors.New("otp delivery failed")
	ErrSessionClosed  = errors.New("otp session closed")
	ErrInvalidPolicy  = errors.New("invalid otp policy")
)
