package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/aussiebroadwan/otpgate/internal/otp/domain"
	"github.com/aussiebroadwan/otpgate/pkg/clock"
	"github.com/aussiebroadwan/otpgate/pkg/cryptox"
)

const (
	DefaultCodeLength = 6
	DefaultSaltSize   = cryptox.SaltSize128
)

// Deliverer hands a plaintext code to its legitimate holder through an
// out-of-band channel (SMS, email, or a debug console in development).
type Deliverer interface {
	Deliver(ctx context.Context, principal string, code string) error
}

// CredentialIssuer mints credentials and checks guesses against them.
type CredentialIssuer interface {
	Issue(ctx context.Context, principal string) (domain.Credential, error)
	Verify(cred domain.Credential, guess string) bool
}

// Issuer generates numeric codes, stores only their salted digest, and
// delivers the plaintext exactly once.
type Issuer struct {
	Length    int             // digits per code (default: 6)
	SaltSize  int             // salt bytes per credential (default: 16, min: 8)
	Hasher    *cryptox.Hasher // digest over salt || code
	Deliverer Deliverer
	Clock     clock.Clock
	Random    io.Reader // secure random source (default: crypto/rand)
}

// Generate returns length uniformly random decimal digits.
func (i *Issuer) Generate(length int) (string, error) {
	return cryptox.GenerateDigitsFrom(i.random(), length)
}

// Issue creates a fresh credential for principal and delivers its code.
// Entropy failures are returned wrapped with cryptox.ErrInsufficientEntropy
// and delivery failures with ErrDeliveryFailed; no credential is returned in
// either case.
func (i *Issuer) Issue(ctx context.Context, principal string) (domain.Credential, error) {
	code, err := i.Generate(i.length())
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to generate code: %w", err)
	}

	salt, err := cryptox.GenerateSaltFrom(i.random(), i.saltSize())
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to generate salt: %w", err)
	}

	cred := domain.NewCredential(i.Hasher.Sum(salt, code), salt, i.Clock.Now())

	if err := i.Deliverer.Deliver(ctx, principal, code); err != nil {
		return domain.Credential{}, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	return cred, nil
}

// Verify digests guess under the credential's salt and compares in constant
// time. Guesses that cannot be a code of the configured length never match.
func (i *Issuer) Verify(cred domain.Credential, guess string) bool {
	if cred.IsZero() || len(guess) != i.length() || !cryptox.IsDigits(guess) {
		return false
	}
	return i.Hasher.Verify(cred.Salt(), guess, cred.Hash())
}

func (i *Issuer) length() int {
	if i.Length <= 0 {
		return DefaultCodeLength
	}
	return i.Length
}

func (i *Issuer) saltSize() int {
	if i.SaltSize <= 0 {
		return DefaultSaltSize
	}
	return i.SaltSize
}

func (i *Issuer) random() io.Reader {
	if i.Random == nil {
		return rand.Reader
	}
	return i.Random
}
