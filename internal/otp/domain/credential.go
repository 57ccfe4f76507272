package domain

import (
	"bytes"
	"time"
)

// Credential is the verifiable state of one issued code: a salted digest and
// the time it was issued. The plaintext code is never part of it.
//
// A Credential is immutable; reissuing a code replaces it wholesale.
type Credential struct {
	hash     []byte
	salt     []byte
	issuedAt time.Time
}

// NewCredential copies hash and salt so later mutation of the caller's
// slices cannot alter the credential.
func NewCredential(hash, salt []byte, issuedAt time.Time) Credential {
	return Credential{
		hash:     bytes.Clone(hash),
		salt:     bytes.Clone(salt),
		issuedAt: issuedAt,
	}
}

func (c Credential) Hash() []byte        { return bytes.Clone(c.hash) }
func (c Credential) Salt() []byte        { return bytes.Clone(c.salt) }
func (c Credential) IssuedAt() time.Time { return c.issuedAt }

// IsZero reports whether the credential was never issued.
func (c Credential) IsZero() bool { return len(c.hash) == 0 }

// ExpiresAt is the last instant at which a guess is still judged in time.
func (c Credential) ExpiresAt(ttl time.Duration) time.Time {
	return c.issuedAt.Add(ttl)
}

// Expired reports whether more than ttl has elapsed since issuance.
// A guess at exactly issuedAt+ttl is still valid.
func (c Credential) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.issuedAt) > ttl
}
