package cryptox

import (
	"errors"
	"fmt"
	"io"
)

// Salt size constants (in bytes).
const (
	// SaltSize64 is the smallest salt accepted for code digests.
	SaltSize64 = 8
	// SaltSize128 is the default salt size.
	SaltSize128 = 16
	// SaltSize256 provides 256 bits of salt.
	SaltSize256 = 32
)

// ErrInsufficientEntropy is returned when the random source cannot supply
// enough bytes. Callers must abort rather than fall back to a weaker source.
var ErrInsufficientEntropy = errors.New("cryptox: insufficient entropy")

// RandomBytes reads exactly size bytes from r.
// A short read or reader failure is reported as ErrInsufficientEntropy.
func RandomBytes(r io.Reader, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("random size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInsufficientEntropy, err)
	}

	return buf, nil
}

// GenerateSaltFrom reads a salt of the given size from r. Sizes below
// SaltSize64 are rejected.
func GenerateSaltFrom(r io.Reader, size int) ([]byte, error) {
	if size < SaltSize64 {
		return nil, fmt.Errorf("salt size must be at least %d bytes, got %d", SaltSize64, size)
	}
	return RandomBytes(r, size)
}
