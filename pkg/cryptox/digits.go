package cryptox

import (
	"errors"
	"fmt"
	"io"
)

// digitCutoff is the largest multiple of 10 that fits in a byte. Bytes at or
// above it are discarded so every digit is equally likely.
const digitCutoff = 250

var ErrInvalidLength = errors.New("cryptox: invalid digit length")

// GenerateDigitsFrom returns a string of length uniformly random decimal
// digits read from r, normally crypto/rand.
func GenerateDigitsFrom(r io.Reader, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("%w: must be positive, got %d", ErrInvalidLength, length)
	}

	out := make([]byte, 0, length)
	for len(out) < length {
		// Over-read a little so a rejected byte rarely costs another read.
		buf, err := RandomBytes(r, length-len(out)+2)
		if err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= digitCutoff {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == length {
				break
			}
		}
	}

	return string(out), nil
}

// IsDigits reports whether s is non-empty and made only of ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
