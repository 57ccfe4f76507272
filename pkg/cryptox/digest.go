package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Algorithm names a 256-bit digest used for salted code hashes.
type Algorithm string

const (
	AlgorithmSHA256  Algorithm = "sha256"
	AlgorithmBLAKE2b Algorithm = "blake2b"
)

// DigestSize is the output length of every supported algorithm.
const DigestSize = 32

// ParseAlgorithm maps a configuration string to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case "", AlgorithmSHA256:
		return AlgorithmSHA256, nil
	case AlgorithmBLAKE2b, "blake2b-256":
		return AlgorithmBLAKE2b, nil
	default:
		return "", fmt.Errorf("unsupported digest algorithm %q", s)
	}
}

// Hasher computes salted digests of short secrets such as one-time codes.
// The digest input is salt followed by the code bytes.
type Hasher struct {
	alg Algorithm
	new func() hash.Hash
}

// NewHasher returns a Hasher for alg.
func NewHasher(alg Algorithm) (*Hasher, error) {
	switch alg {
	case AlgorithmSHA256:
		return &Hasher{alg: alg, new: sha256.New}, nil
	case AlgorithmBLAKE2b:
		return &Hasher{alg: alg, new: func() hash.Hash {
			// Unkeyed BLAKE2b never fails to construct
			h, _ := blake2b.New256(nil)
			return h
		}}, nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", alg)
	}
}

// Algorithm returns the algorithm this Hasher uses.
func (h *Hasher) Algorithm() Algorithm { return h.alg }

// Sum returns Digest(salt || code).
func (h *Hasher) Sum(salt []byte, code string) []byte {
	d := h.new()
	d.Write(salt)
	d.Write([]byte(code))
	return d.Sum(nil)
}

// Verify recomputes the digest of code under salt and compares it to expected
// in constant time.
func (h *Hasher) Verify(salt []byte, code string, expected []byte) bool {
	return EqualDigest(h.Sum(salt, code), expected)
}

// EqualDigest compares two digests without leaking where they first differ.
func EqualDigest(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
