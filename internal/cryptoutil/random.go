// Package cryptoutil implements the dual-layer AEAD scheme and key
// derivation functions that back myst's master and fragment encryption
// layers (spec.md §4.2).
package cryptoutil

import "crypto/rand"

// GenerateRandom returns n cryptographically secure random bytes.
func GenerateRandom(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
