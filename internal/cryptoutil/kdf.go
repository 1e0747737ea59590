package cryptoutil

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// MasterIters is the PBKDF2 iteration count for the master-password
	// path (spec.md §4.2).
	MasterIters = 100_000
	// FragmentIters is the PBKDF2 iteration count for per-fragment key
	// derivation (spec.md §4.2).
	FragmentIters = 10_000

	// MasterSaltLen is the salt length used for password-bound master keys.
	MasterSaltLen = 32
	// FragmentSaltLen is the salt length used for per-fragment keys.
	FragmentSaltLen = 16

	keyLen = 32
)

// DeriveMasterKey derives the 32-byte master AEAD key from a user password
// and salt via PBKDF2-HMAC-SHA256 with MasterIters iterations.
func DeriveMasterKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, MasterIters, keyLen, sha256.New)
}

// DeriveFragmentKey derives the effective 32-byte AEAD key for one fragment
// from its random raw key and per-fragment salt via PBKDF2-HMAC-SHA256 with
// FragmentIters iterations.
func DeriveFragmentKey(rawKey, salt []byte) []byte {
	return pbkdf2.Key(rawKey, salt, FragmentIters, keyLen, sha256.New)
}

// GenerateMasterSalt returns a fresh random salt for the master-password path.
func GenerateMasterSalt() ([]byte, error) {
	return GenerateRandom(MasterSaltLen)
}

// GenerateFragmentSalt returns a fresh random salt for one fragment's key
// derivation.
func GenerateFragmentSalt() ([]byte, error) {
	return GenerateRandom(FragmentSaltLen)
}
