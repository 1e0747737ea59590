package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/ssd-technologies/myst/internal/mysterr"
)

// NonceSize is the AES-GCM nonce length myst actually uses. spec.md §4.2 /
// §9's Open Question: legacy manifests persist a 16-byte IV field for
// forward-compat; only the first NonceSize bytes of that field are the real
// nonce. The manifest codec stores the nonce as given and pads nothing;
// AEADEncrypt/AEADEncryptWithIV produce a 12-byte nonce, and AEADDecrypt
// accepts a 12- or 16-byte field and uses its first NonceSize bytes.
const NonceSize = 12

// TagSize is the AES-GCM authentication tag length.
const TagSize = 16

// KeySize is the AES-256 key length.
const KeySize = 32

// AEADEncrypt seals plaintext under key (must be KeySize bytes) with a fresh
// random nonce. Returns the ciphertext (without the tag), the nonce, and the
// tag separately, matching the manifest's {ciphertext, iv, tag} layout.
// Encryption cannot fail on valid inputs.
func AEADEncrypt(key, plaintext []byte) (ciphertext, nonce, tag []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, nil, err
	}

	nonce, err = GenerateRandom(NonceSize)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ctLen := len(sealed) - gcm.Overhead()
	ciphertext = sealed[:ctLen]
	tag = sealed[ctLen:]
	return ciphertext, nonce, tag, nil
}

// AEADEncryptWithIV seals plaintext under key using a caller-supplied nonce
// (must be NonceSize bytes) instead of generating one internally. Used for
// the fragment layer, where the nonce is generated once by the caller and
// needs to be threaded into both the fragment_id computation and the
// manifest record.
func AEADEncryptWithIV(key, plaintext, nonce []byte) (ciphertext, nonceOut, tag []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(nonce) != NonceSize {
		return nil, nil, nil, fmt.Errorf("cryptoutil: nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ctLen := len(sealed) - gcm.Overhead()
	return sealed[:ctLen], nonce, sealed[ctLen:], nil
}

// AEADDecrypt opens ciphertext+tag under key and nonce. nonce may be 12 or
// 16 bytes; only the first NonceSize bytes are used. On any tag mismatch it
// returns a mysterr AuthenticationFailed error and never returns partial
// plaintext.
func AEADDecrypt(key, nonce, tag, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) < NonceSize {
		return nil, mysterr.AuthenticationFailed(fmt.Errorf("nonce too short: %d bytes", len(nonce)))
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce[:NonceSize], sealed, nil)
	if err != nil {
		return nil, mysterr.AuthenticationFailed(err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cryptoutil: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return gcm, nil
}
