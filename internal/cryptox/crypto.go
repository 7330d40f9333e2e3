// Package cryptox holds the vault's cryptographic primitives: master key
// derivation from the user's password, the password verifier, wrapping of
// the vault data key, and the streaming blob cipher used for files at rest.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the length of every symmetric key used by the vault.
	KeySize = 32
	// SaltSize is the length of the random salt fed to DeriveMasterKey.
	SaltSize = 16

	wrapAAD = "filevault:data-key:v1"
)

// ErrDecryptionFailed is the single outcome reported for any failure to
// recover plaintext: unreadable input, corrupt or truncated data, wrong key.
var ErrDecryptionFailed = errors.New("decryption failed")

// MakeVerifier returns the value persisted to check a password without
// storing the key itself.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// CheckVerifier reports whether masterKey matches the stored verifier.
// The comparison runs in constant time.
func CheckVerifier(masterKey, verifier []byte) bool {
	return subtle.ConstantTimeCompare(MakeVerifier(masterKey), verifier) == 1
}

// DeriveMasterKey stretches a password into a KeySize key with argon2id.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}

// RandBytes returns n bytes from the system CSPRNG.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return b, nil
}

// WrapKey seals key under kek with XChaCha20-Poly1305.
//
// The output layout is nonce || ciphertext, so UnwrapKey needs nothing but
// the wrapped bytes and the same kek. A fresh random nonce is drawn for
// every call, which makes repeated wraps of the same key differ.
func WrapKey(kek, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return nil, fmt.Errorf("init key wrap cipher: %w", err)
	}
	nonce, err := RandBytes(aead.NonceSize())
	if err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, key, []byte(wrapAAD)), nil
}

// UnwrapKey reverses WrapKey. Any mismatch yields ErrDecryptionFailed.
func UnwrapKey(kek, wrapped []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return nil, fmt.Errorf("init key wrap cipher: %w", err)
	}
	if len(wrapped) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrDecryptionFailed
	}
	nonce, ct := wrapped[:aead.NonceSize()], wrapped[aead.NonceSize():]
	key, err := aead.Open(nil, nonce, ct, []byte(wrapAAD))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return key, nil
}

// Wipe zeroes b in place. Use it on passwords and keys once they are no
// longer needed.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
