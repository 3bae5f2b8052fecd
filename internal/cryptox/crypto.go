// Package cryptox seals queued submissions at rest.
//
// A key is derived from the storage passphrase with argon2id and used with
// AES-256-GCM. Sealed blobs carry their nonce as a prefix, so callers store
// a single column per value.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/argon2"
)

const (
	KeySize  = 32
	SaltSize = 16
)

var ErrSealedTooShort = errors.New("sealed value is shorter than nonce")

// DeriveKey stretches a passphrase into a KeySize-byte AES key using argon2id.
// Equal inputs always produce equal keys.
func DeriveKey(passphrase []byte, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// RandomBytes returns size bytes from crypto/rand.
func RandomBytes(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Wipe overwrites the contents of b with zeros. A nil slice is ignored.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Sealer encrypts and decrypts values with a fixed AES-GCM key.
// It is safe for concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer. The key must be 16, 24 or 32 bytes.
func NewSealer(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce and returns
// nonce||ciphertext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce, err := RandomBytes(s.aead.NonceSize())
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+s.aead.Overhead())
	out = append(out, nonce...)
	return s.aead.Seal(out, nonce, plaintext, nil), nil
}

// Open reverses Seal. Tampered or truncated input returns an error.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(sealed) < ns {
		return nil, ErrSealedTooShort
	}
	return s.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
}
