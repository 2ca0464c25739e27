// Package secrets seals account credentials at rest.
//
// Stored passwords and session cookies are encrypted with NaCl secretbox
// using a 32-byte key from the configuration. Sealed values are
// base64-encoded with the nonce prepended.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

var (
	ErrInvalidKey        = errors.New("secrets: key must be 32 bytes (64 hex characters)")
	ErrCiphertextInvalid = errors.New("secrets: ciphertext is invalid or key mismatch")
)

const nonceSize = 24

// Box seals and opens short secret strings with a fixed key
type Box struct {
	key [32]byte
}

// NewBox creates a Box from a hex-encoded 32-byte key
func NewBox(hexKey string) (*Box, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidKey
	}
	b := &Box{}
	copy(b.key[:], raw)
	return b, nil
}

// GenerateKey returns a fresh hex-encoded key suitable for the config file
func GenerateKey() (string, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return hex.EncodeToString(key[:]), nil
}

// Seal encrypts a plaintext value. Empty input stays empty so optional
// columns round-trip without noise.
func (b *Box) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal
func (b *Box) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize {
		return "", ErrCiphertextInvalid
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrCiphertextInvalid
	}
	return string(plaintext), nil
}
