// Package cryptobox seals small JSON documents with XChaCha20-Poly1305.
package cryptobox

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

const keySalt = "nimbus/chat-session/v1"

// Box encrypts and decrypts values with a single process-wide key.
type Box struct {
	aead cipher.AEAD
}

// New returns a Box for a 32-byte key.
func New(key []byte) (*Box, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Box{aead: aead}, nil
}

// KeyFromSecret turns configuration into key bytes.
//
// A base64 (standard or URL alphabet) encoding of exactly 32 bytes is used
// as-is. Anything else is treated as a passphrase and stretched with Argon2id
// over a fixed salt, so the same secret always yields the same key.
func KeyFromSecret(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("empty encryption secret")
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(secret); err == nil && len(b) == chacha20poly1305.KeySize {
			return b, nil
		}
	}
	return argon2.IDKey([]byte(secret), []byte(keySalt), 1, 64*1024, 4, chacha20poly1305.KeySize), nil
}

// Seal returns nonce || ciphertext. Every call draws a fresh random nonce.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return b.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (b *Box) Open(sealed []byte) ([]byte, error) {
	n := b.aead.NonceSize()
	if len(sealed) < n+1 {
		return nil, ErrCiphertextTooShort
	}
	return b.aead.Open(nil, sealed[:n], sealed[n:], nil)
}

// SealJSON marshals v and seals the result.
func (b *Box) SealJSON(v any) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b.Seal(plaintext)
}

// OpenJSON opens sealed and unmarshals the plaintext into v.
func (b *Box) OpenJSON(sealed []byte, v any) error {
	plaintext, err := b.Open(sealed)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}
