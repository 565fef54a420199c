package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// sealedPrefix versions the sealed text format: prefix, then base64 of
// nonce followed by AES-256-GCM ciphertext.
const sealedPrefix = "v1:"

// ErrUnsealFailed indicates sealed text that is malformed, tampered with, or
// bound to another key or context.
var ErrUnsealFailed = errors.New("crypto: unseal failed")

// Sealer encrypts short secrets for one purpose. Keys for different
// purposes are derived independently from the install secret.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a purpose key from secret with HKDF-SHA256.
func NewSealer(secret []byte, purpose string) (*Sealer, error) {
	if len(secret) != SecretKeySize {
		return nil, fmt.Errorf("invalid secret key length: got %d want %d", len(secret), SecretKeySize)
	}
	if purpose == "" {
		return nil, errors.New("purpose is required")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte("swipechat/"+purpose)), key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", purpose, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext and binds it to context, which must be presented
// again to Open.
func (s *Sealer) Seal(plaintext, context string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(context))
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed, context string) (string, error) {
	encoded, ok := strings.CutPrefix(sealed, sealedPrefix)
	if !ok {
		return "", fmt.Errorf("%w: unknown format", ErrUnsealFailed)
	}
	raw, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsealFailed, err)
	}
	if len(raw) <= s.aead.NonceSize() {
		return "", fmt.Errorf("%w: truncated", ErrUnsealFailed)
	}

	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(context))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsealFailed, err)
	}
	return string(plaintext), nil
}
