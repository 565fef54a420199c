// Package crypto protects credentials kept on disk. A per-install secret key
// lives next to the database and never leaves the machine.
package crypto

import (
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

const (
	// SecretKeySize is the length of the install secret in bytes.
	SecretKeySize = 32

	secretKeyPEMType = "SWIPECHAT SECRET KEY"
)

// EnsureSecretKey loads the install secret from disk, generating it if absent.
func EnsureSecretKey(path string) ([]byte, error) {
	key, err := LoadSecretKey(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	key, err = GenerateSecretKey()
	if err != nil {
		return nil, err
	}
	if err := SaveSecretKey(path, key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateSecretKey returns SecretKeySize random bytes.
func GenerateSecretKey() ([]byte, error) {
	key := make([]byte, SecretKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate secret key: %w", err)
	}
	return key, nil
}

// LoadSecretKey reads a secret key PEM file.
func LoadSecretKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secret key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("decode secret key PEM: no PEM block")
	}
	if block.Type != secretKeyPEMType {
		return nil, fmt.Errorf("decode secret key PEM: unexpected type %q", block.Type)
	}
	if len(block.Bytes) != SecretKeySize {
		return nil, fmt.Errorf("decode secret key PEM: invalid key size %d", len(block.Bytes))
	}
	return block.Bytes, nil
}

// SaveSecretKey writes a secret key PEM file with 0600 permissions.
func SaveSecretKey(path string, key []byte) error {
	if len(key) != SecretKeySize {
		return fmt.Errorf("invalid secret key length: got %d want %d", len(key), SecretKeySize)
	}
	block := &pem.Block{Type: secretKeyPEMType, Bytes: key}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("write secret key: %w", err)
	}
	return nil
}
