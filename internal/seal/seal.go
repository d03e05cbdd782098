// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package seal provides AES-256-GCM encryption for data at rest.
//
// Keys are either generated at random and kept in a key file, or derived
// from a passphrase with PBKDF2-SHA-256 and a salt file. Sealed payloads
// are written as "ENC:" followed by base64(nonce || ciphertext || tag).
package seal

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jeranaias/gatelog/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// EncryptedPrefix marks an armored payload.
	EncryptedPrefix = "ENC:"

	// NonceSize is the AES-GCM nonce size (96 bits).
	NonceSize = 12

	// KeySize is the AES-256 key size.
	KeySize = 32

	// SaltSize is the PBKDF2 salt size.
	SaltSize = 32

	// PBKDF2Iterations follows the OWASP 2023 recommendation for PBKDF2-SHA-256.
	PBKDF2Iterations = 600000

	// KeyFileName and SaltFileName live in the key directory.
	KeyFileName  = "backup.key"
	SaltFileName = "backup.salt"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidCiphertext indicates the payload is not a sealed message.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")

	// ErrDecryptionFailed indicates a wrong key or tampered data.
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
)

// ZeroBytes overwrites key material.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// =============================================================================
// SEALER
// =============================================================================

// Sealer encrypts and decrypts with a single AES-256-GCM key. It is safe for
// concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a sealer from a raw 32-byte key. The key is not retained.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return &Sealer{aead: gcm}, nil
}

// DeriveKey derives a key from a passphrase and salt using PBKDF2-SHA-256.
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, PBKDF2Iterations, KeySize, sha256.New)
}

// LoadOrCreate returns the sealer for keyDir. With a passphrase the key is
// derived from it and a salt file that is created on first use; without one
// a random key file is created on first use.
func LoadOrCreate(keyDir, passphrase string) (*Sealer, error) {
	if passphrase != "" {
		salt, err := loadOrCreateSecret(filepath.Join(keyDir, SaltFileName), SaltSize)
		if err != nil {
			return nil, fmt.Errorf("failed to load salt: %w", err)
		}
		key := DeriveKey(passphrase, salt)
		defer ZeroBytes(key)
		return NewSealer(key)
	}

	key, err := loadOrCreateSecret(filepath.Join(keyDir, KeyFileName), KeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup key: %w", err)
	}
	defer ZeroBytes(key)
	return NewSealer(key)
}

func loadOrCreateSecret(path string, size int) ([]byte, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) != size {
			return nil, fmt.Errorf("%s: expected %d bytes, got %d", path, size, len(data))
		}
		return data, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	secret := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, fmt.Errorf("crypto/rand failed: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, secret, 0600, 0700); err != nil {
		return nil, err
	}
	return secret, nil
}

// Seal encrypts plaintext. Output: nonce || ciphertext || tag.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts the output of Seal.
func (s *Sealer) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize+s.aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}
	nonce, body := ciphertext[:NonceSize], ciphertext[NonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// SealArmored encrypts plaintext and returns the armored file form.
func (s *Sealer) SealArmored(plaintext []byte) ([]byte, error) {
	ciphertext, err := s.Seal(plaintext)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(EncryptedPrefix)+base64.StdEncoding.EncodedLen(len(ciphertext)))
	copy(out, EncryptedPrefix)
	base64.StdEncoding.Encode(out[len(EncryptedPrefix):], ciphertext)
	return out, nil
}

// OpenArmored decrypts the armored file form.
func (s *Sealer) OpenArmored(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, []byte(EncryptedPrefix)) {
		return nil, fmt.Errorf("%w: missing %s prefix", ErrInvalidCiphertext, EncryptedPrefix)
	}
	encoded := bytes.TrimSpace(data[len(EncryptedPrefix):])
	ciphertext := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(ciphertext, encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 encoding: %v", ErrInvalidCiphertext, err)
	}
	return s.Open(ciphertext[:n])
}

// IsArmored reports whether data carries the encrypted prefix.
func IsArmored(data []byte) bool {
	return bytes.HasPrefix(data, []byte(EncryptedPrefix))
}
