// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package secret provides at-rest encryption for provider API keys.
//
// Keys stored in the config file are wrapped as ENC:base64(nonce|ciphertext)
// using AES-256-GCM under a machine-local master key kept in ~/.plume/key.
package secret

import (
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
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/plumeforge/plume-tui/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// EncryptedPrefix marks a value as encrypted.
const EncryptedPrefix = "ENC:"

// KeySize is the AES-256 key size in bytes.
const KeySize = 32

// SaltSize is the key-derivation salt size in bytes.
const SaltSize = 32

// Iterations is the PBKDF2-SHA-256 iteration count.
const Iterations = 600000

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidCiphertext indicates the ciphertext format is invalid.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	// ErrDecryptionFailed indicates a wrong key or tampered data.
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
)

// =============================================================================
// KEYCHAIN
// =============================================================================

// Keychain encrypts and decrypts config values under a master key.
type Keychain struct {
	gcm cipher.AEAD
}

// DefaultKeyPath returns the master key file location.
func DefaultKeyPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".plume", "key"), nil
}

// Open loads the master key from path, creating one on first use.
func Open(path string) (*Keychain, error) {
	key, err := loadOrCreateKey(path)
	if err != nil {
		return nil, err
	}
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init failed: %w", err)
	}
	return &Keychain{gcm: gcm}, nil
}

// OpenDefault opens the keychain at the default key path.
func OpenDefault() (*Keychain, error) {
	path, err := DefaultKeyPath()
	if err != nil {
		return nil, err
	}
	return Open(path)
}

// loadOrCreateKey reads the key file or generates a fresh random key.
// The on-disk format is salt || derived-key-material; deriving through
// PBKDF2 keeps the stored bytes distinct from the cipher key.
func loadOrCreateKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != SaltSize+KeySize {
			return nil, fmt.Errorf("key file %s is corrupt", path)
		}
		salt, material := data[:SaltSize], data[SaltSize:]
		return pbkdf2.Key(material, salt, Iterations, KeySize, sha256.New), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	buf := make([]byte, SaltSize+KeySize)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, fmt.Errorf("entropy unavailable: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, buf, 0600, 0700); err != nil {
		return nil, fmt.Errorf("failed to store key: %w", err)
	}
	salt, material := buf[:SaltSize], buf[SaltSize:]
	return pbkdf2.Key(material, salt, Iterations, KeySize, sha256.New), nil
}

// =============================================================================
// ENCRYPT / DECRYPT
// =============================================================================

// EncryptString encrypts a value and wraps it with the ENC: prefix.
func (k *Keychain) EncryptString(plaintext string) (string, error) {
	nonce := make([]byte, k.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("entropy unavailable: %w", err)
	}
	sealed := k.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString unwraps an ENC:-prefixed value. Plain values pass through
// unchanged so configs can mix encrypted and plaintext keys.
func (k *Keychain) DecryptString(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, EncryptedPrefix))
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	if len(raw) < k.gcm.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	nonce, ciphertext := raw[:k.gcm.NonceSize()], raw[k.gcm.NonceSize():]
	plain, err := k.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// IsEncrypted reports whether a config value carries the ENC: prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}

// zero wipes key material after use.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
