// Package crypto derives purpose-bound keys from the operator's master key
// and seals export snapshots.
// It implements a two-tier key hierarchy:
// - Master key: 32 random bytes supplied as DATABASE_KEY (64 hex characters)
// - Purpose keys: Derived from the master key using HKDF-SHA256, one per use
// (the SQLCipher page key, the export sealing key), so the raw master key
// never reaches a cipher directly.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of master and derived keys in bytes (256 bits)
	KeySize = 32

	// NonceSize is the size of the AES-GCM nonce in bytes (96 bits)
	NonceSize = 12

	// tagSize is the AES-GCM authentication tag size
	tagSize = 16
)

// Key purposes. The version is part of the HKDF info so a rotation can
// derive fresh keys from the same master.
const (
	PurposeDatabase = "database"
	PurposeExport   = "export"
)

var (
	// ErrInvalidMasterKey is returned when the master key is not 64 hex characters.
	ErrInvalidMasterKey = errors.New("master key must be 64 hex characters")

	// ErrSealedTooShort is returned when sealed data cannot hold a nonce and tag.
	ErrSealedTooShort = errors.New("sealed data too short")
)

// ParseMasterKey decodes a hex master key.
func ParseMasterKey(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || len(raw) != KeySize {
		return nil, ErrInvalidMasterKey
	}
	return raw, nil
}

// DeriveKey derives a purpose key from a master key using HKDF-SHA256.
// info = "linknotes:" + purpose + ":v" + version
func DeriveKey(masterKey []byte, purpose string, version int) []byte {
	info := fmt.Sprintf("linknotes:%s:v%d", purpose, version)

	// Salt is nil - the master key is already uniformly random
	hkdfReader := hkdf.New(sha256.New, masterKey, nil, []byte(info))

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		// HKDF cannot run short of output for 32 bytes
		panic(fmt.Sprintf("HKDF failed: %v", err))
	}
	return key
}

// DatabaseKeyHex turns a hex master key into the hex SQLCipher key for the
// notes database. An empty master key yields "" (unencrypted database).
func DatabaseKeyHex(masterHex string) (string, error) {
	if strings.TrimSpace(masterHex) == "" {
		return "", nil
	}
	master, err := ParseMasterKey(masterHex)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(DeriveKey(master, PurposeDatabase, 1)), nil
}

// GenerateKey returns a new random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext using AES-256-GCM with the provided key.
// The nonce is randomly generated and prepended to the ciphertext.
// Output format: nonce (12 bytes) || ciphertext || auth tag (16 bytes)
//
// aad is authenticated but not encrypted; Open must be given the same value.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends to nonce, giving nonce || ciphertext || tag
	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts data produced by Seal.
func Open(key, sealed, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < NonceSize+tagSize {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrSealedTooShort, len(sealed), NonceSize+tagSize)
	}

	plaintext, err := gcm.Open(nil, sealed[:NonceSize], sealed[NonceSize:], aad)
	if err != nil {
		return nil, fmt.Errorf("failed to open sealed data: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
