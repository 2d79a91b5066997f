// Package vault encrypts provider API keys with a passphrase-derived AES-256-GCM key.
//
// Blobs are base64(nonce || ciphertext || tag) with a 12-byte nonce and a 16-byte tag.
// The PBKDF2 salt is fixed for the whole installation: the passphrase is the only
// secret boundary, which holds for a single-tenant local deployment only.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2-HMAC-SHA256 work factor.
	Iterations = 100000
	// KeySize is the derived AES key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
)

// salt is shared by every derivation. Changing it invalidates all stored blobs.
var salt = []byte("promptdock-credential-vault-v1")

// ErrDecryption reports a blob that could not be authenticated or parsed.
var ErrDecryption = errors.New("vault: decryption failed")

// ErrEmptySecret reports a missing passphrase.
var ErrEmptySecret = errors.New("vault: empty secret")

// DeriveKey derives the AES-256 key for a passphrase.
func DeriveKey(secret string) []byte {
	return pbkdf2.Key([]byte(secret), salt, Iterations, KeySize, sha256.New)
}

// Encrypt seals plaintext under a key derived from secret.
func Encrypt(plaintext, secret string) (string, error) {
	v, err := New(secret)
	if err != nil {
		return "", err
	}
	return v.Encrypt(plaintext)
}

// Decrypt opens a blob produced by Encrypt.
func Decrypt(blob, secret string) (string, error) {
	v, err := New(secret)
	if err != nil {
		return "", err
	}
	return v.Decrypt(blob)
}

// Vault holds a derived key so repeated operations skip PBKDF2.
type Vault struct {
	aead cipher.AEAD
}

// New derives the key for secret and prepares the AEAD.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return newWithKey(DeriveKey(secret))
}

func newWithKey(key []byte) (*Vault, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: new cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("vault: new gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if v == nil || v.aead == nil {
		return "", fmt.Errorf("vault: not initialized")
	}
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: read nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt verifies and opens blob. Every failure maps to ErrDecryption.
func (v *Vault) Decrypt(blob string) (string, error) {
	if v == nil || v.aead == nil {
		return "", fmt.Errorf("vault: not initialized")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(blob))
	if err != nil {
		return "", ErrDecryption
	}
	if len(data) < NonceSize+TagSize {
		return "", ErrDecryption
	}
	plaintext, err := v.aead.Open(nil, data[:NonceSize], data[NonceSize:], nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}

// Parts are the base64 nonce and tag of a blob, stored next to it for inspection.
type Parts struct {
	IV      string
	AuthTag string
}

// Split extracts the nonce and tag from a blob without decrypting it.
func Split(blob string) (Parts, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(blob))
	if err != nil || len(data) < NonceSize+TagSize {
		return Parts{}, ErrDecryption
	}
	return Parts{
		IV:      base64.StdEncoding.EncodeToString(data[:NonceSize]),
		AuthTag: base64.StdEncoding.EncodeToString(data[len(data)-TagSize:]),
	}, nil
}

// Hint returns the last four characters of a key for display.
func Hint(plaintext string) string {
	trimmed := strings.TrimSpace(plaintext)
	runes := []rune(trimmed)
	if len(runes) <= 4 {
		return strings.Repeat("•", len(runes))
	}
	return "…" + string(runes[len(runes)-4:])
}
