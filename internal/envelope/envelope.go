// Package envelope implements the AES-256-GCM envelope primitives shared by
// the key vault and the proof engine: PBKDF2 key derivation, detached-tag
// seal/open with additional authenticated data, and the colon-separated hex
// wrap format used for document data keys.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32
	// IVSize is the GCM nonce length (96 bits).
	IVSize = 12
	// TagSize is the GCM authentication tag length.
	TagSize = 16
	// SaltSize is the per-patient salt length.
	SaltSize = 16
)

// ErrMalformed is returned by ParseWrapped for input that is not exactly three
// colon-separated hex parts.
var ErrMalformed = errors.New("malformed envelope string")

// ErrAuthentication is returned when GCM tag verification fails. Decryption
// aborts entirely; partial plaintext is never returned.
var ErrAuthentication = errors.New("envelope authentication failed")

// DeriveKey derives a 256-bit key from the master key and salt using
// PBKDF2-SHA256 with the given iteration count.
func DeriveKey(masterKey, salt []byte, iterations int) []byte {
	return pbkdf2.Key(masterKey, salt, iterations, KeySize, sha256.New)
}

// RandomSalt returns a fresh random per-patient salt.
func RandomSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("salt generation failed: %w", err)
	}
	return salt, nil
}

// RandomKey returns a fresh random 256-bit key.
func RandomKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext under key with a fresh random IV, binding aad into
// the authentication tag. The tag is returned detached from the ciphertext so
// callers can persist the three parts separately.
func Seal(key, plaintext, aad []byte) (iv, ciphertext, tag []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, nil, err
	}
	iv = make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, nil, fmt.Errorf("iv generation failed: %w", err)
	}
	sealed := aead.Seal(nil, iv, plaintext, aad)
	// Seal appends the tag; split it off.
	split := len(sealed) - aead.Overhead()
	return iv, sealed[:split], sealed[split:], nil
}

// Open decrypts a detached-tag envelope, verifying the tag (and aad) before
// any plaintext is returned.
func Open(key, iv, ciphertext, tag, aad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	combined := make([]byte, 0, len(ciphertext)+len(tag))
	combined = append(combined, ciphertext...)
	combined = append(combined, tag...)
	plaintext, err := aead.Open(nil, iv, combined, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	return plaintext, nil
}

// SealB64 encrypts plaintext and returns a single base64 blob of
// iv ‖ ciphertext ‖ tag. Used for proof secret data, where the parts never
// need to be stored separately.
func SealB64(key, plaintext []byte) (string, error) {
	iv, ct, tag, err := Seal(key, plaintext, nil)
	if err != nil {
		return "", err
	}
	blob := make([]byte, 0, len(iv)+len(ct)+len(tag))
	blob = append(blob, iv...)
	blob = append(blob, ct...)
	blob = append(blob, tag...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// OpenB64 decrypts a blob produced by SealB64.
func OpenB64(key []byte, encoded string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(blob) < IVSize+TagSize {
		return nil, fmt.Errorf("%w: blob too short", ErrMalformed)
	}
	iv := blob[:IVSize]
	ct := blob[IVSize : len(blob)-TagSize]
	tag := blob[len(blob)-TagSize:]
	return Open(key, iv, ct, tag, nil)
}

// EncodeWrapped formats a wrapped data key as hex(iv):hex(ciphertext):hex(tag).
func EncodeWrapped(iv, ciphertext, tag []byte) string {
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext) + ":" + hex.EncodeToString(tag)
}

// ParseWrapped splits a wrapped data key string into its three parts. Anything
// other than exactly three colon-separated hex parts fails with ErrMalformed.
func ParseWrapped(wrapped string) (iv, ciphertext, tag []byte, err error) {
	parts := strings.Split(wrapped, ":")
	if len(parts) != 3 {
		return nil, nil, nil, fmt.Errorf("%w: expected 3 colon-separated parts, got %d", ErrMalformed, len(parts))
	}
	iv, err = hex.DecodeString(parts[0])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: iv is not hex", ErrMalformed)
	}
	ciphertext, err = hex.DecodeString(parts[1])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: ciphertext is not hex", ErrMalformed)
	}
	tag, err = hex.DecodeString(parts[2])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: tag is not hex", ErrMalformed)
	}
	return iv, ciphertext, tag, nil
}

// SecretKey derives the AES key a patient's private key material unlocks.
// SHA-256 domain-separates the encryption key from the key material itself.
func SecretKey(privateKey []byte) []byte {
	h := sha256.New()
	h.Write([]byte("medvault/proof-secret/v1"))
	h.Write(privateKey)
	return h.Sum(nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key length: expected %d, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}
