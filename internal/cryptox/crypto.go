// Package cryptox implements the primitive crypto layer: AES-256-GCM
// authenticated encryption, RSA-2048-OAEP public-key encryption, PBKDF2
// password-based key derivation and secure random generation.
//
// All length checks happen before any cryptographic work. Failures are
// reported via the sentinel errors in internal/common so callers can
// distinguish validation problems from genuine decryption failures.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

const (
	// SymmetricKeyLength is the AES-256 key size in bytes.
	SymmetricKeyLength = 32

	// IVLength is the GCM nonce size in bytes (96 bits).
	IVLength = 12

	// TagLength is the GCM authentication tag size in bytes (128 bits).
	TagLength = 16

	// AsymmetricKeyBits is the RSA modulus size.
	AsymmetricKeyBits = 2048
)

// GenerateSymmetricKey returns a fresh random AES-256 key.
func GenerateSymmetricKey() ([]byte, error) {
	return common.GenerateRandBytes(SymmetricKeyLength)
}

// GenerateIV returns a fresh random 96-bit GCM nonce. A new IV must be
// generated for every encryption under the same key.
func GenerateIV() ([]byte, error) {
	return common.GenerateRandBytes(IVLength)
}

func validateSymmetricParams(key, iv []byte) error {
	if len(key) != SymmetricKeyLength {
		return fmt.Errorf("%w: invalid key length %d bits, expected %d",
			common.ErrValidation, len(key)*8, SymmetricKeyLength*8)
	}
	if len(iv) != IVLength {
		return fmt.Errorf("%w: invalid initialization vector length %d bits, expected %d",
			common.ErrValidation, len(iv)*8, IVLength*8)
	}
	return nil
}

// EncryptAESGCM encrypts plaintext with AES-256-GCM. The key must be 256 bits
// and the IV 96 bits; the returned ciphertext carries the 128-bit tag.
func EncryptAESGCM(key, iv, plaintext []byte) ([]byte, error) {
	if err := validateSymmetricParams(key, iv); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init failed: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init failed: %w", err)
	}

	return aesgcm.Seal(nil, iv, plaintext, nil), nil
}

// DecryptAESGCM decrypts AES-256-GCM ciphertext. An auth-tag mismatch or
// corrupt ciphertext surfaces as common.ErrDecryptionFailed, never as partial
// plaintext.
func DecryptAESGCM(key, iv, ciphertext []byte) ([]byte, error) {
	if err := validateSymmetricParams(key, iv); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init failed: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init failed: %w", err)
	}

	plaintext, err := aesgcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// GenerateAsymmetricKeyPair returns a fresh RSA-2048 key pair.
func GenerateAsymmetricKeyPair() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, AsymmetricKeyBits)
}

// EncryptRSAOAEP encrypts plaintext under the given public key using
// RSA-OAEP with SHA-256.
func EncryptRSAOAEP(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: nil public key", common.ErrValidation)
	}
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("oaep encryption failed: %w", err)
	}
	return ciphertext, nil
}

// DecryptRSAOAEP decrypts RSA-OAEP ciphertext with the given private key.
// Any decryption failure surfaces as common.ErrDecryptionFailed.
func DecryptRSAOAEP(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: nil private key", common.ErrValidation)
	}
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// NormalizePassword brings a password into the canonical byte form used for
// key derivation: surrounding whitespace is trimmed and the result is NFKD
// normalized, so the same logical password derives the same key on every
// platform.
func NormalizePassword(password string) []byte {
	return []byte(norm.NFKD.String(strings.TrimSpace(password)))
}

// DeriveKeyPBKDF2 derives keyLength bytes from the normalized password using
// PBKDF2-HMAC-SHA256 with the given salt and iteration count.
func DeriveKeyPBKDF2(password string, salt []byte, iterationCount, keyLength int) ([]byte, error) {
	if iterationCount <= 0 || keyLength <= 0 {
		return nil, fmt.Errorf("%w: iteration count and key length must be positive", common.ErrValidation)
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: empty salt", common.ErrValidation)
	}
	normalized := NormalizePassword(password)
	defer common.Wipe(normalized)
	return pbkdf2.Key(normalized, salt, iterationCount, keyLength, sha256.New), nil
}
