package common

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateRandBytes returns size cryptographically secure random bytes.
func GenerateRandBytes(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// MakeRandHexString generates a random hexadecimal string of the given size.
// The size parameter specifies the number of random bytes generated before
// hex encoding, so the resulting string is twice as long.
func MakeRandHexString(size int) (string, error) {
	b, err := GenerateRandBytes(size)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Wipe overwrites the contents of the provided byte slice with zeros.
// Used to remove passwords and key material from memory after use.
// A nil slice is a no-op.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// IsWiped reports whether every byte of b is zero. An all-zero key is the
// sentinel for "already cleared" and must be rejected by crypto operations.
func IsWiped(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
