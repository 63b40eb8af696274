// Package common defines shared constants and sentinel errors used across
// the passkeeper client layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Validation errors: malformed input detected before any work is done.
	// Always local and fatal to the call, never retried.
	ErrValidation = errors.New("validation error")

	// Crypto/envelope errors. ErrDecryptionFailed means the ciphertext could
	// not be opened (wrong key, corrupt data, auth-tag mismatch).
	// ErrDeserializationFailed means the plaintext or wire form was not in the
	// expected structured format.
	ErrDecryptionFailed      = errors.New("decryption failed")
	ErrDeserializationFailed = errors.New("deserialization failed")

	// Transport errors mapped from the webservice.
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrRequestFailed = errors.New("request failed")
	ErrTimeout       = errors.New("request timed out")

	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// State errors: programming-contract violations (uninitialized session,
	// saving a read-only item, mismatched differencing inputs). Fatal,
	// surfaced immediately, never swallowed.
	ErrInvalidState = errors.New("invalid state")
	ErrReadOnly     = errors.New("read-only access")
)
