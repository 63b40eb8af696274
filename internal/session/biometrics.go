package session

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/envelope"
)

// BiometricStorage is the platform biometric capability the session manager
// depends on. Implementations wrap the master password under a key held in
// platform-protected hardware; the default implementation reports the
// capability as unavailable.
type BiometricStorage interface {
	// Available reports whether biometric unlock can be offered.
	Available() bool

	// WrapMasterPassword protects the master password under the platform key.
	WrapMasterPassword(ctx context.Context, masterPassword string) (*envelope.ProtectedValue, error)

	// UnwrapMasterPassword recovers the master password from a wrapped copy.
	UnwrapMasterPassword(ctx context.Context, wrapped *envelope.ProtectedValue) (string, error)

	// Invalidate discards the platform key, making previously wrapped copies
	// permanently unreadable.
	Invalidate(ctx context.Context) error
}

// DisabledBiometricStorage is the default no-capability implementation.
type DisabledBiometricStorage struct{}

func (DisabledBiometricStorage) Available() bool { return false }

func (DisabledBiometricStorage) WrapMasterPassword(context.Context, string) (*envelope.ProtectedValue, error) {
	return nil, fmt.Errorf("%w: biometric storage not available", common.ErrInvalidState)
}

func (DisabledBiometricStorage) UnwrapMasterPassword(context.Context, *envelope.ProtectedValue) (string, error) {
	return "", fmt.Errorf("%w: biometric storage not available", common.ErrInvalidState)
}

func (DisabledBiometricStorage) Invalidate(context.Context) error { return nil }
