package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/passkeeper/internal/common"
)

// RegisterRemote creates an account on the server: the full key hierarchy is
// generated client side and pushed together with the authentication hash, so
// the server never receives the master password or any unwrapped key.
// Registration requires a valid invitation code and does not log in; the
// caller follows up with LoginRemote.
func (m *Manager) RegisterRemote(ctx context.Context, serverURL, invitationCode, username, password, fullName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoggedOut {
		return fmt.Errorf("%w: session is %s", common.ErrInvalidState, m.state)
	}
	if strings.TrimSpace(invitationCode) == "" {
		return fmt.Errorf("%w: blank invitation code", common.ErrValidation)
	}

	authHash, err := DeriveAuthenticationHash(username, password)
	if err != nil {
		return err
	}

	user, err := buildLocalUser(username, authHash, password)
	if err != nil {
		return err
	}
	user.FullName = fullName

	client, err := m.clientFactory(serverURL, username, authHash)
	if err != nil {
		return fmt.Errorf("creating webservice: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Register(ctx, invitationCode, user); err != nil {
		return fmt.Errorf("registering: %w", err)
	}
	m.log.Info(ctx, "registration succeeded", "username", username)
	return nil
}
