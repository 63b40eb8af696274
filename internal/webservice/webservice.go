// Package webservice defines the authenticated RPC contract the session
// manager depends on, and an HTTP implementation of it.
//
// All operations run over an authenticated transport: a bearer token obtained
// from the password-authenticated token endpoint, auto-refreshed once on 401
// via a re-authentication hook that gives up after one retry to avoid
// infinite loops.
package webservice

import (
	"context"

	"github.com/dmitrijs2005/passkeeper/internal/models"
)

// Client is the abstract remote collaborator.
type Client interface {
	// Register creates a new user account on the server. Registration
	// requires a valid invitation code.
	Register(ctx context.Context, invitationCode string, user *models.User) error

	// GetUsers lists all known users as partial records (secrets omitted).
	GetUsers(ctx context.Context) ([]models.User, error)

	// GetUserDetails fetches the authenticated user's own full record.
	GetUserDetails(ctx context.Context) (*models.User, error)

	// SetUserDetails replaces the authenticated user's own record.
	SetUserDetails(ctx context.Context, user *models.User) error

	// GetUserItems lists the items visible to the authenticated user.
	GetUserItems(ctx context.Context) ([]models.Item, error)

	// SetUserItems pushes changed items upstream.
	SetUserItems(ctx context.Context, items []models.Item) error

	// GetUserItemAuthorizations lists the authorizations visible to the
	// authenticated user.
	GetUserItemAuthorizations(ctx context.Context) ([]models.ItemAuthorization, error)

	// SetUserItemAuthorizations pushes changed authorizations upstream.
	SetUserItemAuthorizations(ctx context.Context, auths []models.ItemAuthorization) error

	// SetCredentials replaces the credentials used by the re-authentication
	// hook (after a master-password change) and drops the cached token.
	SetCredentials(username, masterPasswordAuthenticationHash string)

	// Token returns the current bearer token, if any, so the caller can
	// persist it in the session state.
	Token() string

	// Close releases underlying transport resources.
	Close() error
}
