package vault

import (
	"fmt"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/envelope"
	"github.com/dmitrijs2005/passkeeper/internal/models"
	"github.com/google/uuid"
)

// authorizationVariant is the closed set of authorization editing modes.
type authorizationVariant int

const (
	// authorizationExisting mutates the access flags of a stored grant.
	authorizationExisting authorizationVariant = iota

	// authorizationProvisional materializes a brand-new grant, including
	// wrapping the item key under the grantee's public key.
	authorizationProvisional
)

// AuthorizationEditor edits one item authorization. The two variants —
// existing and provisional — expose the same CreateOrUpdateAuthorization
// operation so callers never branch on which one they hold.
type AuthorizationEditor struct {
	variant authorizationVariant

	existing models.ItemAuthorization

	itemID           string
	granteeUserID    string
	granteePublicKey []byte
	itemKey          []byte
}

// NewExistingAuthorizationEditor edits the flags of a stored grant.
func NewExistingAuthorizationEditor(auth models.ItemAuthorization) *AuthorizationEditor {
	return &AuthorizationEditor{variant: authorizationExisting, existing: auth}
}

// NewProvisionalAuthorizationEditor prepares a brand-new grant of item to the
// grantee. itemKey is the raw item key (the caller keeps ownership and wipes
// it); granteePublicKey is the grantee's item-encryption public key in PKIX
// DER form.
func NewProvisionalAuthorizationEditor(itemID, granteeUserID string, granteePublicKey, itemKey []byte) *AuthorizationEditor {
	return &AuthorizationEditor{
		variant:          authorizationProvisional,
		itemID:           itemID,
		granteeUserID:    granteeUserID,
		granteePublicKey: granteePublicKey,
		itemKey:          itemKey,
	}
}

// CreateOrUpdateAuthorization produces the authorization record for the
// requested access: revoked when read is not allowed, read-only when write is
// not allowed. The caller persists the result.
func (e *AuthorizationEditor) CreateOrUpdateAuthorization(isReadAllowed, isWriteAllowed bool) (models.ItemAuthorization, error) {
	now := models.NowMillis()

	switch e.variant {
	case authorizationExisting:
		auth := e.existing
		auth.Deleted = !isReadAllowed
		auth.ReadOnly = !isWriteAllowed
		auth.Modified = now
		return auth, nil

	case authorizationProvisional:
		if !isReadAllowed {
			return models.ItemAuthorization{}, fmt.Errorf(
				"%w: refusing to materialize a revoked authorization", common.ErrValidation)
		}
		wrappedKey, err := envelope.Create(envelope.AlgorithmAsymmetric, e.granteePublicKey,
			models.CryptographicKey{Key: e.itemKey})
		if err != nil {
			return models.ItemAuthorization{}, fmt.Errorf("wrapping item key for grantee: %w", err)
		}
		return models.ItemAuthorization{
			ID:       uuid.NewString(),
			UserID:   e.granteeUserID,
			ItemID:   e.itemID,
			ItemKey:  wrappedKey,
			ReadOnly: !isWriteAllowed,
			Modified: now,
			Created:  now,
		}, nil

	default:
		return models.ItemAuthorization{}, fmt.Errorf("%w: unknown authorization variant", common.ErrInvalidState)
	}
}
