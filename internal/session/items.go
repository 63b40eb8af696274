package session

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/models"
	"github.com/dmitrijs2005/passkeeper/internal/vault"
)

// CreateItem encrypts data under a fresh item key, grants the owner access
// and persists both records.
func (m *Manager) CreateItem(ctx context.Context, data models.ItemData) (models.Item, error) {
	m.mu.Lock()
	if m.state != StateLoggedInUnlocked {
		m.mu.Unlock()
		return models.Item{}, fmt.Errorf("%w: session is %s", common.ErrInvalidState, m.state)
	}
	userID := m.user.ID
	publicKey := m.user.ItemEncryptionPublicKey
	m.mu.Unlock()

	draft := vault.NewItemDraft(userID, publicKey)
	draft.Data = data
	result, err := draft.Save()
	if err != nil {
		return models.Item{}, err
	}

	if err := m.store.Items.InsertBatch(ctx, []models.Item{result.Item}); err != nil {
		return models.Item{}, fmt.Errorf("persisting item: %w", err)
	}
	if err := m.store.ItemAuthorizations.InsertBatch(ctx,
		[]models.ItemAuthorization{*result.Authorization}); err != nil {
		return models.Item{}, fmt.Errorf("persisting owner authorization: %w", err)
	}
	return result.Item, nil
}

// UpdateItem re-encrypts the edited payload of a decrypted view and persists
// the new record version.
func (m *Manager) UpdateItem(ctx context.Context, view *vault.ItemView, data models.ItemData) (models.Item, error) {
	if err := m.requireUnlocked(); err != nil {
		return models.Item{}, err
	}

	editor, err := vault.NewItemEditor(view)
	if err != nil {
		return models.Item{}, err
	}
	editor.Data = data
	result, err := editor.Save()
	if err != nil {
		return models.Item{}, err
	}

	if err := m.store.Items.UpdateBatch(ctx, []models.Item{result.Item}); err != nil {
		return models.Item{}, fmt.Errorf("persisting item: %w", err)
	}
	return result.Item, nil
}

// DeleteItem soft-deletes the item behind a decrypted view so the deletion
// propagates through synchronization like any other modification.
func (m *Manager) DeleteItem(ctx context.Context, view *vault.ItemView) error {
	if err := m.requireUnlocked(); err != nil {
		return err
	}

	editor, err := vault.NewItemEditor(view)
	if err != nil {
		return err
	}
	if err := editor.MarkDeleted(); err != nil {
		return err
	}
	result, err := editor.Save()
	if err != nil {
		return err
	}

	if err := m.store.Items.UpdateBatch(ctx, []models.Item{result.Item}); err != nil {
		return fmt.Errorf("persisting item: %w", err)
	}
	return nil
}

// ShareItem grants or adjusts another user's access to the item behind a
// decrypted view. Only the item owner may share; revoking read access
// soft-deletes the grant. The grantee must have a published item-encryption
// public key (that is, must have synced at least once).
func (m *Manager) ShareItem(ctx context.Context, view *vault.ItemView, granteeUsername string, isReadAllowed, isWriteAllowed bool) (models.ItemAuthorization, error) {
	m.mu.Lock()
	if m.state != StateLoggedInUnlocked {
		m.mu.Unlock()
		return models.ItemAuthorization{}, fmt.Errorf("%w: session is %s", common.ErrInvalidState, m.state)
	}
	userID := m.user.ID
	m.mu.Unlock()

	if view.Item.UserID != userID {
		return models.ItemAuthorization{}, fmt.Errorf("%w: only the item owner may share", common.ErrForbidden)
	}

	grantee, err := m.store.Users.FindByUsername(ctx, granteeUsername)
	if err != nil {
		return models.ItemAuthorization{}, fmt.Errorf("looking up grantee: %w", err)
	}
	if grantee.ID == userID {
		return models.ItemAuthorization{}, fmt.Errorf("%w: cannot share with yourself", common.ErrValidation)
	}

	existing, err := m.findGrant(ctx, view.Item.ID, grantee.ID)
	if err != nil {
		return models.ItemAuthorization{}, err
	}

	var editor *vault.AuthorizationEditor
	if existing != nil {
		editor = vault.NewExistingAuthorizationEditor(*existing)
	} else {
		if len(grantee.ItemEncryptionPublicKey) == 0 {
			return models.ItemAuthorization{}, fmt.Errorf(
				"%w: grantee %q has no published public key", common.ErrValidation, granteeUsername)
		}
		itemKey, err := view.ItemKeyCopy()
		if err != nil {
			return models.ItemAuthorization{}, err
		}
		defer common.Wipe(itemKey)
		editor = vault.NewProvisionalAuthorizationEditor(view.Item.ID, grantee.ID,
			grantee.ItemEncryptionPublicKey, itemKey)
	}

	auth, err := editor.CreateOrUpdateAuthorization(isReadAllowed, isWriteAllowed)
	if err != nil {
		return models.ItemAuthorization{}, err
	}

	if existing != nil {
		err = m.store.ItemAuthorizations.UpdateBatch(ctx, []models.ItemAuthorization{auth})
	} else {
		err = m.store.ItemAuthorizations.InsertBatch(ctx, []models.ItemAuthorization{auth})
	}
	if err != nil {
		return models.ItemAuthorization{}, fmt.Errorf("persisting authorization: %w", err)
	}
	return auth, nil
}

func (m *Manager) findGrant(ctx context.Context, itemID, granteeID string) (*models.ItemAuthorization, error) {
	auths, err := m.store.ItemAuthorizations.FindForItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	for i := range auths {
		if auths[i].UserID == granteeID {
			return &auths[i], nil
		}
	}
	return nil, nil
}

func (m *Manager) requireUnlocked() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoggedInUnlocked {
		return fmt.Errorf("%w: session is %s", common.ErrInvalidState, m.state)
	}
	return nil
}
