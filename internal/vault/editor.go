package vault

import (
	"fmt"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/cryptox"
	"github.com/dmitrijs2005/passkeeper/internal/envelope"
	"github.com/dmitrijs2005/passkeeper/internal/models"
	"github.com/google/uuid"
)

// ItemEditor holds an editable draft of an item payload. Edits only become
// visible when Save succeeds; Save re-encrypts the payload with a fresh IV.
type ItemEditor struct {
	view           *ItemView
	userID         string
	ownerPublicKey []byte

	// Data is the draft payload, freely mutable until Save.
	Data models.ItemData

	deleted bool
}

// NewItemEditor starts editing an existing, already-decrypted item view.
func NewItemEditor(view *ItemView) (*ItemEditor, error) {
	data := view.Data()
	if data == nil {
		return nil, fmt.Errorf("%w: item not decrypted", common.ErrInvalidState)
	}
	return &ItemEditor{
		view:   view,
		userID: view.Item.UserID,
		Data:   *data,
	}, nil
}

// NewItemDraft starts a draft for a brand-new item owned by userID. The
// owner's item-encryption public key (PKIX DER) is needed to materialize the
// owner's own authorization on save.
func NewItemDraft(userID string, ownerPublicKey []byte) *ItemEditor {
	return &ItemEditor{userID: userID, ownerPublicKey: ownerPublicKey}
}

// MarkDeleted flags the item as a soft-delete tombstone on the next Save.
// Deleting a draft that was never saved is a contract violation.
func (e *ItemEditor) MarkDeleted() error {
	if e.view == nil {
		return fmt.Errorf("%w: cannot delete an unsaved item", common.ErrInvalidState)
	}
	e.deleted = true
	return nil
}

// SaveResult carries the records to persist after a successful Save: the item
// itself and, for brand-new items, the owner's materialized authorization.
type SaveResult struct {
	Item          models.Item
	Authorization *models.ItemAuthorization
}

// Save produces the updated (or freshly created) records from the draft.
// Saving through a read-only authorization fails with common.ErrReadOnly.
// The caller persists the result and pushes it on the next synchronization.
func (e *ItemEditor) Save() (*SaveResult, error) {
	now := models.NowMillis()

	if e.view != nil {
		if e.view.IsReadOnly() {
			return nil, fmt.Errorf("%w: item authorization does not permit modification", common.ErrReadOnly)
		}

		itemKey, err := e.view.ItemKeyCopy()
		if err != nil {
			return nil, err
		}
		defer common.Wipe(itemKey)

		data, err := envelope.Update(e.view.Item.Data, itemKey, e.Data)
		if err != nil {
			return nil, fmt.Errorf("re-encrypting item payload: %w", err)
		}

		item := e.view.Item
		item.Data = data
		item.Deleted = e.deleted
		item.Modified = now
		return &SaveResult{Item: item}, nil
	}

	// Brand-new item: fresh item key, encrypted payload and the owner's own
	// authorization wrapping that key under the owner's public key.
	itemKey, err := cryptox.GenerateSymmetricKey()
	if err != nil {
		return nil, err
	}
	defer common.Wipe(itemKey)

	data, err := envelope.Create(envelope.AlgorithmSymmetric, itemKey, e.Data)
	if err != nil {
		return nil, fmt.Errorf("encrypting item payload: %w", err)
	}

	wrappedKey, err := envelope.Create(envelope.AlgorithmAsymmetric, e.ownerPublicKey,
		models.CryptographicKey{Key: itemKey})
	if err != nil {
		return nil, fmt.Errorf("wrapping item key: %w", err)
	}

	item := models.Item{
		ID:       uuid.NewString(),
		UserID:   e.userID,
		Data:     data,
		Modified: now,
		Created:  now,
	}
	auth := &models.ItemAuthorization{
		ID:       uuid.NewString(),
		UserID:   e.userID,
		ItemID:   item.ID,
		ItemKey:  wrappedKey,
		Modified: now,
		Created:  now,
	}
	return &SaveResult{Item: item, Authorization: auth}, nil
}
