// Package vault implements the item/access decryption layer: lazily decrypted
// item views joined with the caller's authorizations, editable item drafts and
// the existing/provisional authorization variants of the sharing model.
package vault

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/envelope"
	"github.com/dmitrijs2005/passkeeper/internal/logging"
	"github.com/dmitrijs2005/passkeeper/internal/models"
	"github.com/dmitrijs2005/passkeeper/internal/storage"
	"golang.org/x/sync/errgroup"
)

// decryptConcurrency caps how many items are decrypted in parallel in a batch.
const decryptConcurrency = 4

// ItemView pairs an item with the caller's applicable authorization and
// decrypts its payload lazily: first the item key is unwrapped with the
// user's item-encryption secret key, then the payload with the item key.
// Decryption is idempotent; an already-decrypted view is reused.
type ItemView struct {
	Item          models.Item
	Authorization models.ItemAuthorization

	mu      sync.Mutex
	itemKey []byte
	data    *models.ItemData
}

// NewItemView creates an undecrypted view of item through auth.
func NewItemView(item models.Item, auth models.ItemAuthorization) *ItemView {
	return &ItemView{Item: item, Authorization: auth}
}

// IsReadOnly reports whether the authorization permits decryption only.
func (v *ItemView) IsReadOnly() bool { return v.Authorization.ReadOnly }

// Data returns the decrypted payload, or nil if Decrypt has not succeeded.
func (v *ItemView) Data() *models.ItemData {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.data
}

// Decrypt unwraps the item key with the user's item-encryption secret key
// (PKCS#8 DER) and then the payload with the item key. Repeated calls return
// the cached result without redecrypting.
func (v *ItemView) Decrypt(itemEncryptionSecretKey []byte) (*models.ItemData, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.data != nil {
		return v.data, nil
	}

	if v.Authorization.ItemKey == nil {
		return nil, fmt.Errorf("%w: authorization has no wrapped item key", common.ErrInvalidState)
	}
	if v.Item.Data == nil {
		return nil, fmt.Errorf("%w: item has no payload", common.ErrInvalidState)
	}

	var wrapped models.CryptographicKey
	if err := envelope.Decrypt(v.Authorization.ItemKey, itemEncryptionSecretKey, &wrapped); err != nil {
		return nil, fmt.Errorf("unwrapping item key: %w", err)
	}

	var data models.ItemData
	if err := envelope.Decrypt(v.Item.Data, wrapped.Key, &data); err != nil {
		wrapped.Clear()
		return nil, fmt.Errorf("decrypting item payload: %w", err)
	}

	v.itemKey = wrapped.Key
	v.data = &data
	return v.data, nil
}

// ItemKeyCopy returns a short-lived copy of the raw item key for sharing
// flows. The caller must wipe it when done. Requires a prior successful
// Decrypt.
func (v *ItemView) ItemKeyCopy() ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.itemKey == nil {
		return nil, fmt.Errorf("%w: item not decrypted", common.ErrInvalidState)
	}
	cp := make([]byte, len(v.itemKey))
	copy(cp, v.itemKey)
	return cp, nil
}

// Clear wipes the cached item key and drops the decrypted payload.
func (v *ItemView) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	common.Wipe(v.itemKey)
	v.itemKey = nil
	v.data = nil
}

// Provider joins the item and item-authorization collections into the set of
// views visible to one user.
type Provider struct {
	store *storage.Store
	log   logging.Logger
}

func NewProvider(store *storage.Store, log logging.Logger) *Provider {
	if log == nil {
		log = logging.Nop()
	}
	return &Provider{store: store, log: log}
}

// VisibleViews returns undecrypted views of every non-deleted item the user
// holds a non-deleted authorization for. An item whose authorization is
// deleted never appears, even though the item row itself may not be deleted.
func (p *Provider) VisibleViews(ctx context.Context, userID string) ([]*ItemView, error) {
	auths, err := p.store.ItemAuthorizations.FindForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading item authorizations: %w", err)
	}

	items, err := p.store.Items.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading items: %w", err)
	}
	itemsByID := make(map[string]models.Item, len(items))
	for _, item := range items {
		itemsByID[item.ID] = item
	}

	var views []*ItemView
	for _, auth := range auths {
		if auth.Deleted {
			continue
		}
		item, ok := itemsByID[auth.ItemID]
		if !ok || item.Deleted {
			continue
		}
		views = append(views, NewItemView(item, auth))
	}

	sort.Slice(views, func(i, j int) bool {
		return views[i].Item.ID < views[j].Item.ID
	})
	return views, nil
}

// DecryptAll decrypts a batch of views concurrently. Views that fail to
// decrypt are excluded from the result rather than failing the batch, so one
// corrupt or foreign item cannot hide all others. The returned slice keeps
// the input order.
func (p *Provider) DecryptAll(ctx context.Context, views []*ItemView, itemEncryptionSecretKey []byte) []*ItemView {
	decrypted := make([]*ItemView, len(views))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(decryptConcurrency)
	for n, view := range views {
		n, view := n, view
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := view.Decrypt(itemEncryptionSecretKey); err != nil {
				p.log.Warn(ctx, "excluding undecryptable item", "item", view.Item.ID, "error", err)
				return nil
			}
			decrypted[n] = view
			return nil
		})
	}
	// The only group error is batch cancellation; per-item failures are
	// swallowed above.
	_ = g.Wait()

	result := make([]*ItemView, 0, len(views))
	for _, view := range decrypted {
		if view != nil {
			result = append(result, view)
		}
	}
	return result
}
