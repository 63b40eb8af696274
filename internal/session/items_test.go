package session

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/cryptox"
	"github.com/dmitrijs2005/passkeeper/internal/models"
	"github.com/dmitrijs2005/passkeeper/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unlockedManager(t *testing.T) *Manager {
	t.Helper()
	store := newTestStore(t)
	m := NewManager(store, nil)
	ctx := context.Background()
	require.NoError(t, m.LoginLocal(ctx, "alice", "hunter2"))
	require.NoError(t, m.Unlock(ctx, "hunter2"))
	return m
}

func TestCreateUpdateDeleteItem(t *testing.T) {
	m := unlockedManager(t)
	ctx := context.Background()

	item, err := m.CreateItem(ctx, models.ItemData{Title: "mail", Password: "pw"})
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)

	views, err := m.ItemViews(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "mail", views[0].Data().Title)

	updated, err := m.UpdateItem(ctx, views[0], models.ItemData{Title: "mail2", Password: "pw2"})
	require.NoError(t, err)
	assert.Equal(t, item.ID, updated.ID)

	views, err = m.ItemViews(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "mail2", views[0].Data().Title)

	require.NoError(t, m.DeleteItem(ctx, views[0]))

	views, err = m.ItemViews(ctx)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestCreateItem_RequiresUnlockedSession(t *testing.T) {
	store := newTestStore(t)
	m := NewManager(store, nil)
	ctx := context.Background()
	require.NoError(t, m.LoginLocal(ctx, "alice", "hunter2"))

	_, err := m.CreateItem(ctx, models.ItemData{Title: "x"})
	assert.ErrorIs(t, err, common.ErrInvalidState)
}

func TestShareItem(t *testing.T) {
	m := unlockedManager(t)
	ctx := context.Background()

	// A synced collaborator with a published public key.
	bobKeys, err := cryptox.GenerateAsymmetricKeyPair()
	require.NoError(t, err)
	bobPub, err := cryptox.MarshalPublicKey(&bobKeys.PublicKey)
	require.NoError(t, err)
	bobPriv, err := cryptox.MarshalPrivateKey(bobKeys)
	require.NoError(t, err)
	now := models.NowMillis()
	require.NoError(t, m.store.Users.InsertBatch(ctx, []models.User{
		{ID: "bob-id", Username: "bob", ItemEncryptionPublicKey: bobPub, Modified: now, Created: now},
	}))

	item, err := m.CreateItem(ctx, models.ItemData{Title: "shared", Password: "pw"})
	require.NoError(t, err)

	views, err := m.ItemViews(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)

	auth, err := m.ShareItem(ctx, views[0], "bob", true, false)
	require.NoError(t, err)
	assert.Equal(t, "bob-id", auth.UserID)
	assert.True(t, auth.ReadOnly)

	// The grant actually works: bob can decrypt with his secret key.
	bobView := vault.NewItemView(item, auth)
	data, err := bobView.Decrypt(bobPriv)
	require.NoError(t, err)
	assert.Equal(t, "shared", data.Title)

	// Upgrading reuses the existing grant instead of minting a second one.
	upgraded, err := m.ShareItem(ctx, views[0], "bob", true, true)
	require.NoError(t, err)
	assert.Equal(t, auth.ID, upgraded.ID)
	assert.False(t, upgraded.ReadOnly)

	// Revoking soft-deletes it.
	revoked, err := m.ShareItem(ctx, views[0], "bob", false, false)
	require.NoError(t, err)
	assert.True(t, revoked.Deleted)

	// Self-sharing and unknown grantees are rejected.
	_, err = m.ShareItem(ctx, views[0], "alice", true, false)
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = m.ShareItem(ctx, views[0], "nobody", true, false)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
