package storage

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/envelope"
	"github.com/dmitrijs2005/passkeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testUser(id, username string) models.User {
	now := models.NowMillis()
	return models.User{
		ID:       id,
		Username: username,
		FullName: "Test User",
		MasterKeyDerivationInformation: &models.KeyDerivationInformation{
			Salt:           []byte("salt"),
			IterationCount: 100_000,
		},
		Modified: now,
		Created:  now,
	}
}

func TestUsers_InsertAndFind(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	u := testUser("u1", "alice")
	u.MasterEncryptionKey = &envelope.ProtectedValue{
		InitializationVector: []byte{1, 2, 3},
		EncryptedValue:       []byte{4, 5, 6},
		EncryptionAlgorithm:  envelope.AlgorithmSymmetric,
	}
	require.NoError(t, store.Users.InsertBatch(ctx, []models.User{u}))

	got, err := store.Users.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	require.NotNil(t, got.MasterEncryptionKey)
	assert.True(t, u.MasterEncryptionKey.Equal(got.MasterEncryptionKey))
	require.NotNil(t, got.MasterKeyDerivationInformation)
	assert.Equal(t, 100_000, got.MasterKeyDerivationInformation.IterationCount)

	byName, err := store.Users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", byName.ID)

	_, err = store.Users.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUsers_UpdateBatch(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	u := testUser("u1", "alice")
	require.NoError(t, store.Users.InsertBatch(ctx, []models.User{u}))

	u.FullName = "Alice A."
	u.Modified = u.Modified + 1
	require.NoError(t, store.Users.UpdateBatch(ctx, []models.User{u}))

	got, err := store.Users.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", got.FullName)
}

func TestItems_BatchIsAtomic(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Users.InsertBatch(ctx, []models.User{testUser("u1", "alice")}))

	now := models.NowMillis()
	good := models.Item{ID: "i1", UserID: "u1", Modified: now, Created: now}
	duplicate := models.Item{ID: "i1", UserID: "u1", Modified: now, Created: now}

	err := store.Items.InsertBatch(ctx, []models.Item{good, duplicate})
	require.Error(t, err)

	// The whole batch must have rolled back.
	all, err := store.Items.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestItemAuthorizations_FindForItemAndUser(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Users.InsertBatch(ctx, []models.User{testUser("u1", "alice"), testUser("u2", "bob")}))
	now := models.NowMillis()
	require.NoError(t, store.Items.InsertBatch(ctx, []models.Item{
		{ID: "i1", UserID: "u1", Modified: now, Created: now},
	}))

	auths := []models.ItemAuthorization{
		{ID: "a1", UserID: "u1", ItemID: "i1", Modified: now, Created: now},
		{ID: "a2", UserID: "u2", ItemID: "i1", ReadOnly: true, Modified: now, Created: now},
	}
	require.NoError(t, store.ItemAuthorizations.InsertBatch(ctx, auths))

	forItem, err := store.ItemAuthorizations.FindForItem(ctx, "i1")
	require.NoError(t, err)
	assert.Len(t, forItem, 2)

	forUser, err := store.ItemAuthorizations.FindForUser(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, forUser, 1)
	assert.True(t, forUser[0].ReadOnly)
}

func TestSessionState_SingleRowLifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.SessionState.Get(ctx)
	assert.ErrorIs(t, err, common.ErrNotFound)

	state := &models.SessionState{
		Username:    "alice",
		AccountType: models.AccountTypeRemote,
		Token:       "token-1",
		ServerURL:   "https://vault.example.com",
	}
	require.NoError(t, store.SessionState.Save(ctx, state))

	state.Token = "token-2"
	state.LastSuccessfulSync = models.NowMillis()
	require.NoError(t, store.SessionState.Save(ctx, state))

	got, err := store.SessionState.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-2", got.Token)
	assert.NotZero(t, got.LastSuccessfulSync)

	require.NoError(t, store.SessionState.Delete(ctx))
	_, err = store.SessionState.Get(ctx)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestReset_WipesEverything(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Users.InsertBatch(ctx, []models.User{testUser("u1", "alice")}))
	now := models.NowMillis()
	require.NoError(t, store.Items.InsertBatch(ctx, []models.Item{{ID: "i1", UserID: "u1", Modified: now, Created: now}}))
	require.NoError(t, store.SessionState.Save(ctx, &models.SessionState{Username: "alice", AccountType: models.AccountTypeLocal}))

	require.NoError(t, store.Reset(ctx))

	users, err := store.Users.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
	items, err := store.Items.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
	_, err = store.SessionState.Get(ctx)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestReset_IsAllOrNothing(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Users.InsertBatch(ctx, []models.User{testUser("u1", "alice")}))
	now := models.NowMillis()
	require.NoError(t, store.Items.InsertBatch(ctx, []models.Item{{ID: "i1", UserID: "u1", Modified: now, Created: now}}))
	require.NoError(t, store.ItemAuthorizations.InsertBatch(ctx, []models.ItemAuthorization{
		{ID: "a1", UserID: "u1", ItemID: "i1", Modified: now, Created: now},
	}))

	// Make the last of the four deletes fail mid-wipe.
	_, err := store.db.ExecContext(ctx, `DROP TABLE session_state`)
	require.NoError(t, err)

	require.Error(t, store.Reset(ctx))

	// The deletes that ran before the failure were rolled back.
	users, err := store.Users.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	items, err := store.Items.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	auths, err := store.ItemAuthorizations.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, auths, 1)
}

func TestChangeFeed_NotifiesOnItemMutations(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Users.InsertBatch(ctx, []models.User{testUser("u1", "alice")}))

	ch, unsubscribe := store.Subscribe()
	defer unsubscribe()

	now := models.NowMillis()
	require.NoError(t, store.Items.InsertBatch(ctx, []models.Item{{ID: "i1", UserID: "u1", Modified: now, Created: now}}))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected change notification after item insert")
	}

	// Unsubscribed listeners stop receiving.
	unsubscribe()
	require.NoError(t, store.ItemAuthorizations.InsertBatch(ctx, []models.ItemAuthorization{
		{ID: "a1", UserID: "u1", ItemID: "i1", Modified: now, Created: now},
	}))
	select {
	case <-ch:
		t.Fatal("unexpected notification after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}
