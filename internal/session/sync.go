package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/differ"
	"github.com/dmitrijs2005/passkeeper/internal/envelope"
	"github.com/dmitrijs2005/passkeeper/internal/models"
	"github.com/dmitrijs2005/passkeeper/internal/webservice"
	"golang.org/x/sync/errgroup"
)

// syncSnapshot captures the session fields a running synchronization needs so
// the manager lock is not held across network calls.
type syncSnapshot struct {
	client    webservice.Client
	userID    string
	unlockCtx context.Context
}

// Synchronize runs a full bidirectional synchronization: users, then the own
// user record, then items, then item authorizations, strictly in that order.
// Per-entity failures are collected and joined; a timeout-class failure aborts
// the remaining entity kinds because the transport is presumed unreachable.
// Entity kinds that completed before the failure stay applied. Locking or
// logging out cancels an in-flight synchronization.
func (m *Manager) Synchronize(ctx context.Context) error {
	snap, err := m.snapshotForSync()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(snap.unlockCtx, cancel)
	defer stop()

	tasks := []struct {
		name string
		run  func(context.Context, *syncSnapshot) error
	}{
		{"users", m.syncUsers},
		{"user details", m.syncUserDetails},
		{"items", m.syncItems},
		{"item authorizations", m.syncItemAuthorizations},
	}

	var errs []error
	for _, task := range tasks {
		if err := task.run(ctx, snap); err != nil {
			errs = append(errs, fmt.Errorf("synchronizing %s: %w", task.name, err))
			if isTimeoutClass(err) {
				m.log.Warn(ctx, "synchronization aborted, transport unreachable", "task", task.name)
				break
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	return m.commitSyncSuccess(ctx, snap)
}

func (m *Manager) snapshotForSync() (*syncSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoggedInUnlocked {
		return nil, fmt.Errorf("%w: session is %s", common.ErrInvalidState, m.state)
	}
	if m.sessionState.AccountType != models.AccountTypeRemote {
		return nil, fmt.Errorf("%w: local account has no remote collaborator", common.ErrInvalidState)
	}
	return &syncSnapshot{
		client:    m.client,
		userID:    m.user.ID,
		unlockCtx: m.unlockCtx,
	}, nil
}

func (m *Manager) commitSyncSuccess(ctx context.Context, snap *syncSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoggedInUnlocked || m.sessionState == nil {
		// The session went away mid-sync; nothing to record.
		return nil
	}
	m.sessionState.LastSuccessfulSync = models.NowMillis()
	m.sessionState.Token = snap.client.Token()
	if err := m.store.SessionState.Save(ctx, m.sessionState); err != nil {
		return fmt.Errorf("recording synchronization success: %w", err)
	}
	m.log.Info(ctx, "synchronization completed")
	return nil
}

// isTimeoutClass reports whether err indicates the transport is unreachable
// rather than a single entity kind failing.
func isTimeoutClass(err error) bool {
	return errors.Is(err, common.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// syncUsers is a pull-only merge of the partial user directory. The own user
// record is skipped so a partial record (secrets omitted) can never clobber
// the full local copy; it is reconciled separately by syncUserDetails.
func (m *Manager) syncUsers(ctx context.Context, snap *syncSnapshot) error {
	var local, remote []models.User
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		local, err = m.store.Users.FindAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		remote, err = snap.client.GetUsers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	localByID := make(map[string]models.User, len(local))
	for _, u := range local {
		localByID[u.ID] = u
	}

	var toInsert, toUpdate []models.User
	for _, u := range remote {
		if u.ID == snap.userID {
			continue
		}
		counterpart, ok := localByID[u.ID]
		switch {
		case !ok:
			toInsert = append(toInsert, u)
		case u.Modified > counterpart.Modified:
			toUpdate = append(toUpdate, u)
		}
	}

	if len(toInsert) > 0 {
		if err := m.store.Users.InsertBatch(ctx, toInsert); err != nil {
			return err
		}
	}
	if len(toUpdate) > 0 {
		if err := m.store.Users.UpdateBatch(ctx, toUpdate); err != nil {
			return err
		}
	}
	return nil
}

// syncUserDetails reconciles the own full user record under last-writer-wins:
// the strictly newer side replaces the other. On a pull the in-memory session
// copy is refreshed; if the pulled record's settings cannot be decrypted with
// the current master encryption key (rotated elsewhere), the stale in-memory
// copy is kept and the next unlock picks up the new hierarchy.
func (m *Manager) syncUserDetails(ctx context.Context, snap *syncSnapshot) error {
	var local *models.User
	var remote *models.User
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		local, err = m.store.Users.FindByID(gctx, snap.userID)
		return err
	})
	g.Go(func() (err error) {
		remote, err = snap.client.GetUserDetails(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	switch {
	case remote.Modified > local.Modified:
		if err := m.store.Users.UpdateBatch(ctx, []models.User{*remote}); err != nil {
			return err
		}
		m.refreshUserInMemory(ctx, remote)
	case local.Modified > remote.Modified:
		if err := snap.client.SetUserDetails(ctx, local); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) refreshUserInMemory(ctx context.Context, user *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoggedInUnlocked {
		return
	}
	var settings models.UserSettings
	if err := envelope.Decrypt(user.Settings, m.masterEncryptionKey, &settings); err != nil {
		m.log.Warn(ctx, "pulled user record not decryptable with current key, keeping session copy",
			"error", err)
		return
	}
	m.user = user
	m.settings = &settings
}

// syncItems reconciles the item collections. Remote-newer records are applied
// locally; local-newer records are pushed, but only those the user is allowed
// to write (a live, non-read-only authorization exists). Records the server
// would reject anyway are filtered out client-side.
func (m *Manager) syncItems(ctx context.Context, snap *syncSnapshot) error {
	var local, remote []models.Item
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		local, err = m.store.Items.FindAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		remote, err = snap.client.GetUserItems(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	result, err := differ.Differentiate(local, remote)
	if err != nil {
		return err
	}
	if !result.HasChanges() {
		return nil
	}

	if len(result.NewForLocal) > 0 {
		if err := m.store.Items.InsertBatch(ctx, result.NewForLocal); err != nil {
			return err
		}
	}
	if len(result.ModifiedForLocal) > 0 {
		if err := m.store.Items.UpdateBatch(ctx, result.ModifiedForLocal); err != nil {
			return err
		}
	}

	push := result.RemoteChangedItems()
	if len(push) == 0 {
		return nil
	}
	writable, err := m.writableItemIDs(ctx, snap.userID)
	if err != nil {
		return err
	}
	filtered := push[:0]
	for _, item := range push {
		if _, ok := writable[item.ID]; ok {
			filtered = append(filtered, item)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return snap.client.SetUserItems(ctx, filtered)
}

func (m *Manager) writableItemIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	auths, err := m.store.ItemAuthorizations.FindForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	writable := make(map[string]struct{}, len(auths))
	for _, a := range auths {
		if !a.Deleted && !a.ReadOnly {
			writable[a.ItemID] = struct{}{}
		}
	}
	return writable, nil
}

// syncItemAuthorizations reconciles the authorization collections. Only the
// item owner may modify authorizations, so the push set is filtered down to
// grants on items the user owns.
func (m *Manager) syncItemAuthorizations(ctx context.Context, snap *syncSnapshot) error {
	var local []models.ItemAuthorization
	var remote []models.ItemAuthorization
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		local, err = m.store.ItemAuthorizations.FindAll(gctx)
		return err
	})
	g.Go(func() (err error) {
		remote, err = snap.client.GetUserItemAuthorizations(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	result, err := differ.Differentiate(local, remote)
	if err != nil {
		return err
	}
	if !result.HasChanges() {
		return nil
	}

	if len(result.NewForLocal) > 0 {
		if err := m.store.ItemAuthorizations.InsertBatch(ctx, result.NewForLocal); err != nil {
			return err
		}
	}
	if len(result.ModifiedForLocal) > 0 {
		if err := m.store.ItemAuthorizations.UpdateBatch(ctx, result.ModifiedForLocal); err != nil {
			return err
		}
	}

	push := result.RemoteChangedItems()
	if len(push) == 0 {
		return nil
	}
	owned, err := m.ownedItemIDs(ctx, snap.userID)
	if err != nil {
		return err
	}
	filtered := push[:0]
	for _, auth := range push {
		if _, ok := owned[auth.ItemID]; ok {
			filtered = append(filtered, auth)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return snap.client.SetUserItemAuthorizations(ctx, filtered)
}

func (m *Manager) ownedItemIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	items, err := m.store.Items.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.UserID == userID {
			owned[item.ID] = struct{}{}
		}
	}
	return owned, nil
}
