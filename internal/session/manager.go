// Package session implements the session/key-hierarchy manager: login,
// registration, unlock/lock, master-password rotation, logout and the
// orchestration of full synchronization against the remote collaborator.
//
// The manager is an explicitly owned object with a clear
// create/unlock/lock/destroy lifecycle; there is no process-wide singleton.
// Decrypted key material (master encryption key, item-encryption secret key)
// is owned exclusively by the active unlocked session and wiped on lock and
// logout.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/cryptox"
	"github.com/dmitrijs2005/passkeeper/internal/envelope"
	"github.com/dmitrijs2005/passkeeper/internal/logging"
	"github.com/dmitrijs2005/passkeeper/internal/models"
	"github.com/dmitrijs2005/passkeeper/internal/storage"
	"github.com/dmitrijs2005/passkeeper/internal/vault"
	"github.com/dmitrijs2005/passkeeper/internal/webservice"
	"github.com/google/uuid"
)

// State is the closed set of session lifecycle states.
type State int

const (
	StateLoggedOut State = iota
	StateLoggingIn
	StateLoggedInLocked
	StateLoggedInUnlocked
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged-out"
	case StateLoggingIn:
		return "logging-in"
	case StateLoggedInLocked:
		return "locked"
	case StateLoggedInUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// ClientFactory constructs a webservice client. Swappable in tests.
type ClientFactory func(serverURL, username, authenticationHash string, opts ...webservice.Option) (webservice.Client, error)

func defaultClientFactory(serverURL, username, authenticationHash string, opts ...webservice.Option) (webservice.Client, error) {
	return webservice.NewHTTPClient(serverURL, username, authenticationHash, opts...)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClientFactory replaces the webservice client factory.
func WithClientFactory(f ClientFactory) Option {
	return func(m *Manager) { m.clientFactory = f }
}

// WithBiometricStorage attaches a platform biometric capability.
func WithBiometricStorage(b BiometricStorage) Option {
	return func(m *Manager) { m.biometrics = b }
}

// Manager owns the session state and the decrypted key hierarchy for the
// lifetime of an unlocked session.
type Manager struct {
	store         *storage.Store
	provider      *vault.Provider
	log           logging.Logger
	clientFactory ClientFactory
	biometrics    BiometricStorage

	mu           sync.Mutex
	state        State
	sessionState *models.SessionState
	user         *models.User
	client       webservice.Client

	masterEncryptionKey     []byte
	itemEncryptionSecretKey []byte
	settings                *models.UserSettings

	unlockCtx    context.Context
	unlockCancel context.CancelFunc

	viewSubscribers map[chan []*vault.ItemView]struct{}
	lastViewsSig    string
}

// NewManager creates a manager in the logged-out state.
func NewManager(store *storage.Store, log logging.Logger, opts ...Option) *Manager {
	if log == nil {
		log = logging.Nop()
	}
	m := &Manager{
		store:           store,
		provider:        vault.NewProvider(store, log),
		log:             log,
		clientFactory:   defaultClientFactory,
		biometrics:      DisabledBiometricStorage{},
		state:           StateLoggedOut,
		viewSubscribers: make(map[chan []*vault.ItemView]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Username returns the logged-in username, if any.
func (m *Manager) Username() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessionState == nil {
		return ""
	}
	return m.sessionState.Username
}

// Settings returns the decrypted user settings of the unlocked session.
func (m *Manager) Settings() (*models.UserSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoggedInUnlocked {
		return nil, fmt.Errorf("%w: session is %s", common.ErrInvalidState, m.state)
	}
	cp := *m.settings
	return &cp, nil
}

// Resume restores a previously persisted session at startup: if a session
// state row exists, the manager transitions to the locked state.
func (m *Manager) Resume(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoggedOut {
		return fmt.Errorf("%w: session is %s", common.ErrInvalidState, m.state)
	}

	state, err := m.store.SessionState.Get(ctx)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading session state: %w", err)
	}

	user, err := m.store.Users.FindByUsername(ctx, state.Username)
	if errors.Is(err, common.ErrNotFound) {
		// A session row without a matching user row is corrupt state. Any
		// other failure (busy database, unreadable column) must surface to
		// the caller, never destroy the store.
		m.log.Warn(ctx, "session state references unknown user, resetting store", "username", state.Username)
		return m.store.Reset(ctx)
	}
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}

	m.sessionState = state
	m.user = user
	m.state = StateLoggedInLocked
	return nil
}

// LoginRemote creates a remote-account session: it authenticates against the
// server with the derived authentication hash, fetches the user's own record
// and persists it. Any failure rolls back session state and the webservice
// handle, leaving nothing half-configured.
func (m *Manager) LoginRemote(ctx context.Context, username, password, serverURL string) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoggedOut {
		return fmt.Errorf("%w: session is %s", common.ErrInvalidState, m.state)
	}

	authHash, err := DeriveAuthenticationHash(username, password)
	if err != nil {
		return err
	}

	m.state = StateLoggingIn
	var client webservice.Client
	defer func() {
		if err == nil {
			return
		}
		if client != nil {
			_ = client.Close()
		}
		_ = m.store.SessionState.Delete(ctx)
		m.sessionState = nil
		m.user = nil
		m.client = nil
		m.state = StateLoggedOut
	}()

	client, err = m.clientFactory(serverURL, username, authHash)
	if err != nil {
		return fmt.Errorf("creating webservice: %w", err)
	}

	user, err := client.GetUserDetails(ctx)
	if err != nil {
		return fmt.Errorf("fetching user details: %w", err)
	}

	if _, findErr := m.store.Users.FindByID(ctx, user.ID); errors.Is(findErr, common.ErrNotFound) {
		err = m.store.Users.InsertBatch(ctx, []models.User{*user})
	} else if findErr != nil {
		err = findErr
	} else {
		err = m.store.Users.UpdateBatch(ctx, []models.User{*user})
	}
	if err != nil {
		return fmt.Errorf("persisting user: %w", err)
	}

	state := &models.SessionState{
		Username:    username,
		AccountType: models.AccountTypeRemote,
		Token:       client.Token(),
		ServerURL:   serverURL,
	}
	if err = m.store.SessionState.Save(ctx, state); err != nil {
		return fmt.Errorf("persisting session state: %w", err)
	}

	m.sessionState = state
	m.user = user
	m.client = client
	m.state = StateLoggedInLocked
	m.log.Info(ctx, "remote login succeeded", "username", username)
	return nil
}

// LoginLocal creates a local-only account: it derives the authentication
// hash and master key, generates and wraps the master encryption key and the
// item-encryption key pair, and persists everything. All intermediate raw key
// material is wiped regardless of the outcome.
func (m *Manager) LoginLocal(ctx context.Context, username, password string) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoggedOut {
		return fmt.Errorf("%w: session is %s", common.ErrInvalidState, m.state)
	}
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("%w: blank username", common.ErrValidation)
	}

	authHash, err := DeriveAuthenticationHash(username, password)
	if err != nil {
		return err
	}

	m.state = StateLoggingIn
	defer func() {
		if err == nil {
			return
		}
		_ = m.store.SessionState.Delete(ctx)
		m.sessionState = nil
		m.user = nil
		m.state = StateLoggedOut
	}()

	user, err := buildLocalUser(username, authHash, password)
	if err != nil {
		return err
	}

	if err = m.store.Users.InsertBatch(ctx, []models.User{*user}); err != nil {
		return fmt.Errorf("persisting user: %w", err)
	}

	state := &models.SessionState{
		Username:    username,
		AccountType: models.AccountTypeLocal,
	}
	if err = m.store.SessionState.Save(ctx, state); err != nil {
		return fmt.Errorf("persisting session state: %w", err)
	}

	m.sessionState = state
	m.user = user
	m.state = StateLoggedInLocked
	m.log.Info(ctx, "local login succeeded", "username", username)
	return nil
}

// buildLocalUser generates the complete key hierarchy for a fresh account.
// Every intermediate raw key is wiped before returning, success or not.
func buildLocalUser(username, authHash, password string) (*models.User, error) {
	salt, err := common.GenerateRandBytes(masterKeySaltLength)
	if err != nil {
		return nil, err
	}
	derivation := &models.KeyDerivationInformation{
		Salt:           salt,
		IterationCount: masterKeyIterationCount,
	}

	masterKey, err := deriveMasterKey(password, derivation)
	if err != nil {
		return nil, err
	}
	defer common.Wipe(masterKey)

	masterEncryptionKey, err := cryptox.GenerateSymmetricKey()
	if err != nil {
		return nil, err
	}
	defer common.Wipe(masterEncryptionKey)

	wrappedMasterEncryptionKey, err := envelope.Create(envelope.AlgorithmSymmetric, masterKey,
		models.CryptographicKey{Key: masterEncryptionKey})
	if err != nil {
		return nil, fmt.Errorf("wrapping master encryption key: %w", err)
	}

	keyPair, err := cryptox.GenerateAsymmetricKeyPair()
	if err != nil {
		return nil, err
	}
	publicDER, err := cryptox.MarshalPublicKey(&keyPair.PublicKey)
	if err != nil {
		return nil, err
	}
	privateDER, err := cryptox.MarshalPrivateKey(keyPair)
	if err != nil {
		return nil, err
	}
	defer common.Wipe(privateDER)

	wrappedSecretKey, err := envelope.Create(envelope.AlgorithmSymmetric, masterEncryptionKey,
		models.CryptographicKey{Key: privateDER})
	if err != nil {
		return nil, fmt.Errorf("wrapping item-encryption secret key: %w", err)
	}

	wrappedSettings, err := envelope.Create(envelope.AlgorithmSymmetric, masterEncryptionKey,
		models.UserSettings{})
	if err != nil {
		return nil, fmt.Errorf("wrapping settings: %w", err)
	}

	now := models.NowMillis()
	return &models.User{
		ID:                               uuid.NewString(),
		Username:                         username,
		ServerComputedAuthenticationHash: authHash,
		MasterKeyDerivationInformation:   derivation,
		MasterEncryptionKey:              wrappedMasterEncryptionKey,
		ItemEncryptionPublicKey:          publicDER,
		ItemEncryptionSecretKey:          wrappedSecretKey,
		Settings:                         wrappedSettings,
		Modified:                         now,
		Created:                          now,
	}, nil
}

// Unlock derives the master key from the stored derivation parameters and the
// supplied password, unwraps the master encryption key, the item-encryption
// secret key and the user settings, and starts the item-view watcher on the
// store's change feed. On failure all partially set key state is cleared.
func (m *Manager) Unlock(ctx context.Context, password string) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoggedInLocked {
		return fmt.Errorf("%w: session is %s", common.ErrInvalidState, m.state)
	}

	user, err := m.store.Users.FindByUsername(ctx, m.sessionState.Username)
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}

	masterKey, err := deriveMasterKey(password, user.MasterKeyDerivationInformation)
	if err != nil {
		return err
	}
	defer common.Wipe(masterKey)

	var masterEncryptionKey models.CryptographicKey
	if err = envelope.Decrypt(user.MasterEncryptionKey, masterKey, &masterEncryptionKey); err != nil {
		return fmt.Errorf("unwrapping master encryption key: %w", err)
	}

	defer func() {
		if err != nil {
			m.clearKeyMaterial()
		}
	}()
	m.masterEncryptionKey = masterEncryptionKey.Key

	var secretKey models.CryptographicKey
	if err = envelope.Decrypt(user.ItemEncryptionSecretKey, m.masterEncryptionKey, &secretKey); err != nil {
		return fmt.Errorf("unwrapping item-encryption secret key: %w", err)
	}
	m.itemEncryptionSecretKey = secretKey.Key

	var settings models.UserSettings
	if err = envelope.Decrypt(user.Settings, m.masterEncryptionKey, &settings); err != nil {
		return fmt.Errorf("decrypting settings: %w", err)
	}
	m.settings = &settings

	if m.sessionState.AccountType == models.AccountTypeRemote && m.client == nil {
		authHash, hashErr := DeriveAuthenticationHash(m.sessionState.Username, password)
		if hashErr != nil {
			err = hashErr
			return err
		}
		var client webservice.Client
		client, err = m.clientFactory(m.sessionState.ServerURL, m.sessionState.Username, authHash,
			webservice.WithToken(m.sessionState.Token))
		if err != nil {
			return fmt.Errorf("creating webservice: %w", err)
		}
		m.client = client
	}

	m.user = user
	m.unlockCtx, m.unlockCancel = context.WithCancel(context.Background())
	go m.watchItems(m.unlockCtx)
	m.state = StateLoggedInUnlocked
	m.log.Info(ctx, "session unlocked", "username", user.Username)
	return nil
}

// Lock cancels in-flight work, wipes the decrypted key hierarchy and returns
// the session to the locked state.
func (m *Manager) Lock(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoggedInUnlocked {
		return fmt.Errorf("%w: session is %s", common.ErrInvalidState, m.state)
	}
	m.lockLocked(ctx)
	return nil
}

func (m *Manager) lockLocked(ctx context.Context) {
	if m.unlockCancel != nil {
		m.unlockCancel()
		m.unlockCancel = nil
		m.unlockCtx = nil
	}
	m.clearKeyMaterial()
	m.lastViewsSig = ""
	m.state = StateLoggedInLocked
	m.log.Info(ctx, "session locked")
}

func (m *Manager) clearKeyMaterial() {
	common.Wipe(m.masterEncryptionKey)
	common.Wipe(m.itemEncryptionSecretKey)
	m.masterEncryptionKey = nil
	m.itemEncryptionSecretKey = nil
	m.settings = nil
}

// Logout destroys the session: webservice handles and in-memory key state are
// cleared, and the session-state row is removed. With wipe set, the whole
// store is atomically cleared as well.
func (m *Manager) Logout(ctx context.Context, wipe bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateLoggedOut {
		return fmt.Errorf("%w: session is %s", common.ErrInvalidState, m.state)
	}

	if m.state == StateLoggedInUnlocked {
		m.lockLocked(ctx)
	}
	if m.client != nil {
		_ = m.client.Close()
		m.client = nil
	}

	var err error
	if wipe {
		err = m.store.Reset(ctx)
	} else {
		err = m.store.SessionState.Delete(ctx)
	}

	m.sessionState = nil
	m.user = nil
	m.state = StateLoggedOut
	m.log.Info(ctx, "logged out", "wipe", wipe)
	return err
}

// ChangeMasterPassword re-verifies the old password by actually unwrapping
// the master encryption key with it (the decrypt operation itself is the
// verifier), rewraps the key under a key derived from the new password and
// pushes the updated record to the server before committing anything locally.
// On success the remote session is re-established under the new password and
// biometric unlock is best-effort disabled.
func (m *Manager) ChangeMasterPassword(ctx context.Context, oldPassword, newPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoggedInUnlocked {
		return fmt.Errorf("%w: session is %s", common.ErrInvalidState, m.state)
	}

	user, err := m.store.Users.FindByID(ctx, m.user.ID)
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}

	oldMasterKey, err := deriveMasterKey(oldPassword, user.MasterKeyDerivationInformation)
	if err != nil {
		return err
	}
	defer common.Wipe(oldMasterKey)

	var masterEncryptionKey models.CryptographicKey
	if err := envelope.Decrypt(user.MasterEncryptionKey, oldMasterKey, &masterEncryptionKey); err != nil {
		return fmt.Errorf("old password verification failed: %w", err)
	}
	defer masterEncryptionKey.Clear()

	newAuthHash, err := DeriveAuthenticationHash(user.Username, newPassword)
	if err != nil {
		return err
	}

	newSalt, err := common.GenerateRandBytes(masterKeySaltLength)
	if err != nil {
		return err
	}
	newDerivation := &models.KeyDerivationInformation{
		Salt:           newSalt,
		IterationCount: masterKeyIterationCount,
	}
	newMasterKey, err := deriveMasterKey(newPassword, newDerivation)
	if err != nil {
		return err
	}
	defer common.Wipe(newMasterKey)

	rewrapped, err := envelope.Update(user.MasterEncryptionKey, newMasterKey, masterEncryptionKey)
	if err != nil {
		return fmt.Errorf("rewrapping master encryption key: %w", err)
	}

	updated := *user
	updated.ServerComputedAuthenticationHash = newAuthHash
	updated.MasterKeyDerivationInformation = newDerivation
	updated.MasterEncryptionKey = rewrapped
	updated.Modified = models.NowMillis()

	// Remote first: if the server rejects the change, nothing local changes.
	if m.sessionState.AccountType == models.AccountTypeRemote {
		if err := m.client.SetUserDetails(ctx, &updated); err != nil {
			return fmt.Errorf("pushing new authentication hash: %w", err)
		}
		m.client.SetCredentials(updated.Username, newAuthHash)
	}

	if err := m.store.Users.UpdateBatch(ctx, []models.User{updated}); err != nil {
		return fmt.Errorf("persisting user: %w", err)
	}
	m.user = &updated

	// Best-effort: a biometric-wrapped copy of the old password is now
	// useless; re-wrapping under biometric storage is deliberately not
	// attempted here.
	if err := m.biometrics.Invalidate(ctx); err != nil {
		m.log.Warn(ctx, "invalidating biometric storage failed", "error", err)
	}
	if m.sessionState.BiometricMasterPassword != nil {
		m.sessionState.BiometricMasterPassword = nil
		if err := m.store.SessionState.Save(ctx, m.sessionState); err != nil {
			m.log.Warn(ctx, "disabling biometric unlock failed", "error", err)
		}
	}

	m.log.Info(ctx, "master password changed", "username", updated.Username)
	return nil
}

// UpdateSettings rewraps the changed settings under the master encryption key
// and persists them. Subscribers of the item-view feed are unaffected;
// settings observers see the new value on the next Settings call.
func (m *Manager) UpdateSettings(ctx context.Context, settings models.UserSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoggedInUnlocked {
		return fmt.Errorf("%w: session is %s", common.ErrInvalidState, m.state)
	}
	if m.settings != nil && *m.settings == settings {
		// Notify-on-distinct-value-change: identical settings are a no-op.
		return nil
	}

	wrapped, err := envelope.Update(m.user.Settings, m.masterEncryptionKey, settings)
	if err != nil {
		return fmt.Errorf("rewrapping settings: %w", err)
	}

	updated := *m.user
	updated.Settings = wrapped
	updated.Modified = models.NowMillis()
	if err := m.store.Users.UpdateBatch(ctx, []models.User{updated}); err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}

	m.user = &updated
	m.settings = &settings
	return nil
}

// EnableBiometricUnlock stores a biometric-wrapped copy of the master
// password in the session state.
func (m *Manager) EnableBiometricUnlock(ctx context.Context, masterPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoggedInUnlocked {
		return fmt.Errorf("%w: session is %s", common.ErrInvalidState, m.state)
	}
	if !m.biometrics.Available() {
		return fmt.Errorf("%w: biometric storage not available", common.ErrInvalidState)
	}

	wrapped, err := m.biometrics.WrapMasterPassword(ctx, masterPassword)
	if err != nil {
		return fmt.Errorf("wrapping master password: %w", err)
	}
	m.sessionState.BiometricMasterPassword = wrapped
	return m.store.SessionState.Save(ctx, m.sessionState)
}

// UnlockWithBiometrics recovers the master password from its biometric-
// wrapped copy and unlocks the session with it.
func (m *Manager) UnlockWithBiometrics(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateLoggedInLocked {
		m.mu.Unlock()
		return fmt.Errorf("%w: session is %s", common.ErrInvalidState, m.state)
	}
	wrapped := m.sessionState.BiometricMasterPassword
	m.mu.Unlock()

	if wrapped == nil {
		return fmt.Errorf("%w: biometric unlock not enabled", common.ErrInvalidState)
	}
	password, err := m.biometrics.UnwrapMasterPassword(ctx, wrapped)
	if err != nil {
		return fmt.Errorf("unwrapping master password: %w", err)
	}
	return m.Unlock(ctx, password)
}
