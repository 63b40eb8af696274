// Package models defines the client-side data model: users, credential items,
// item authorizations and the local session state, plus the Synchronizable
// contract the differencing engine reconciles on.
package models

import (
	"time"

	"github.com/dmitrijs2005/passkeeper/internal/envelope"
)

// Synchronizable is the common contract of every synced entity kind: a stable
// primary identifier, a soft-delete flag and modified/created timestamps in
// epoch milliseconds.
type Synchronizable interface {
	PrimaryID() string
	IsDeleted() bool
	ModifiedAt() int64
	CreatedAt() int64
}

// NowMillis returns the current time as epoch milliseconds, the timestamp
// unit used across the data model.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// KeyDerivationInformation holds the public parameters of the master-key
// derivation: a random salt and the PBKDF2 iteration count.
type KeyDerivationInformation struct {
	Salt           []byte `json:"salt"`
	IterationCount int    `json:"iterationCount"`
}

// CryptographicKey is the structured record form of a raw key as it appears
// inside an envelope (wrapped master encryption key, wrapped item-encryption
// secret key, wrapped item key).
type CryptographicKey struct {
	Key []byte `json:"key"`
}

// Clear zeroes the key material in place.
func (c *CryptographicKey) Clear() {
	for i := range c.Key {
		c.Key[i] = 0
	}
}

// UserSettings are per-user preferences, stored wrapped under the master
// encryption key.
type UserSettings struct {
	AutomaticLockTimeout int  `json:"automaticLockTimeout"`
	HidePasswords        bool `json:"hidePasswords"`
}

// User is the identity and key-hierarchy anchor.
//
// Invariant: private material is never stored unwrapped, and a wrapped
// value's declared algorithm always matches how it was produced. The
// MasterKeyDerivationInformation, MasterEncryptionKey, ItemEncryptionSecretKey
// and Settings fields are nil on partial user records fetched from the
// user list endpoint (secrets omitted).
type User struct {
	ID                               string                    `json:"id"`
	Username                         string                    `json:"username"`
	FullName                         string                    `json:"fullName"`
	ServerComputedAuthenticationHash string                    `json:"serverComputedAuthenticationHash,omitempty"`
	MasterKeyDerivationInformation   *KeyDerivationInformation `json:"masterKeyDerivationInformation,omitempty"`
	MasterEncryptionKey              *envelope.ProtectedValue  `json:"masterEncryptionKey,omitempty"`
	ItemEncryptionPublicKey          []byte                    `json:"itemEncryptionPublicKey,omitempty"`
	ItemEncryptionSecretKey          *envelope.ProtectedValue  `json:"itemEncryptionSecretKey,omitempty"`
	Settings                         *envelope.ProtectedValue  `json:"settings,omitempty"`
	Deleted                          bool                      `json:"deleted"`
	Modified                         int64                     `json:"modified"`
	Created                          int64                     `json:"created"`
}

func (u User) PrimaryID() string { return u.ID }
func (u User) IsDeleted() bool   { return u.Deleted }
func (u User) ModifiedAt() int64 { return u.Modified }
func (u User) CreatedAt() int64  { return u.Created }

// ItemData is the plaintext credential payload of an item.
type ItemData struct {
	Title    string `json:"title"`
	Username string `json:"username"`
	Password string `json:"password"`
	URL      string `json:"url"`
	Notes    string `json:"notes"`
}

// Item is a credential record. The payload is stored wrapped under the
// per-item symmetric key; the item key itself is never stored directly, only
// wrapped copies exist (see ItemAuthorization).
type Item struct {
	ID       string                   `json:"id"`
	UserID   string                   `json:"userId"`
	Data     *envelope.ProtectedValue `json:"data"`
	Deleted  bool                     `json:"deleted"`
	Modified int64                    `json:"modified"`
	Created  int64                    `json:"created"`
}

func (i Item) PrimaryID() string { return i.ID }
func (i Item) IsDeleted() bool   { return i.Deleted }
func (i Item) ModifiedAt() int64 { return i.Modified }
func (i Item) CreatedAt() int64  { return i.Created }

// ItemAuthorization grants one user access to one item. The item key is
// wrapped under the grantee's item-encryption public key. Only the item owner
// may create or modify authorizations; Deleted revokes access and ReadOnly
// permits decryption but not modification.
type ItemAuthorization struct {
	ID       string                   `json:"id"`
	UserID   string                   `json:"userId"`
	ItemID   string                   `json:"itemId"`
	ItemKey  *envelope.ProtectedValue `json:"itemKey"`
	ReadOnly bool                     `json:"readOnly"`
	Deleted  bool                     `json:"deleted"`
	Modified int64                    `json:"modified"`
	Created  int64                    `json:"created"`
}

func (a ItemAuthorization) PrimaryID() string { return a.ID }
func (a ItemAuthorization) IsDeleted() bool   { return a.Deleted }
func (a ItemAuthorization) ModifiedAt() int64 { return a.Modified }
func (a ItemAuthorization) CreatedAt() int64  { return a.Created }

// AccountType distinguishes local-only accounts from accounts backed by a
// remote server.
type AccountType string

const (
	AccountTypeLocal  AccountType = "local"
	AccountTypeRemote AccountType = "remote"
)

// SessionState is the single-row, local-only session record. It is created at
// login, mutated on every state transition (token refresh, sync success) and
// destroyed on logout. It is never synced.
type SessionState struct {
	Username                string                   `json:"username"`
	AccountType             AccountType              `json:"accountType"`
	Token                   string                   `json:"token"`
	ServerURL               string                   `json:"serverUrl"`
	LastSuccessfulSync      int64                    `json:"lastSuccessfulSync"`
	BiometricMasterPassword *envelope.ProtectedValue `json:"biometricMasterPassword,omitempty"`
}
