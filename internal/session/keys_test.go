package session

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

func TestDeriveAuthenticationHash(t *testing.T) {
	hash, err := DeriveAuthenticationHash("testuser", "1234abcd")
	require.NoError(t, err)

	// Deterministic and equal to a direct derivation with the documented
	// parameters: PBKDF2-HMAC-SHA256, username bytes as salt.
	expected := pbkdf2.Key([]byte("1234abcd"), []byte("testuser"),
		authenticationHashIterationCount, authenticationHashLength, sha256.New)
	assert.Equal(t, hex.EncodeToString(expected), hash)

	again, err := DeriveAuthenticationHash("testuser", "1234abcd")
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	other, err := DeriveAuthenticationHash("bob", "1234abcd")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)
}

func TestDeriveAuthenticationHash_Validation(t *testing.T) {
	_, err := DeriveAuthenticationHash("  ", "pw")
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = DeriveAuthenticationHash("alice", "   ")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestDeriveMasterKey(t *testing.T) {
	info := &models.KeyDerivationInformation{
		Salt:           []byte("0123456789abcdef0123456789abcdef"),
		IterationCount: masterKeyIterationCount,
	}

	key, err := deriveMasterKey("hunter2", info)
	require.NoError(t, err)
	require.Len(t, key, masterKeyLength)

	expected := pbkdf2.Key([]byte("hunter2"), info.Salt, info.IterationCount,
		masterKeyLength, sha256.New)
	assert.Equal(t, expected, key)

	_, err = deriveMasterKey("hunter2", nil)
	assert.ErrorIs(t, err, common.ErrInvalidState)
}
