package cryptox

import (
	"crypto/sha256"
	"testing"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

func TestEncryptDecryptAESGCM_RoundTrip(t *testing.T) {
	key, err := GenerateSymmetricKey()
	require.NoError(t, err)
	iv, err := GenerateIV()
	require.NoError(t, err)

	plaintext := []byte("the quick brown fox")

	ciphertext, err := EncryptAESGCM(key, iv, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)
	assert.Len(t, ciphertext, len(plaintext)+TagLength)

	decrypted, err := DecryptAESGCM(key, iv, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptAESGCM_InvalidLengths(t *testing.T) {
	key, _ := GenerateSymmetricKey()
	iv, _ := GenerateIV()

	_, err := EncryptAESGCM(key[:16], iv, []byte("x"))
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = EncryptAESGCM(key, iv[:8], []byte("x"))
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = DecryptAESGCM(key[:16], iv, []byte("x"))
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestDecryptAESGCM_CorruptCiphertext(t *testing.T) {
	key, _ := GenerateSymmetricKey()
	iv, _ := GenerateIV()

	ciphertext, err := EncryptAESGCM(key, iv, []byte("secret"))
	require.NoError(t, err)

	ciphertext[0] ^= 0xff
	_, err = DecryptAESGCM(key, iv, ciphertext)
	assert.ErrorIs(t, err, common.ErrDecryptionFailed)
}

func TestDecryptAESGCM_WrongKey(t *testing.T) {
	key, _ := GenerateSymmetricKey()
	otherKey, _ := GenerateSymmetricKey()
	iv, _ := GenerateIV()

	ciphertext, err := EncryptAESGCM(key, iv, []byte("secret"))
	require.NoError(t, err)

	_, err = DecryptAESGCM(otherKey, iv, ciphertext)
	assert.ErrorIs(t, err, common.ErrDecryptionFailed)
}

func TestRSAOAEP_RoundTrip(t *testing.T) {
	priv, err := GenerateAsymmetricKeyPair()
	require.NoError(t, err)

	itemKey, err := GenerateSymmetricKey()
	require.NoError(t, err)

	wrapped, err := EncryptRSAOAEP(&priv.PublicKey, itemKey)
	require.NoError(t, err)

	unwrapped, err := DecryptRSAOAEP(priv, wrapped)
	require.NoError(t, err)
	assert.Equal(t, itemKey, unwrapped)
}

func TestRSAOAEP_WrongKeyFails(t *testing.T) {
	priv, err := GenerateAsymmetricKeyPair()
	require.NoError(t, err)
	other, err := GenerateAsymmetricKeyPair()
	require.NoError(t, err)

	wrapped, err := EncryptRSAOAEP(&priv.PublicKey, []byte("item key"))
	require.NoError(t, err)

	_, err = DecryptRSAOAEP(other, wrapped)
	assert.ErrorIs(t, err, common.ErrDecryptionFailed)
}

func TestNormalizePassword(t *testing.T) {
	// NFKD decomposes the "ﬁ" ligature into "fi".
	assert.Equal(t, []byte("fix"), NormalizePassword("ﬁx"))
	assert.Equal(t, []byte("abcd"), NormalizePassword("  abcd \n"))
}

func TestDeriveKeyPBKDF2_DeterministicAndNormalized(t *testing.T) {
	salt := []byte("testuser")

	a, err := DeriveKeyPBKDF2("1234abcd", salt, 100_000, 32)
	require.NoError(t, err)
	b, err := DeriveKeyPBKDF2("  1234abcd ", salt, 100_000, 32)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Locks the KDF wiring: PBKDF2-HMAC-SHA256 over the normalized password.
	expected := pbkdf2.Key([]byte("1234abcd"), salt, 100_000, 32, sha256.New)
	assert.Equal(t, expected, a)
}

func TestDeriveKeyPBKDF2_Validation(t *testing.T) {
	_, err := DeriveKeyPBKDF2("pw", nil, 100, 32)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = DeriveKeyPBKDF2("pw", []byte("salt"), 0, 32)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestGenerateIV_Unique(t *testing.T) {
	a, err := GenerateIV()
	require.NoError(t, err)
	b, err := GenerateIV()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
