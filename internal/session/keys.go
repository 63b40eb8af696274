package session

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/cryptox"
	"github.com/dmitrijs2005/passkeeper/internal/models"
)

// Key-hierarchy parameters. The master key is derived from the master
// password with a random per-user salt; the authentication hash uses the
// username as salt and a deliberately different iteration count so the two
// derivations can never collide.
const (
	masterKeySaltLength     = 32
	masterKeyIterationCount = 100_000
	masterKeyLength         = 32

	authenticationHashIterationCount = 100_001
	authenticationHashLength         = 32
)

// deriveMasterKey derives the master key from the master password and the
// user's stored derivation parameters.
func deriveMasterKey(password string, info *models.KeyDerivationInformation) ([]byte, error) {
	if info == nil {
		return nil, fmt.Errorf("%w: user has no master-key derivation information", common.ErrInvalidState)
	}
	return cryptox.DeriveKeyPBKDF2(password, info.Salt, info.IterationCount, masterKeyLength)
}

// DeriveAuthenticationHash computes the locally computed master-password
// authentication hash sent to the server: PBKDF2 over the normalized password
// with the username bytes as salt and a fixed iteration count, hex encoded.
// The server never sees the password itself; it salts and hashes this value
// again before storing it.
func DeriveAuthenticationHash(username, password string) (string, error) {
	if strings.TrimSpace(username) == "" {
		return "", fmt.Errorf("%w: blank username", common.ErrValidation)
	}
	if strings.TrimSpace(password) == "" {
		return "", fmt.Errorf("%w: blank password", common.ErrValidation)
	}
	key, err := cryptox.DeriveKeyPBKDF2(password, []byte(username),
		authenticationHashIterationCount, authenticationHashLength)
	if err != nil {
		return "", err
	}
	defer common.Wipe(key)
	return hex.EncodeToString(key), nil
}
