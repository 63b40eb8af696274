package cryptox

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"github.com/dmitrijs2005/passkeeper/internal/common"
)

// Key (de)serialization used wherever asymmetric keys cross a storage or wire
// boundary: public keys travel in the clear as PKIX DER, private keys only
// ever appear wrapped inside an envelope as PKCS#8 DER.

func MarshalPublicKey(pub *rsa.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: nil public key", common.ErrValidation)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}
	return der, nil
}

func ParsePublicKey(der []byte) (*rsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDeserializationFailed, err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA public key", common.ErrDeserializationFailed)
	}
	return pub, nil
}

func MarshalPrivateKey(priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: nil private key", common.ErrValidation)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshaling private key: %w", err)
	}
	return der, nil
}

func ParsePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDeserializationFailed, err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA private key", common.ErrDeserializationFailed)
	}
	return priv, nil
}
