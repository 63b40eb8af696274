// Package envelope implements the protected-value wrapper: a ciphertext
// bundled with its initialization vector and the algorithm tag needed to
// decrypt it, without ever exposing plaintext.
//
// Records are serialized to canonical JSON before encryption (the same idiom
// the rest of the project uses for structured payloads). Symmetric envelopes
// use AES-256-GCM with a fresh IV per encryption; asymmetric envelopes use
// RSA-2048-OAEP and carry an empty IV.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/cryptox"
)

// Algorithm identifies which cipher produced an envelope.
type Algorithm string

const (
	// AlgorithmSymmetric is AES-256-GCM with a 96-bit IV and 128-bit tag.
	AlgorithmSymmetric Algorithm = "AES-256-GCM"

	// AlgorithmAsymmetric is RSA-2048-OAEP-SHA256. Asymmetric envelopes have
	// an empty initialization vector.
	AlgorithmAsymmetric Algorithm = "RSA-2048-OAEP"
)

func (a Algorithm) valid() bool {
	return a == AlgorithmSymmetric || a == AlgorithmAsymmetric
}

// ProtectedValue couples a ciphertext with its IV and algorithm tag.
//
// Wire format:
//
//	{"initializationVector": base64, "encryptedValue": base64, "encryptionAlgorithm": "AES-256-GCM"}
type ProtectedValue struct {
	InitializationVector []byte    `json:"initializationVector"`
	EncryptedValue       []byte    `json:"encryptedValue"`
	EncryptionAlgorithm  Algorithm `json:"encryptionAlgorithm"`
}

// UnmarshalJSON rejects envelopes with an unknown algorithm tag.
func (p *ProtectedValue) UnmarshalJSON(data []byte) error {
	type alias ProtectedValue
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDeserializationFailed, err)
	}
	if !Algorithm(a.EncryptionAlgorithm).valid() {
		return fmt.Errorf("%w: unknown encryption algorithm %q",
			common.ErrDeserializationFailed, a.EncryptionAlgorithm)
	}
	*p = ProtectedValue(a)
	return nil
}

// Equal compares two envelopes by ciphertext content, not by reference.
func (p *ProtectedValue) Equal(other *ProtectedValue) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.EncryptionAlgorithm == other.EncryptionAlgorithm &&
		bytes.Equal(p.InitializationVector, other.InitializationVector) &&
		bytes.Equal(p.EncryptedValue, other.EncryptedValue)
}

func validateKey(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key", common.ErrValidation)
	}
	if common.IsWiped(key) {
		return fmt.Errorf("%w: key has been cleared", common.ErrValidation)
	}
	return nil
}

// Create serializes value to JSON and encrypts it under key with the given
// algorithm. For AlgorithmSymmetric the key is a raw AES-256 key; for
// AlgorithmAsymmetric it is a PKIX DER public key. An empty or all-zero key
// is rejected before any cryptographic work.
func Create(algorithm Algorithm, key []byte, value any) (*ProtectedValue, error) {
	if !algorithm.valid() {
		return nil, fmt.Errorf("%w: unknown encryption algorithm %q", common.ErrValidation, algorithm)
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDeserializationFailed, err)
	}
	defer common.Wipe(plaintext)

	switch algorithm {
	case AlgorithmSymmetric:
		iv, err := cryptox.GenerateIV()
		if err != nil {
			return nil, err
		}
		ciphertext, err := cryptox.EncryptAESGCM(key, iv, plaintext)
		if err != nil {
			return nil, err
		}
		return &ProtectedValue{
			InitializationVector: iv,
			EncryptedValue:       ciphertext,
			EncryptionAlgorithm:  AlgorithmSymmetric,
		}, nil

	default:
		pub, err := cryptox.ParsePublicKey(key)
		if err != nil {
			return nil, err
		}
		ciphertext, err := cryptox.EncryptRSAOAEP(pub, plaintext)
		if err != nil {
			return nil, err
		}
		return &ProtectedValue{
			InitializationVector: []byte{},
			EncryptedValue:       ciphertext,
			EncryptionAlgorithm:  AlgorithmAsymmetric,
		}, nil
	}
}

// Decrypt opens the envelope with key and unmarshals the plaintext into out.
// For AlgorithmSymmetric the key is a raw AES-256 key; for AlgorithmAsymmetric
// it is a PKCS#8 DER private key. Decryption failures and deserialization
// failures surface as distinct error kinds so callers can tell "wrong key"
// from "corrupt/foreign format".
func Decrypt(p *ProtectedValue, key []byte, out any) error {
	if p == nil {
		return fmt.Errorf("%w: nil protected value", common.ErrValidation)
	}
	if err := validateKey(key); err != nil {
		return err
	}

	var plaintext []byte
	switch p.EncryptionAlgorithm {
	case AlgorithmSymmetric:
		var err error
		plaintext, err = cryptox.DecryptAESGCM(key, p.InitializationVector, p.EncryptedValue)
		if err != nil {
			return err
		}
	case AlgorithmAsymmetric:
		priv, err := cryptox.ParsePrivateKey(key)
		if err != nil {
			return err
		}
		plaintext, err = cryptox.DecryptRSAOAEP(priv, p.EncryptedValue)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown encryption algorithm %q",
			common.ErrDeserializationFailed, p.EncryptionAlgorithm)
	}
	defer common.Wipe(plaintext)

	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDeserializationFailed, err)
	}
	return nil
}

// Update re-encrypts the envelope with newValue under the same algorithm,
// always with a fresh IV. An IV is never reused across encryptions under the
// same key.
func Update(p *ProtectedValue, key []byte, newValue any) (*ProtectedValue, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil protected value", common.ErrValidation)
	}
	return Create(p.EncryptionAlgorithm, key, newValue)
}
