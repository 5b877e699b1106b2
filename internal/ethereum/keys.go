package ethereum

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/AlexZinkM/bank-of-ethereum/internal/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// GenerateKey creates a new secp256k1 private key.
// Returns the key as 0x-prefixed hex and its address.
func GenerateKey() (string, common.Address, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return "", common.Address{}, fmt.Errorf("%w: failed to generate key: %v", model.ErrEntropyFailure, err)
	}
	defer zeroKey(priv)

	return hexutil.Encode(crypto.FromECDSA(priv)), crypto.PubkeyToAddress(priv.PublicKey), nil
}

// ParseKey parses a hex private key with or without 0x prefix
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	raw := hexKey
	if len(raw) >= 2 && (raw[:2] == "0x" || raw[:2] == "0X") {
		raw = raw[2:]
	}
	priv, err := crypto.HexToECDSA(strings.ToLower(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidKeyFormat, err)
	}
	return priv, nil
}

// AddressFromKey derives the address for a hex private key
func AddressFromKey(hexKey string) (common.Address, error) {
	priv, err := ParseKey(hexKey)
	if err != nil {
		return common.Address{}, err
	}
	defer zeroKey(priv)
	return crypto.PubkeyToAddress(priv.PublicKey), nil
}

// zeroKey wipes the private scalar once the key is no longer needed
func zeroKey(priv *ecdsa.PrivateKey) {
	if priv != nil && priv.D != nil {
		priv.D.SetUint64(0)
	}
}
