package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/AlexZinkM/bank-of-ethereum/internal/model"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/external"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer kinds reported by Signer.Kind
const (
	SignerLocal    = "local"
	SignerExternal = "external"
)

// Signer signs on behalf of one address.
// SignText returns a 65-byte [R || S || V] signature with V in {0, 1}.
type Signer interface {
	Address() common.Address
	Kind() string
	SignText(ctx context.Context, text []byte) ([]byte, error)
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
	Close() error
}

// KeySigner signs with a private key held in memory
type KeySigner struct {
	priv    *ecdsa.PrivateKey
	address common.Address
}

// NewKeySigner creates a signer from a hex private key
func NewKeySigner(hexKey string) (*KeySigner, error) {
	priv, err := ParseKey(hexKey)
	if err != nil {
		return nil, err
	}
	return &KeySigner{priv: priv, address: crypto.PubkeyToAddress(priv.PublicKey)}, nil
}

func (s *KeySigner) Address() common.Address { return s.address }

func (s *KeySigner) Kind() string { return SignerLocal }

func (s *KeySigner) SignText(_ context.Context, text []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(text), s.priv)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign message: %v", model.ErrProvider, err)
	}
	return sig, nil
}

func (s *KeySigner) SignTx(_ context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.priv)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign transaction: %v", model.ErrProvider, err)
	}
	return signed, nil
}

// Close wipes the private key from memory
func (s *KeySigner) Close() error {
	zeroKey(s.priv)
	return nil
}

// ExternalSigner delegates signing to a Clef-compatible signer over JSON-RPC.
// The key never enters this process.
type ExternalSigner struct {
	api     *external.ExternalSigner
	account accounts.Account
}

// NewExternalSigner connects to endpoint and selects the first account it exposes
func NewExternalSigner(endpoint string) (*ExternalSigner, error) {
	api, err := external.NewExternalSigner(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect external signer: %v", model.ErrProvider, err)
	}

	accs := api.Accounts()
	if len(accs) == 0 {
		return nil, fmt.Errorf("%w: external signer exposes no accounts", model.ErrProvider)
	}

	return &ExternalSigner{api: api, account: accs[0]}, nil
}

func (s *ExternalSigner) Address() common.Address { return s.account.Address }

func (s *ExternalSigner) Kind() string { return SignerExternal }

func (s *ExternalSigner) SignText(_ context.Context, text []byte) ([]byte, error) {
	sig, err := s.api.SignText(s.account, text)
	if err != nil {
		return nil, fmt.Errorf("%w: external signer rejected message: %v", model.ErrProvider, err)
	}
	return sig, nil
}

func (s *ExternalSigner) SignTx(_ context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := s.api.SignTx(s.account, tx, chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: external signer rejected transaction: %v", model.ErrProvider, err)
	}
	return signed, nil
}

// Close is a no-op: accounts/external keeps its RPC client private and
// reports an error from its own Close.
func (s *ExternalSigner) Close() error { return nil }
