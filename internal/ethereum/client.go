package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/AlexZinkM/bank-of-ethereum/internal/model"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the subset of ethclient.Client the wallet needs
type Backend interface {
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg geth.CallMsg) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

// Dialer opens a Backend for an RPC endpoint
type Dialer func(ctx context.Context, rpcURL string) (Backend, error)

// DialBackend connects to an Ethereum JSON-RPC endpoint
func DialBackend(ctx context.Context, rpcURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial %s: %v", model.ErrProvider, rpcURL, err)
	}
	return client, nil
}

// Wallet binds a signer to a network backend
type Wallet struct {
	signer     Signer
	backend    Backend
	network    Network
	rpcTimeout time.Duration
}

// NewWallet creates a wallet. rpcTimeout bounds every single RPC round trip.
func NewWallet(signer Signer, backend Backend, network Network, rpcTimeout time.Duration) *Wallet {
	return &Wallet{
		signer:     signer,
		backend:    backend,
		network:    network,
		rpcTimeout: rpcTimeout,
	}
}

// Address returns the signer address
func (w *Wallet) Address() common.Address { return w.signer.Address() }

// Network returns the network the wallet talks to
func (w *Wallet) Network() Network { return w.network }

// SignerKind returns SignerLocal or SignerExternal
func (w *Wallet) SignerKind() string { return w.signer.Kind() }

// Balance returns the latest balance in wei
func (w *Wallet) Balance(ctx context.Context) (*big.Int, error) {
	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	balance, err := w.backend.BalanceAt(ctx, w.Address(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get balance: %v", model.ErrProvider, err)
	}
	return balance, nil
}

// SignMessage signs msg as an EIP-191 personal message
func (w *Wallet) SignMessage(ctx context.Context, msg []byte) ([]byte, error) {
	return SignMessage(ctx, w.signer, msg)
}

// Send builds, signs and broadcasts a value transfer of value wei to toAddress.
// It checks that the balance covers value plus the maximum fee before signing.
func (w *Wallet) Send(ctx context.Context, toAddress string, value *big.Int) (*types.Transaction, error) {
	// Validate recipient address
	if !common.IsHexAddress(toAddress) {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidAddress, toAddress)
	}
	to := common.HexToAddress(toAddress)
	if value == nil || value.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", model.ErrInvalidAmount)
	}

	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	from := w.Address()

	chainID, err := w.chainID(ctx)
	if err != nil {
		return nil, err
	}

	nonce, err := w.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get nonce: %v", model.ErrProvider, err)
	}

	gas, err := w.backend.EstimateGas(ctx, geth.CallMsg{From: from, To: &to, Value: value})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to estimate gas: %v", model.ErrProvider, err)
	}

	tx, maxFeePerGas, err := w.buildTx(ctx, chainID, nonce, gas, to, value)
	if err != nil {
		return nil, err
	}

	// Check balance covers amount + worst-case fee
	balance, err := w.backend.BalanceAt(ctx, from, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to check balance: %v", model.ErrProvider, err)
	}
	cost := new(big.Int).Mul(maxFeePerGas, new(big.Int).SetUint64(gas))
	cost.Add(cost, value)
	if balance.Cmp(cost) < 0 {
		return nil, fmt.Errorf("%w: insufficient balance: have %s wei, need %s wei", model.ErrProvider, balance, cost)
	}

	signed, err := w.signer.SignTx(ctx, tx, chainID)
	if err != nil {
		return nil, err
	}

	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("%w: failed to send transaction: %v", model.ErrProvider, err)
	}
	return signed, nil
}

// Wait blocks until tx is mined or ctx is done
func (w *Wallet) Wait(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, w.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed waiting for %s: %v", model.ErrProvider, tx.Hash().Hex(), err)
	}
	return receipt, nil
}

// Close releases the signer and the backend connection
func (w *Wallet) Close() {
	_ = w.signer.Close()
	w.backend.Close()
}

// buildTx creates an EIP-1559 transaction, or a legacy one when the chain has no base fee.
// Returns the transaction and the maximum price per gas it may pay.
func (w *Wallet) buildTx(ctx context.Context, chainID *big.Int, nonce, gas uint64, to common.Address, value *big.Int) (*types.Transaction, *big.Int, error) {
	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to get latest header: %v", model.ErrProvider, err)
	}

	if head.BaseFee == nil {
		gasPrice, err := w.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: failed to suggest gas price: %v", model.ErrProvider, err)
		}
		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       &to,
			Value:    value,
		})
		return tx, gasPrice, nil
	}

	tip, err := w.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to suggest tip: %v", model.ErrProvider, err)
	}
	// gasFeeCap = 2*baseFee + gasTipCap, as bind.TransactOpts does
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
	})
	return tx, feeCap, nil
}

// chainID asks the endpoint for its chain id and checks it against the configured network
func (w *Wallet) chainID(ctx context.Context) (*big.Int, error) {
	id, err := w.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get chain id: %v", model.ErrProvider, err)
	}
	if w.network.ChainID != 0 && id.Int64() != w.network.ChainID {
		return nil, fmt.Errorf("%w: endpoint serves chain %s, expected %d (%s)", model.ErrProvider, id, w.network.ChainID, w.network.Name)
	}
	return id, nil
}

func (w *Wallet) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.rpcTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.rpcTimeout)
}
