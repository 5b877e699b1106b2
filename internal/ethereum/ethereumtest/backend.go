// Package ethereumtest provides an in-memory chain backend for tests.
package ethereumtest

import (
	"context"
	"errors"
	"math/big"
	"sync"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend implements ethereum.Backend against in-memory balances.
// Sent transactions are mined immediately unless HoldReceipts is set.
type Backend struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	BaseFee      *big.Int // nil simulates a pre-London chain
	TipCap       *big.Int
	GasPrice     *big.Int
	Balances     map[common.Address]*big.Int
	Nonces       map[common.Address]uint64
	Sent         []*types.Transaction
	Receipts     map[common.Hash]*types.Receipt

	// SendErr, when set, is returned by SendTransaction
	SendErr error
	Closed  bool

	// HoldReceipts keeps receipts pending until Mine
	HoldReceipts bool
	pending      []*types.Receipt
}

// NewBackend returns a London-style chain with the given chain id
func NewBackend(chainID int64) *Backend {
	return &Backend{
		ChainIDValue: big.NewInt(chainID),
		BaseFee:      big.NewInt(10_000_000_000),
		TipCap:       big.NewInt(1_000_000_000),
		GasPrice:     big.NewInt(20_000_000_000),
		Balances:     make(map[common.Address]*big.Int),
		Nonces:       make(map[common.Address]uint64),
		Receipts:     make(map[common.Hash]*types.Receipt),
	}
}

// Fund sets the balance of addr
func (b *Backend) Fund(addr common.Address, wei *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Balances[addr] = new(big.Int).Set(wei)
}

// SentTransactions returns a copy of the broadcast transactions
func (b *Backend) SentTransactions() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.Sent...)
}

func (b *Backend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.Balances[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Nonces[account], nil
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.GasPrice), nil
}

func (b *Backend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.TipCap), nil
}

func (b *Backend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	h := &types.Header{Number: big.NewInt(100)}
	if b.BaseFee != nil {
		h.BaseFee = new(big.Int).Set(b.BaseFee)
	}
	return h, nil
}

func (b *Backend) EstimateGas(context.Context, geth.CallMsg) (uint64, error) {
	return 21000, nil
}

func (b *Backend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.ChainIDValue), nil
}

// SendTransaction recovers the sender, moves value and records a successful receipt
func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if b.SendErr != nil {
		return b.SendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(b.ChainIDValue), tx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bal := b.Balances[from]
	if bal == nil || bal.Cmp(tx.Value()) < 0 {
		return errors.New("insufficient funds for transfer")
	}
	bal.Sub(bal, tx.Value())
	to := *tx.To()
	if b.Balances[to] == nil {
		b.Balances[to] = new(big.Int)
	}
	b.Balances[to].Add(b.Balances[to], tx.Value())
	b.Nonces[from]++

	b.Sent = append(b.Sent, tx)
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(101),
		GasUsed:     tx.Gas(),
	}
	if b.HoldReceipts {
		b.pending = append(b.pending, receipt)
	} else {
		b.Receipts[tx.Hash()] = receipt
	}
	return nil
}

// Mine publishes the receipts held back by HoldReceipts
func (b *Backend) Mine() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.pending {
		b.Receipts[r.TxHash] = r
	}
	b.pending = nil
}

func (b *Backend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok := b.Receipts[hash]; ok {
		return r, nil
	}
	return nil, geth.NotFound
}

func (b *Backend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, nil
}

func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
}
