// Package session implements the wallet login state machine on top of the key vault
// and the Ethereum provider.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/AlexZinkM/bank-of-ethereum/internal/common"
	"github.com/AlexZinkM/bank-of-ethereum/internal/ethereum"
	"github.com/AlexZinkM/bank-of-ethereum/internal/model"
	"github.com/AlexZinkM/bank-of-ethereum/internal/vault"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

// State of the session. Replaces the connected/has-stored-key boolean pair.
type State int

const (
	LoggedOutNoKey State = iota // no stored key, not connected
	LoggedOut                   // stored key present, not connected
	LoggedIn                    // connected through the stored key or the external signer
)

func (s State) String() string {
	switch s {
	case LoggedOutNoKey:
		return "LoggedOutNoKey"
	case LoggedOut:
		return "LoggedOut"
	case LoggedIn:
		return "LoggedIn"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// RateSource quotes the ETH price in a fiat currency
type RateSource interface {
	GetETHRate(ctx context.Context, fiat string) (string, error)
}

// Options configures a Session
type Options struct {
	Networks *ethereum.Networks
	Network  string          // initial network name
	Dial     ethereum.Dialer // defaults to ethereum.DialBackend

	// ExternalSigner opens the delegated signer; nil disables that login path
	ExternalSigner func() (ethereum.Signer, error)

	RPCTimeout       time.Duration
	ConfirmTimeout   time.Duration
	WithdrawCooldown time.Duration

	Rates RateSource // optional
	Fiat  string
}

// Session is the single logical user of the wallet
type Session struct {
	mu      sync.Mutex
	vault   *vault.Vault
	opts    Options
	network ethereum.Network
	state   State
	wallet  *ethereum.Wallet

	lastWithdraw time.Time
}

// New creates a session. The initial state is LoggedOut or LoggedOutNoKey,
// depending on whether the vault holds a key.
// The network is resolved on login, so vault-only use needs no endpoint.
func New(v *vault.Vault, opts Options) (*Session, error) {
	if opts.Networks == nil {
		return nil, fmt.Errorf("networks are required")
	}
	if opts.Dial == nil {
		opts.Dial = ethereum.DialBackend
	}

	name := strings.ToLower(strings.TrimSpace(opts.Network))
	if name == "" {
		name = ethereum.DefaultNetwork
	}

	s := &Session{vault: v, opts: opts, network: ethereum.Network{Name: name}}
	if err := s.refreshLoggedOutState(); err != nil {
		return nil, err
	}
	return s, nil
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status describes the session without exposing key material
func (s *Session) Status() model.StatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := model.StatusResponse{State: s.state.String(), Network: s.network.Name}
	if s.wallet != nil {
		resp.Signer = s.wallet.SignerKind()
		resp.Address = s.wallet.Address().Hex()
	}
	return resp
}

// CreateAccount generates a new key, stores it and logs in with it.
// Fails with model.ErrKeyExists when a key is already stored.
// When the key is stored but login fails, the address is returned with the error
// and the session stays LoggedOut.
func (s *Session) CreateAccount(ctx context.Context) (gethcommon.Address, error) {
	return s.storeAndLogin(ctx, func() (gethcommon.Address, error) {
		return s.vault.Create()
	})
}

// ImportAccount stores the given private key and logs in with it.
// Fails with model.ErrKeyExists when a key is already stored.
func (s *Session) ImportAccount(ctx context.Context, privateKey string) (gethcommon.Address, error) {
	return s.storeAndLogin(ctx, func() (gethcommon.Address, error) {
		return s.vault.ImportKey(privateKey)
	})
}

func (s *Session) storeAndLogin(ctx context.Context, store func() (gethcommon.Address, error)) (gethcommon.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	has, err := s.vault.HasStoredKey()
	if err != nil {
		return gethcommon.Address{}, err
	}
	if has {
		return gethcommon.Address{}, model.ErrKeyExists
	}

	address, err := store()
	if err != nil {
		return gethcommon.Address{}, err
	}

	// a session held by the external signer switches to the new local key
	s.closeWallet()
	s.state = LoggedOut

	if err := s.connectLocal(ctx); err != nil {
		log.Warn().Err(err).Str("address", address.Hex()).Msg("Key stored, login failed")
		return address, err
	}
	return address, nil
}

// Connect logs in. A stored key takes precedence over the external signer.
// Returns model.ErrNoStoredKey when neither is available.
func (s *Session) Connect(ctx context.Context) (gethcommon.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == LoggedIn {
		return s.wallet.Address(), nil
	}

	switch {
	case s.state == LoggedOut:
		if err := s.connectLocal(ctx); err != nil {
			return gethcommon.Address{}, err
		}
	case s.opts.ExternalSigner != nil:
		if err := s.connectExternal(ctx); err != nil {
			return gethcommon.Address{}, err
		}
	default:
		return gethcommon.Address{}, model.ErrNoStoredKey
	}
	return s.wallet.Address(), nil
}

// Disconnect logs out. With removeKey the stored key is deleted too.
func (s *Session) Disconnect(ctx context.Context, removeKey bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeWallet()
	if removeKey {
		if err := s.vault.Delete(); err != nil {
			// wallet is already closed; report the real slot state
			_ = s.refreshLoggedOutState()
			return err
		}
	}
	log.Info().Bool("removeKey", removeKey).Msg("Disconnected")
	return s.refreshLoggedOutState()
}

// DeleteAccount deletes the stored key and logs out
func (s *Session) DeleteAccount(ctx context.Context) error {
	return s.Disconnect(ctx, true)
}

// Deposit returns the address to deposit to, with a QR code (PNG, base64)
func (s *Session) Deposit() (*model.DepositResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLoggedIn(); err != nil {
		return nil, err
	}

	address := s.wallet.Address().Hex()
	qr, err := generateQRCode(address)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}
	return &model.DepositResponse{Address: address, Network: s.network.Name, QR: qr}, nil
}

// Balance returns the wallet balance. The fiat value is best effort.
func (s *Session) Balance(ctx context.Context) (*model.BalanceResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLoggedIn(); err != nil {
		return nil, err
	}

	wei, err := s.wallet.Balance(ctx)
	if err != nil {
		return nil, err
	}

	resp := &model.BalanceResponse{
		Address: s.wallet.Address().Hex(),
		Network: s.network.Name,
		Wei:     wei.String(),
		ETH:     common.WeiToETH(wei),
	}

	// Price only means something on mainnet
	if s.opts.Rates != nil && s.opts.Fiat != "" && s.network.Name == "mainnet" {
		rate, err := s.opts.Rates.GetETHRate(ctx, s.opts.Fiat)
		if err != nil {
			log.Warn().Err(err).Str("fiat", s.opts.Fiat).Msg("Failed to get ETH rate")
		} else {
			resp.Fiat = strings.ToLower(s.opts.Fiat)
			resp.Rate = rate
			resp.Value = fiatValue(resp.ETH, rate)
		}
	}
	return resp, nil
}

// Withdraw sends amount (ETH, decimal string) to toAddress.
// With wait it blocks until the receipt arrives or the confirm timeout expires;
// the session is not locked while waiting. On a failed wait the response still
// carries the transaction hash.
func (s *Session) Withdraw(ctx context.Context, toAddress, amount string, wait bool) (*model.WithdrawResponse, error) {
	w, tx, err := s.send(ctx, toAddress, amount)
	if err != nil {
		return nil, err
	}

	resp := &model.WithdrawResponse{TxHash: tx.Hash().Hex(), Status: "pending"}
	if !wait {
		return resp, nil
	}

	waitCtx := ctx
	if s.opts.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.opts.ConfirmTimeout)
		defer cancel()
	}
	receipt, err := w.Wait(waitCtx, tx)
	if err != nil {
		return resp, err
	}

	resp.Status = "failed"
	if receipt.Status == types.ReceiptStatusSuccessful {
		resp.Status = "success"
	}
	if receipt.BlockNumber != nil {
		resp.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return resp, nil
}

// send validates and broadcasts a withdrawal under s.mu
func (s *Session) send(ctx context.Context, toAddress, amount string) (*ethereum.Wallet, *types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLoggedIn(); err != nil {
		return nil, nil, err
	}

	// Validate recipient address
	if !gethcommon.IsHexAddress(toAddress) {
		return nil, nil, fmt.Errorf("%w: %q", model.ErrInvalidAddress, toAddress)
	}

	// Convert amount to wei (string-based, no float precision loss)
	wei, err := common.ETHToWei(amount)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrInvalidAmount, err)
	}

	// Check cooldown
	if s.opts.WithdrawCooldown > 0 && !s.lastWithdraw.IsZero() {
		if since := time.Since(s.lastWithdraw); since < s.opts.WithdrawCooldown {
			remaining := s.opts.WithdrawCooldown - since
			return nil, nil, fmt.Errorf("%w: cooldown active, please wait %v", model.ErrInvalidState, remaining.Round(time.Second))
		}
	}

	tx, err := s.wallet.Send(ctx, toAddress, wei)
	if err != nil {
		return nil, nil, err
	}
	s.lastWithdraw = time.Now()

	log.Info().
		Str("tx", tx.Hash().Hex()).
		Str("to", toAddress).
		Str("amount", amount).
		Str("network", s.network.Name).
		Msg("Withdrawal sent")
	return s.wallet, tx, nil
}

// ExportPrivateKey decrypts and returns the stored key.
// Only a session logged in with the stored key may export it.
func (s *Session) ExportPrivateKey(ctx context.Context) (*model.ExportResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLoggedIn(); err != nil {
		return nil, err
	}
	if s.wallet.SignerKind() != ethereum.SignerLocal {
		return nil, model.ErrNotExportable
	}

	key, err := s.vault.Unlock()
	if err != nil {
		return nil, err
	}
	log.Warn().Str("address", s.wallet.Address().Hex()).Msg("Private key exported")
	return &model.ExportResponse{Address: s.wallet.Address().Hex(), PrivateKey: key}, nil
}

// SwitchNetwork selects another network. A logged in session reconnects on it.
func (s *Session) SwitchNetwork(ctx context.Context, name string) (ethereum.Network, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	network, err := s.opts.Networks.Resolve(name)
	if err != nil {
		return ethereum.Network{}, err
	}

	if s.state != LoggedIn {
		s.network = network
		return network, nil
	}

	kind := s.wallet.SignerKind()
	prev := s.network
	s.closeWallet()
	s.state = LoggedOut
	s.network = network

	if kind == ethereum.SignerExternal {
		err = s.connectExternal(ctx)
	} else {
		err = s.connectLocal(ctx)
	}
	if err != nil {
		// stay logged out on the previous network
		s.network = prev
		_ = s.refreshLoggedOutState()
		return ethereum.Network{}, err
	}
	log.Info().Str("from", prev.Name).Str("to", network.Name).Msg("Network switched")
	return network, nil
}

// Network returns the selected network
func (s *Session) Network() ethereum.Network {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.network
}

// SignMessage signs msg with the logged in signer. Returns a 0x-prefixed signature.
func (s *Session) SignMessage(ctx context.Context, msg string) (*model.SignResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLoggedIn(); err != nil {
		return nil, err
	}
	sig, err := s.wallet.SignMessage(ctx, []byte(msg))
	if err != nil {
		return nil, err
	}
	return &model.SignResponse{Address: s.wallet.Address().Hex(), Signature: hexutil.Encode(sig)}, nil
}

// VerifyMessage recovers the signer of msg. No login needed.
// The signature is hex with or without the 0x prefix.
func VerifyMessage(msg, signature string) (gethcommon.Address, error) {
	signature = strings.TrimSpace(signature)
	if !strings.HasPrefix(signature, "0x") && !strings.HasPrefix(signature, "0X") {
		signature = "0x" + signature
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return gethcommon.Address{}, fmt.Errorf("%w: signature is not hex", model.ErrProvider)
	}
	return ethereum.VerifyMessage([]byte(msg), sig)
}

// Close logs out and closes the vault
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeWallet()
	return s.vault.Close()
}

// connectLocal decrypts the stored key and opens a wallet on it. Caller holds s.mu.
func (s *Session) connectLocal(ctx context.Context) error {
	key, err := s.vault.Unlock()
	if err != nil {
		return err
	}
	signer, err := ethereum.NewKeySigner(key)
	if err != nil {
		return err
	}
	if err := s.openWallet(ctx, signer); err != nil {
		_ = signer.Close()
		return err
	}
	log.Info().Str("address", signer.Address().Hex()).Str("network", s.network.Name).Msg("Logged in with stored key")
	return nil
}

// connectExternal opens a wallet on the external signer. Caller holds s.mu.
func (s *Session) connectExternal(ctx context.Context) error {
	if s.opts.ExternalSigner == nil {
		return fmt.Errorf("%w: no external signer configured", model.ErrProvider)
	}
	signer, err := s.opts.ExternalSigner()
	if err != nil {
		return err
	}
	if err := s.openWallet(ctx, signer); err != nil {
		_ = signer.Close()
		return err
	}
	log.Info().Str("address", signer.Address().Hex()).Str("network", s.network.Name).Msg("Logged in with external signer")
	return nil
}

// openWallet resolves the selected network and dials it. Caller holds s.mu.
func (s *Session) openWallet(ctx context.Context, signer ethereum.Signer) error {
	network, err := s.opts.Networks.Resolve(s.network.Name)
	if err != nil {
		return err
	}
	s.network = network

	dialCtx := ctx
	if s.opts.RPCTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.opts.RPCTimeout)
		defer cancel()
	}
	backend, err := s.opts.Dial(dialCtx, s.network.RPCURL)
	if err != nil {
		return err
	}
	s.wallet = ethereum.NewWallet(signer, backend, s.network, s.opts.RPCTimeout)
	s.state = LoggedIn
	return nil
}

func (s *Session) closeWallet() {
	if s.wallet != nil {
		s.wallet.Close()
		s.wallet = nil
	}
}

// refreshLoggedOutState sets LoggedOut or LoggedOutNoKey from the vault. Caller holds s.mu.
func (s *Session) refreshLoggedOutState() error {
	has, err := s.vault.HasStoredKey()
	if err != nil {
		return err
	}
	if has {
		s.state = LoggedOut
	} else {
		s.state = LoggedOutNoKey
	}
	return nil
}

func (s *Session) requireLoggedIn() error {
	if s.state != LoggedIn || s.wallet == nil {
		return fmt.Errorf("%w: not logged in", model.ErrInvalidState)
	}
	return nil
}

// fiatValue multiplies an ETH amount by a rate, rounded to 2 decimals.
// Returns "" when either value does not parse.
func fiatValue(eth, rate string) string {
	e, ok := new(big.Rat).SetString(eth)
	if !ok {
		return ""
	}
	r, ok := new(big.Rat).SetString(rate)
	if !ok {
		return ""
	}
	return new(big.Rat).Mul(e, r).FloatString(2)
}

// generateQRCode generates QR code of address in base64
func generateQRCode(address string) (string, error) {
	qr, err := qrcode.New(address, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	// Get PNG image
	png, err := qr.PNG(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate PNG: %w", err)
	}

	// Encode to base64
	return base64.StdEncoding.EncodeToString(png), nil
}
