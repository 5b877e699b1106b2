package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/AlexZinkM/bank-of-ethereum/internal/client"
	"github.com/AlexZinkM/bank-of-ethereum/internal/config"
	"github.com/AlexZinkM/bank-of-ethereum/internal/crypto"
	"github.com/AlexZinkM/bank-of-ethereum/internal/ethereum"
	"github.com/AlexZinkM/bank-of-ethereum/internal/session"
	"github.com/AlexZinkM/bank-of-ethereum/internal/storage"
	"github.com/AlexZinkM/bank-of-ethereum/internal/vault"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// skipVault marks commands that run without opening the key store
const skipVault = "skipVault"

// app holds what the persistent pre-run opened for the running command
type app struct {
	cfg     *config.Config
	vault   *vault.Vault
	session *session.Session
}

// newRootCmd builds the command tree. The returned app must be closed after Execute.
func newRootCmd() (*cobra.Command, *app) {
	var (
		network string
		a       = &app{}
	)

	root := &cobra.Command{
		Use:          "bank",
		Short:        "Local Ethereum wallet with one passphrase-encrypted key",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Init(); err != nil {
				return err
			}
			cfg := config.Get()
			if err := config.SetupLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
				return err
			}
			if network != "" {
				cfg.Network = network
			}
			a.cfg = cfg

			if cmd.Annotations[skipVault] != "" {
				return nil
			}
			return a.open()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVarP(&network, "network", "n", "", "network to use (mainnet, sepolia, holesky or a name from RPC_URLS)")

	root.AddCommand(
		newServeCmd(a),
		newCreateCmd(a),
		newImportCmd(a),
		newStatusCmd(a),
		newDepositCmd(a),
		newBalanceCmd(a),
		newWithdrawCmd(a),
		newExportCmd(a),
		newDeleteCmd(a),
		newSignCmd(a),
		newVerifyCmd(a),
		newMigrateCmd(a),
	)
	return root, a
}

// open prompts for the passphrase and builds the vault and the session
func (a *app) open() error {
	cfg := a.cfg

	store, err := storage.Open(cfg.StoreBackend, cfg.StorePath)
	if err != nil {
		return err
	}

	if err := config.PromptForPassphrase(); err != nil {
		_ = store.Close()
		return err
	}
	password, err := config.GetPassphraseBytes()
	if err != nil {
		_ = store.Close()
		return err
	}
	defer clear(password) // Always clear password from memory
	config.ClearPassphrase()

	v, err := vault.New(store, password, crypto.DefaultParams(cfg.ScryptN))
	if err != nil {
		_ = store.Close()
		return err
	}

	s, err := session.New(v, sessionOptions(cfg))
	if err != nil {
		_ = v.Close()
		return err
	}

	a.vault = v
	a.session = s
	log.Debug().Str("backend", cfg.StoreBackend).Str("network", cfg.Network).Msg("Wallet opened")
	return nil
}

func (a *app) close() error {
	if a.session == nil {
		return nil
	}
	err := a.session.Close()
	a.session = nil
	a.vault = nil
	return err
}

// sessionOptions maps configuration onto session options
func sessionOptions(cfg *config.Config) session.Options {
	opts := session.Options{
		Networks:         ethereum.NewNetworks(cfg.RPCURLs, cfg.InfuraAPIKey),
		Network:          cfg.Network,
		Dial:             ethereum.DialBackend,
		RPCTimeout:       cfg.RPCTimeout,
		ConfirmTimeout:   cfg.ConfirmTimeout,
		WithdrawCooldown: time.Duration(cfg.WithdrawCooldown) * time.Minute,
		Fiat:             cfg.FiatCurrency,
	}
	if cfg.FiatCurrency != "" {
		opts.Rates = client.NewCoinGeckoClient("")
	}
	if url := cfg.ExternalSignerURL; url != "" {
		opts.ExternalSigner = func() (ethereum.Signer, error) {
			s, err := ethereum.NewExternalSigner(url)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	}
	return opts
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
