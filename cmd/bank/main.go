// Command bank is a local Ethereum wallet holding one passphrase-encrypted key.
//
// @title        Bank of Ethereum API
// @version      1.0
// @description  Local Ethereum wallet: one encrypted key, balance, deposit and withdraw.
// @host         localhost:8080
// @BasePath     /
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	root, a := newRootCmd()
	err := root.ExecuteContext(ctx)

	// PersistentPostRun is skipped when a command fails
	if cerr := a.close(); cerr != nil {
		log.Error().Err(cerr).Msg("Failed to close wallet")
	}
	stop()

	if err != nil {
		os.Exit(1)
	}
}
