package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/AlexZinkM/bank-of-ethereum/internal/config"
	"github.com/AlexZinkM/bank-of-ethereum/internal/model"
	"github.com/AlexZinkM/bank-of-ethereum/internal/session"

	"github.com/ethereum/go-ethereum/common"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

var errAborted = errors.New("aborted")

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Generate a new key and store it encrypted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			address, err := a.session.CreateAccount(cmd.Context())
			return printStored(cmd.OutOrStdout(), address, err, "Wallet created")
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Store an existing private key (read from the terminal without echo)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := config.PromptSecret("Enter private key: ")
			if err != nil {
				return err
			}
			defer clear(raw)

			address, err := a.session.ImportAccount(cmd.Context(), strings.TrimSpace(string(raw)))
			return printStored(cmd.OutOrStdout(), address, err, "Wallet imported")
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session state and network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), a.session.Status())
		},
	}
}

func newDepositCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit",
		Short: "Show the deposit address as text and QR code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.session.Connect(cmd.Context()); err != nil {
				return err
			}
			resp, err := a.session.Deposit()
			if err != nil {
				return err
			}

			qr, err := qrcode.New(resp.Address, qrcode.Medium)
			if err != nil {
				return fmt.Errorf("failed to create QR code: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, qr.ToSmallString(false))
			fmt.Fprintf(out, "%s (%s)\n", resp.Address, resp.Network)
			return nil
		},
	}
}

func newBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the wallet balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.session.Connect(cmd.Context()); err != nil {
				return err
			}
			resp, err := a.session.Balance(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newWithdrawCmd(a *app) *cobra.Command {
	var (
		wait bool
		yes  bool
	)
	cmd := &cobra.Command{
		Use:   "withdraw <toAddress> <amount>",
		Short: "Send ETH (amount in ETH, e.g. 0.05)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, amount := args[0], args[1]
			if _, err := a.session.Connect(cmd.Context()); err != nil {
				return err
			}

			if !yes {
				question := fmt.Sprintf("Send %s ETH to %s on %s?", amount, to, a.session.Network().Name)
				if !confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), question) {
					return errAborted
				}
			}

			resp, err := a.session.Withdraw(cmd.Context(), to, amount, wait)
			if resp != nil {
				if perr := printJSON(cmd.OutOrStdout(), resp); perr != nil && err == nil {
					err = perr
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", true, "wait for the transaction receipt")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the decrypted private key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.session.Connect(cmd.Context()); err != nil {
				return err
			}
			if !yes && !confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Print the private key in plain text?") {
				return errAborted
			}
			resp, err := a.session.ExportPrivateKey(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the stored key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes && !confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Delete the stored key? Funds are lost without a backup.") {
				return errAborted
			}
			if err := a.session.DeleteAccount(cmd.Context()); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), a.session.Status())
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newSignCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sign <message>",
		Short: "Sign a message (EIP-191 personal message)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.session.Connect(cmd.Context()); err != nil {
				return err
			}
			resp, err := a.session.SignMessage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newVerifyCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:         "verify <message> <signature>",
		Short:       "Recover the address that signed a message",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{skipVault: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := session.VerifyMessage(args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), model.VerifyResponse{Address: address.Hex()})
		},
	}
}

// printStored reports a stored key, also when logging in with it failed
func printStored(out io.Writer, address common.Address, err error, action string) error {
	if err != nil && address == (common.Address{}) {
		return err
	}
	msg := action + " successfully"
	if err != nil {
		msg = action + ", not logged in: " + err.Error()
	}
	return printJSON(out, model.GenerateResponse{
		Success: true,
		Message: msg,
		Address: address.Hex(),
	})
}

// confirm asks a yes/no question; anything but y or yes is a no
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
