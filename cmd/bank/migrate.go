package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/AlexZinkM/bank-of-ethereum/internal/model"

	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "migrate <legacy.json>",
		Short: "Re-encrypt a legacy record (raw key stored alongside) under the passphrase",
		Long: `Reads a record in the old layout {id, encryptedData, iv, key} with base64 byte fields,
decrypts it with its co-located key and stores the same private key encrypted under the
passphrase. The legacy file is left untouched; delete it once the migration is verified.
A stored key is never replaced unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			legacy, err := readLegacyRecord(args[0])
			if err != nil {
				return err
			}
			if force && !confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Replace the stored key? It is lost without a backup.") {
				return errAborted
			}
			address, err := a.vault.MigrateLegacy(legacy, force)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), model.GenerateResponse{
				Success: true,
				Message: "Legacy record migrated",
				Address: address.Hex(),
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace a stored key")
	return cmd
}

func readLegacyRecord(path string) (*model.LegacyKeyRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy record: %w", err)
	}
	var rec model.LegacyKeyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: failed to parse legacy record: %v", model.ErrDecryptionFailed, err)
	}
	if rec.ID != "" && rec.ID != model.KeySlotID {
		return nil, fmt.Errorf("%w: unexpected record id %q", model.ErrDecryptionFailed, rec.ID)
	}
	return &rec, nil
}
