package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/mclink/internal/services/auth"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "API key management (offline)",
	}

	cmd.AddCommand(newKeyGenerateCmd())
	cmd.AddCommand(newKeyHashCmd())
	cmd.AddCommand(newKeySaveCmd())

	return cmd
}

func newKeyGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate a new API key and the hash to put in the guild config",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, hash, err := auth.GenerateKey()
			if err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(KeyResult{Secret: secret, Hash: hash})
			return nil
		},
	}
}

func newKeyHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <secret>",
		Short: "Hash an existing API key secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashKey(args[0])
			if err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(KeyResult{Hash: hash})
			return nil
		},
	}
}

func newKeySaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <secret>",
		Short: "Store an API key in the key file for later commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.SaveKey(args[0]); err != nil {
				return fmt.Errorf("failed to save key: %w", err)
			}

			NewOutput(cfg.Output).PrintMessage("Key saved to " + cfg.KeyFile)
			return nil
		},
	}
}
