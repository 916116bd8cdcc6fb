package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "mclink",
		Short: "CLI tool for the mclink whitelist API",
		Long: `mclink is a CLI tool for operating the Minecraft account linking service.

It covers the staff workflow (pending requests, approval, rejection, revocation,
role sync) as well as the plugin endpoints, which is handy for testing a
server configuration without a running game server.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load key from file if not provided via flag/env
			if err := cfg.LoadKey(); err != nil {
				return err
			}

			client = NewClient(cfg.ServerURL, cfg.APIKey)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: MCLINK_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "API key (env: MCLINK_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&cfg.KeyFile, "key-file", cfg.KeyFile, "API key file path (env: MCLINK_API_KEY_FILE)")
	rootCmd.PersistentFlags().StringVarP(&cfg.GuildID, "guild", "g", cfg.GuildID, "Guild ID (env: MCLINK_GUILD)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newPendingCmd())
	rootCmd.AddCommand(newApproveCmd())
	rootCmd.AddCommand(newRejectCmd())
	rootCmd.AddCommand(newBulkApproveCmd())
	rootCmd.AddCommand(newPlayerCmd())
	rootCmd.AddCommand(newLinkCodeCmd())
	rootCmd.AddCommand(newConfirmCmd())
	rootCmd.AddCommand(newMemberCmd())
	rootCmd.AddCommand(newAttemptCmd())
	rootCmd.AddCommand(newKeyCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
