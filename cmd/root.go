package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/code-payments/flipchat-iapkit/config"
	"github.com/code-payments/flipchat-iapkit/logger"
)

var (
	envDir string

	cfg *config.Config
	log *zap.Logger
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "iapctl",
	Short: "In-app purchase entitlement tool",
	Long: `iapctl drives an entitlement reconciler against an in-memory purchasing
platform, optionally backed by the Google Play catalog, and prints the
resulting products and entitlements.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(envDir)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		l, err := logger.New(&loaded.Log)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		cfg = loaded
		log = l
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		l, logErr := logger.New(&logger.Config{Level: "debug", Format: "console"})
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&envDir, "env-dir", ".", "directory containing an optional .env file")

	RootCmd.AddCommand(
		productsCmd,
		entitlementsCmd,
		purchaseCmd,
		restoreCmd,
	)
}
