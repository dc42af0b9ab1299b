// Package main is the entry point for the raffle backend
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/unclekaldoteth/stacks-daily-raffle/config"
	"github.com/unclekaldoteth/stacks-daily-raffle/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// GlobalFlags override the environment configuration
type GlobalFlags struct {
	Network         string
	ContractAddress string
	ContractName    string
	LogLevel        string
}

var (
	globalFlags GlobalFlags
	cfg         *config.Config
	logger      *zap.Logger
)

// rootCmd serves the API when run without a subcommand
var rootCmd = &cobra.Command{
	Use:           "raffle",
	Short:         "Stacks daily raffle backend",
	Long:          "Read-only contract proxy, raffle state snapshots and transaction preparation for the daily-raffle contract.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		applyFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("network") {
		c.Network = globalFlags.Network
	}
	if flags.Changed("contract-address") {
		c.ContractAddress = globalFlags.ContractAddress
	}
	if flags.Changed("contract-name") {
		c.ContractName = globalFlags.ContractName
	}
	if flags.Changed("log-level") {
		c.LogLevel = globalFlags.LogLevel
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.Network, "network", config.NetworkMainnet, "stacks network: mainnet|testnet")
	rootCmd.PersistentFlags().StringVar(&globalFlags.ContractAddress, "contract-address", "", "contract issuer address")
	rootCmd.PersistentFlags().StringVar(&globalFlags.ContractName, "contract-name", "", "contract name")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogLevel, "log-level", "info", "log level: debug|info|warn|error")

	rootCmd.AddCommand(serveCmd, snapshotCmd, txCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
