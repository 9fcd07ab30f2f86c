package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/paperwall-labs/paperwall-node/internal/budget"
	"github.com/paperwall-labs/paperwall-node/internal/core"
	"github.com/paperwall-labs/paperwall-node/internal/utils"
	"github.com/paperwall-labs/paperwall-node/internal/wallet"
)

var (
	configPath string
	config     *utils.ConfigManager
	logger     *utils.LogsManager
)

var rootCmd = &cobra.Command{
	Use:   "paperwall",
	Short: "Paperwall payment node",
	Long: `A wallet security and payment-authorization node for automated agents.

Paperwall holds one encrypted signing key per installation, enforces
per-request, daily and lifetime spending budgets, and pays for paywalled
resources via x402 facilitators using EIP-712 payment authorizations.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Load .env if present; real environment always wins.
		godotenv.Load()

		config = utils.NewConfigManager(configPath)
		logger = utils.NewLogsManager(config)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
}

func newStore() *wallet.Store {
	return wallet.NewStore(config, logger)
}

func newLedger() *budget.Ledger {
	return budget.NewLedger(logger)
}

func newPayer() *core.Payer {
	return core.NewPayer(newStore(), newLedger(), config, logger)
}
