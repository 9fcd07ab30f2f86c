package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/paperwall-labs/paperwall-node/internal/budget"
)

var (
	budgetPerRequest string
	budgetDaily      string
	budgetTotal      string
	historyLimit     int
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Manage spending limits",
	Long: `Manage the spending limits that gate every payment.

Three independent caps are available, each a decimal USDC amount:
per-request, per UTC calendar day, and lifetime. An unset cap means
unlimited on that axis, but with no budget configured at all every payment
without an explicit max price is declined.`,
}

var budgetSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set spending limits",
	Long: `Set one or more spending limits. Omitted flags keep their current value.

Examples:
  paperwall budget set --per-request 0.10 --daily 5.00
  paperwall budget set --total 100`,
	Run: func(cmd *cobra.Command, args []string) {
		partial := &budget.Config{}
		if budgetPerRequest != "" {
			partial.PerRequestMax = &budgetPerRequest
		}
		if budgetDaily != "" {
			partial.DailyMax = &budgetDaily
		}
		if budgetTotal != "" {
			partial.TotalMax = &budgetTotal
		}
		if partial.PerRequestMax == nil && partial.DailyMax == nil && partial.TotalMax == nil {
			fmt.Println("Error: provide at least one of --per-request, --daily, --total")
			os.Exit(1)
		}

		merged, err := newLedger().SetBudget(partial)
		if err != nil {
			fmt.Printf("Error: Failed to set budget: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("✓ Budget updated")
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Println()
		printLimit("Per request", merged.PerRequestMax)
		printLimit("Daily", merged.DailyMax)
		printLimit("Total", merged.TotalMax)
		fmt.Println()
	},
}

var budgetShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display limits and current spend",
	Run: func(cmd *cobra.Command, args []string) {
		ledger := newLedger()

		cfg, err := ledger.GetBudget()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Budget")
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Println()
		if cfg == nil {
			fmt.Println("No budget configured. Every payment without an explicit max")
			fmt.Println("price will be declined. Set one with:")
			fmt.Println("  paperwall budget set --per-request 0.10 --daily 5.00")
			fmt.Println()
		} else {
			printLimit("Per request", cfg.PerRequestMax)
			printLimit("Daily", cfg.DailyMax)
			printLimit("Total", cfg.TotalMax)
			fmt.Println()
		}

		spentToday, err := ledger.History().SpentOn(time.Now().UTC())
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		spentTotal, err := ledger.History().SpentTotal()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		todayUsdc, _ := budget.SmallestToUsdc(spentToday.String())
		totalUsdc, _ := budget.SmallestToUsdc(spentTotal.String())
		fmt.Printf("Spent today (UTC): %s USDC\n", todayUsdc)
		fmt.Printf("Spent total:       %s USDC\n", totalUsdc)
		fmt.Println()
	},
}

var budgetHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded payments",
	Run: func(cmd *cobra.Command, args []string) {
		entries, err := newLedger().History().Entries()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if len(entries) == 0 {
			fmt.Println("No payments recorded.")
			return
		}

		if historyLimit > 0 && len(entries) > historyLimit {
			entries = entries[len(entries)-historyLimit:]
		}

		fmt.Println("Payment History")
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Println()
		for _, entry := range entries {
			usdc, err := budget.SmallestToUsdc(entry.Amount)
			if err != nil {
				usdc = entry.Amount
			}
			fmt.Printf("%s  %s USDC  %s\n", entry.TS, usdc, entry.URL)
			fmt.Printf("    network: %s  tx: %s\n", entry.Network, entry.TxHash)
		}
		fmt.Println()
	},
}

func printLimit(label string, value *string) {
	if value == nil {
		fmt.Printf("%-12s unlimited\n", label+":")
		return
	}
	fmt.Printf("%-12s %s USDC\n", label+":", *value)
}

func init() {
	budgetCmd.AddCommand(budgetSetCmd)
	budgetCmd.AddCommand(budgetShowCmd)
	budgetCmd.AddCommand(budgetHistoryCmd)
	rootCmd.AddCommand(budgetCmd)

	budgetSetCmd.Flags().StringVar(&budgetPerRequest, "per-request", "", "max USDC per payment")
	budgetSetCmd.Flags().StringVar(&budgetDaily, "daily", "", "max USDC per UTC day")
	budgetSetCmd.Flags().StringVar(&budgetTotal, "total", "", "max USDC lifetime")
	budgetHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "show at most this many recent payments")
}
