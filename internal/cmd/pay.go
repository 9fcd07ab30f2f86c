package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/paperwall-labs/paperwall-node/internal/budget"
	"github.com/paperwall-labs/paperwall-node/internal/core"
	"github.com/paperwall-labs/paperwall-node/internal/payment"
)

var (
	payURL        string
	payTo         string
	payAmount     string
	payNetwork    string
	payAsset      string
	payMaxPrice   string
	payCredential string
	payTimeout    int
)

var payCmd = &cobra.Command{
	Use:   "pay",
	Short: "Pay for a paywalled resource",
	Long: `Sign and settle one payment for a paywalled resource.

The amount is checked against the budget first; a declined payment produces
no signature and no spend. On success the settlement is recorded in the
payment history.

Example:
  paperwall pay --url https://news.example.com/article \
    --pay-to 0x209693Bc6afc0C5328bA36FaF03C514EF312287C --amount 0.01`,
	Run: func(cmd *cobra.Command, args []string) {
		if payURL == "" || payTo == "" || payAmount == "" {
			fmt.Println("Error: --url, --pay-to and --amount are required")
			os.Exit(1)
		}

		smallest, err := budget.UsdcToSmallest(payAmount)
		if err != nil {
			fmt.Printf("Error: invalid amount: %v\n", err)
			os.Exit(1)
		}

		network := payNetwork
		if network == "" {
			network = config.GetConfigWithDefault("network_id", "eip155:84532")
		}

		payer := newPayer()
		defer payer.Facilitator().Reset()
		defer payer.Store().ClearKeyCache()

		modeInput, err := maybePromptPassphrase("Enter wallet passphrase: ")
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(payTimeout)*time.Second)
		defer cancel()

		result, err := payer.Pay(ctx, &core.PayRequest{
			URL: payURL,
			Requirements: &payment.PaymentRequirements{
				Scheme:            "exact",
				Network:           network,
				Asset:             payAsset,
				Amount:            smallest,
				PayTo:             payTo,
				MaxTimeoutSeconds: config.GetConfigInt("payment_timeout_seconds", 600, 10, 86400),
			},
			MaxPrice:   payMaxPrice,
			ModeInput:  modeInput,
			Credential: payCredential,
			Mode:       "manual",
		})
		if err != nil {
			fmt.Printf("Error: Payment failed: %v\n", err)
			os.Exit(1)
		}

		if !result.Decision.Allowed {
			fmt.Println("✗ Payment declined by budget")
			fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
			fmt.Println()
			fmt.Printf("Reason: %s\n", result.Decision.Reason)
			if result.Decision.Limit != "" {
				limit, _ := budget.SmallestToUsdc(result.Decision.Limit)
				fmt.Printf("Limit:  %s USDC\n", limit)
			}
			if result.Decision.Spent != "" {
				spent, _ := budget.SmallestToUsdc(result.Decision.Spent)
				fmt.Printf("Spent:  %s USDC\n", spent)
			}
			fmt.Println()
			os.Exit(1)
		}

		fmt.Println("✓ Payment settled")
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Println()
		fmt.Printf("Resource:     %s\n", payURL)
		fmt.Printf("Amount:       %s USDC\n", payAmount)
		fmt.Printf("Transaction:  %s\n", result.Settlement.Transaction)
		fmt.Printf("Network:      %s\n", result.Settlement.Network)
		fmt.Println()
	},
}

var facilitatorCmd = &cobra.Command{
	Use:   "facilitator",
	Short: "Inspect the payment facilitator",
}

var facilitatorSupportedCmd = &cobra.Command{
	Use:   "supported",
	Short: "List the facilitator's supported payment schemes",
	Run: func(cmd *cobra.Command, args []string) {
		client := payment.NewClient(config, logger)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		supported, err := client.GetSupported(ctx, client.DefaultFacilitatorURL(), payCredential)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Facilitator: %s\n", client.DefaultFacilitatorURL())
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Println()
		if len(supported.Kinds) == 0 {
			fmt.Println("No payment schemes reported.")
			return
		}
		for _, kind := range supported.Kinds {
			fmt.Printf("scheme=%s network=%s (x402 v%d)\n", kind.Scheme, kind.Network, kind.X402Version)
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(payCmd)
	facilitatorCmd.AddCommand(facilitatorSupportedCmd)
	rootCmd.AddCommand(facilitatorCmd)

	payCmd.Flags().StringVar(&payURL, "url", "", "resource URL being paid for")
	payCmd.Flags().StringVar(&payTo, "pay-to", "", "recipient address")
	payCmd.Flags().StringVar(&payAmount, "amount", "", "payment amount in USDC, e.g. 0.01")
	payCmd.Flags().StringVarP(&payNetwork, "network", "n", "", "CAIP-2 network ID (default from config)")
	payCmd.Flags().StringVar(&payAsset, "asset", "", "token contract address (default: USDC for the network)")
	payCmd.Flags().StringVar(&payMaxPrice, "max-price", "", "decline if the amount exceeds this USDC cap")
	payCmd.Flags().StringVar(&payCredential, "credential", "", "facilitator bearer credential")
	payCmd.Flags().IntVar(&payTimeout, "timeout", 60, "overall payment timeout in seconds")
	facilitatorSupportedCmd.Flags().StringVar(&payCredential, "credential", "", "facilitator bearer credential")
}
