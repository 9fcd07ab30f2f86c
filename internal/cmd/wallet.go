package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/paperwall-labs/paperwall-node/internal/budget"
	"github.com/paperwall-labs/paperwall-node/internal/crypto"
	"github.com/paperwall-labs/paperwall-node/internal/wallet"
)

var (
	walletNetwork    string
	walletPrivateKey string
	walletMode       string
	walletKeychain   bool
	forceWallet      bool
	migrateTarget    string
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage the payment wallet",
	Long: `Manage the single payment wallet of this installation.

The wallet's private key is stored either encrypted on disk (AES-256-GCM,
key stretched with PBKDF2) or in the OS keychain. Encryption modes:

  machine   key derived from this machine and user (default; not portable)
  password  key derived from a passphrase of at least 8 characters
  env       32-byte base64 key injected via ` + crypto.EnvKeyVariable + `

For ephemeral CI use only, ` + "PAPERWALL_PRIVATE_KEY" + ` bypasses the wallet
entirely.`,
}

var walletCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new payment wallet",
	Long: `Generate a fresh private key and store it for this installation.

Refuses to overwrite an existing wallet unless --force is given.

Examples:
  paperwall wallet create
  paperwall wallet create --mode password
  paperwall wallet create --keychain --network eip155:8453`,
	Run: func(cmd *cobra.Command, args []string) {
		store := newStore()

		opts, err := createOptions()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		info, err := store.Create(opts)
		if err != nil {
			fmt.Printf("Error: Failed to create wallet: %v\n", err)
			os.Exit(1)
		}
		defer store.ClearKeyCache()

		fmt.Println()
		fmt.Println("✓ Wallet created successfully")
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		printWalletInfo(info.Address, info.NetworkID, info.KeyStorage, info.EncryptionMode)
		if info.EncryptionMode == string(crypto.ModePassword) {
			fmt.Println("Remember your passphrase - it cannot be recovered if lost!")
			fmt.Println()
		}
	},
}

var walletImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an existing wallet from a private key",
	Long: `Import an existing private key (64 hex characters, 0x prefix optional).

SECURITY WARNING: Never share your private key with anyone or enter it on
untrusted systems. The private key grants full control over the wallet.

Example:
  paperwall wallet import --private-key 0x1234... --mode password`,
	Run: func(cmd *cobra.Command, args []string) {
		if walletPrivateKey == "" {
			fmt.Println("Error: --private-key is required")
			os.Exit(1)
		}

		store := newStore()

		opts, err := createOptions()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		info, err := store.Import(walletPrivateKey, opts)
		if err != nil {
			fmt.Printf("Error: Failed to import wallet: %v\n", err)
			os.Exit(1)
		}
		defer store.ClearKeyCache()

		fmt.Println()
		fmt.Println("✓ Wallet imported successfully")
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		printWalletInfo(info.Address, info.NetworkID, info.KeyStorage, info.EncryptionMode)
	},
}

var walletShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display wallet metadata",
	Long:  `Display the wallet's address, network and key storage. Never touches key material.`,
	Run: func(cmd *cobra.Command, args []string) {
		info, err := newStore().Show()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Wallet")
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		printWalletInfo(info.Address, info.NetworkID, info.KeyStorage, info.EncryptionMode)
	},
}

var walletBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Query the wallet's USDC balance from the blockchain",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		balance, err := newStore().GetBalance(ctx)
		if err != nil {
			fmt.Printf("Error: Failed to query balance: %v\n", err)
			os.Exit(1)
		}

		usdc, err := budget.SmallestToUsdc(balance.Amount)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("✓ Balance retrieved")
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Println()
		fmt.Printf("Address:    %s\n", balance.Address)
		fmt.Printf("Network:    %s\n", balance.NetworkID)
		fmt.Printf("Balance:    %s USDC\n", usdc)
		fmt.Println()
	},
}

var walletMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move the wallet key between file and OS keychain storage",
	Long: `Move the wallet's private key between encrypted-file storage and the OS
keychain. The destination is written and verified before the source is
removed, so a failed migration never leaves the wallet unreadable.

Examples:
  paperwall wallet migrate --to keychain
  paperwall wallet migrate --to file --mode password`,
	Run: func(cmd *cobra.Command, args []string) {
		store := newStore()
		defer store.ClearKeyCache()

		switch migrateTarget {
		case "keychain":
			input, err := maybePromptPassphrase("Enter wallet passphrase: ")
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			if err := store.MigrateToKeychain(input); err != nil {
				fmt.Printf("Error: Migration failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("✓ Wallet key migrated to the OS keychain")

		case "file":
			mode := crypto.ModeName(walletMode)
			input := ""
			if mode == crypto.ModePassword {
				var err error
				input, err = promptNewPassphrase()
				if err != nil {
					fmt.Printf("Error: %v\n", err)
					os.Exit(1)
				}
			}
			if err := store.MigrateToFile(mode, input); err != nil {
				fmt.Printf("Error: Migration failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("✓ Wallet key migrated to encrypted file storage")

		default:
			fmt.Println("Error: --to must be 'keychain' or 'file'")
			os.Exit(1)
		}
	},
}

func createOptions() (*wallet.CreateOptions, error) {
	opts := &wallet.CreateOptions{
		NetworkID: walletNetwork,
		Keychain:  walletKeychain,
		Force:     forceWallet,
	}

	mode := crypto.ModeName(walletMode)
	switch mode {
	case "", crypto.ModeMachine, crypto.ModeEnv:
		opts.Mode = mode
	case crypto.ModePassword:
		passphrase, err := promptNewPassphrase()
		if err != nil {
			return nil, err
		}
		opts.Mode = mode
		opts.ModeInput = passphrase
	default:
		return nil, fmt.Errorf("unknown encryption mode %q (machine, password or env)", walletMode)
	}
	return opts, nil
}

func printWalletInfo(address, network, storage, mode string) {
	fmt.Println()
	fmt.Printf("Address:     %s\n", address)
	fmt.Printf("Network:     %s\n", network)
	fmt.Printf("Key storage: %s\n", storage)
	if mode != "" {
		fmt.Printf("Encryption:  %s\n", mode)
	}
	fmt.Println()
}

func promptNewPassphrase() (string, error) {
	passphrase, err := promptPassphrase("Enter passphrase to encrypt wallet: ")
	if err != nil {
		return "", err
	}
	confirmed, err := promptPassphrase("Confirm passphrase: ")
	if err != nil {
		return "", err
	}
	if passphrase != confirmed {
		return "", fmt.Errorf("passphrases do not match")
	}
	return passphrase, nil
}

// maybePromptPassphrase asks for the wallet passphrase only when the wallet
// is password-mode.
func maybePromptPassphrase(prompt string) (string, error) {
	info, err := newStore().Show()
	if err != nil {
		return "", err
	}
	if info.EncryptionMode != string(crypto.ModePassword) {
		return "", nil
	}
	return promptPassphrase(prompt)
}

func promptPassphrase(prompt string) (string, error) {
	fmt.Print(prompt)
	passphrase, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %v", err)
	}
	return strings.TrimSpace(string(passphrase)), nil
}

func init() {
	walletCmd.AddCommand(walletCreateCmd)
	walletCmd.AddCommand(walletImportCmd)
	walletCmd.AddCommand(walletShowCmd)
	walletCmd.AddCommand(walletBalanceCmd)
	walletCmd.AddCommand(walletMigrateCmd)
	rootCmd.AddCommand(walletCmd)

	for _, c := range []*cobra.Command{walletCreateCmd, walletImportCmd} {
		c.Flags().StringVarP(&walletNetwork, "network", "n", "", "CAIP-2 network ID (default from config)")
		c.Flags().StringVarP(&walletMode, "mode", "m", "", "encryption mode: machine, password or env")
		c.Flags().BoolVar(&walletKeychain, "keychain", false, "store the key in the OS keychain instead of a file")
		c.Flags().BoolVarP(&forceWallet, "force", "f", false, "overwrite an existing wallet")
	}
	walletImportCmd.Flags().StringVarP(&walletPrivateKey, "private-key", "k", "", "private key in hex format")

	walletMigrateCmd.Flags().StringVar(&migrateTarget, "to", "", "migration target: keychain or file")
	walletMigrateCmd.Flags().StringVarP(&walletMode, "mode", "m", "", "encryption mode for file storage")
}
