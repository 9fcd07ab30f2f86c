package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/paperwall-labs/paperwall-node/internal/payment"
)

// Balance is the wallet's USDC balance in smallest units (10^-6 USDC),
// reported as a decimal integer string to keep monetary values exact.
type Balance struct {
	Address   string `json:"address"`
	NetworkID string `json:"networkId"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
}

// networkConfigSuffix maps CAIP-2 network IDs to config key suffixes for the
// rpc_* and token_USDC_* entries.
var networkConfigSuffix = map[string]string{
	"eip155:8453":     "base",
	"eip155:84532":    "base_sepolia",
	"eip155:1":        "ethereum",
	"eip155:11155111": "ethereum_sepolia",
}

var defaultRPCEndpoints = map[string]string{
	"eip155:8453":     "https://mainnet.base.org",
	"eip155:84532":    "https://sepolia.base.org",
	"eip155:1":        "https://eth.llamarpc.com",
	"eip155:11155111": "https://ethereum-sepolia-rpc.publicnode.com",
}

var defaultUSDCContracts = map[string]string{
	"eip155:8453":     "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	"eip155:84532":    "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	"eip155:1":        "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
	"eip155:11155111": "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
}

// GetBalance queries the ERC-20 USDC balance of the wallet address via
// eth_call to balanceOf(address).
func (s *Store) GetBalance(ctx context.Context) (*Balance, error) {
	rec, err := loadRecord(s.walletPath)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNoWallet
	}

	rpcURL := s.networkConfig("rpc", rec.NetworkID, defaultRPCEndpoints)
	if rpcURL == "" {
		return nil, fmt.Errorf("no RPC endpoint configured for network %s", rec.NetworkID)
	}
	if err := payment.CheckOutboundURL(rpcURL); err != nil {
		return nil, err
	}
	usdcContract := s.networkConfig("token_USDC", rec.NetworkID, defaultUSDCContracts)
	if usdcContract == "" {
		return nil, fmt.Errorf("no USDC contract configured for network %s", rec.NetworkID)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %v", err)
	}
	defer client.Close()

	// balanceOf(address) selector + left-padded wallet address
	selector := ethcrypto.Keccak256([]byte("balanceOf(address)"))[:4]
	walletAddr := common.HexToAddress(rec.Address)
	callData := append(selector, common.LeftPadBytes(walletAddr.Bytes(), 32)...)

	contractAddr := common.HexToAddress(usdcContract)
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &contractAddr, Data: callData}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query USDC balance: %v", err)
	}

	return &Balance{
		Address:   rec.Address,
		NetworkID: rec.NetworkID,
		Asset:     usdcContract,
		Amount:    new(big.Int).SetBytes(result).String(),
	}, nil
}

func (s *Store) networkConfig(prefix, networkID string, defaults map[string]string) string {
	if suffix, ok := networkConfigSuffix[networkID]; ok {
		key := fmt.Sprintf("%s_%s", prefix, suffix)
		if value := s.config.GetConfigWithDefault(key, ""); value != "" {
			return value
		}
	}
	return defaults[networkID]
}
