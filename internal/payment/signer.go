package payment

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/paperwall-labs/paperwall-node/internal/budget"
	"github.com/paperwall-labs/paperwall-node/internal/utils"
)

const defaultPaymentTimeoutSeconds = 600

// PaymentOption describes one payment the signer authorizes: who gets paid,
// how much (smallest units), on which network, against which token contract.
type PaymentOption struct {
	PayTo             string
	Amount            string
	Network           string
	Asset             string
	Scheme            string
	MaxTimeoutSeconds int
}

// Signer produces EIP-712 TransferWithAuthorization signatures (ERC-3009)
// accepted by x402 facilitators.
type Signer struct {
	config *utils.ConfigManager
	logger *utils.LogsManager
}

func NewSigner(config *utils.ConfigManager, logger *utils.LogsManager) *Signer {
	return &Signer{config: config, logger: logger}
}

// SignPayment builds and signs the authorization under the given signing
// domain. validAfter is always 0 and validBefore is now plus the payment
// timeout. The nonce is 32 fresh random bytes on every call, so two calls
// with identical inputs differ only in nonce and signature.
func (s *Signer) SignPayment(keyBytes []byte, opt *PaymentOption, domain *Domain) (*PayloadWrapper, error) {
	privateKey, err := ethcrypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %v", err)
	}

	value, err := budget.ParseSmallest(opt.Amount)
	if err != nil {
		return nil, err
	}

	chainID, err := ChainIDFromNetwork(opt.Network)
	if err != nil {
		return nil, err
	}
	if domain.ChainID != "" && domain.ChainID != chainID.String() {
		return nil, fmt.Errorf("%w: domain chain ID %s does not match network %s", ErrInvalidNetwork, domain.ChainID, opt.Network)
	}

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %v", err)
	}

	timeout := opt.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = s.config.GetConfigInt("payment_timeout_seconds", defaultPaymentTimeoutSeconds, 10, 86400)
	}

	auth := &Authorization{
		From:        ethcrypto.PubkeyToAddress(privateKey.PublicKey).Hex(),
		To:          opt.PayTo,
		Value:       value.String(),
		ValidAfter:  "0",
		ValidBefore: fmt.Sprintf("%d", time.Now().Unix()+int64(timeout)),
		Nonce:       hexutil.Encode(nonce),
	}

	typedData := transferWithAuthorizationTypedData(auth, domain, chainID)
	hash, err := hashTypedData(typedData)
	if err != nil {
		return nil, err
	}

	signature, err := ethcrypto.Sign(hash.Bytes(), privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %v", err)
	}
	// crypto.Sign returns v as a recovery ID (0/1); ERC-3009 ecrecover
	// expects the Ethereum form (27/28).
	if signature[64] < 27 {
		signature[64] += 27
	}

	if s.logger != nil {
		s.logger.Debug(fmt.Sprintf("Signed payment authorization: to=%s value=%s network=%s", auth.To, auth.Value, opt.Network), "payment")
	}

	return &PayloadWrapper{
		Signature:     hexutil.Encode(signature),
		Authorization: auth,
	}, nil
}

func transferWithAuthorizationTypedData(auth *Authorization, domain *Domain, chainID *big.Int) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           math.NewHexOrDecimal256(chainID.Int64()),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce,
		},
	}
}

func hashTypedData(typedData apitypes.TypedData) (common.Hash, error) {
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %v", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash message: %v", err)
	}
	// EIP-712 final hash: keccak256("\x19\x01" ‖ domainSeparator ‖ hashStruct(message))
	raw := append([]byte("\x19\x01"), append(domainSeparator, messageHash...)...)
	return ethcrypto.Keccak256Hash(raw), nil
}

// ChainIDFromNetwork extracts the chain ID from a CAIP-2 network identifier
// such as "eip155:84532".
func ChainIDFromNetwork(network string) (*big.Int, error) {
	const prefix = "eip155:"
	if !strings.HasPrefix(network, prefix) {
		return nil, fmt.Errorf("%w: %q is not an eip155 network", ErrInvalidNetwork, network)
	}
	chainID, ok := new(big.Int).SetString(network[len(prefix):], 10)
	if !ok {
		return nil, fmt.Errorf("%w: bad chain ID in %q", ErrInvalidNetwork, network)
	}
	return chainID, nil
}
