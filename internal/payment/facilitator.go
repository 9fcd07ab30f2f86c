package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/paperwall-labs/paperwall-node/internal/utils"
)

const domainCacheTTL = time.Hour

// Token contract and EIP-712 parameter fallbacks, overridable via the
// token_USDC_* config keys.
var networkConfigSuffix = map[string]string{
	"eip155:8453":     "base",
	"eip155:84532":    "base_sepolia",
	"eip155:1":        "ethereum",
	"eip155:11155111": "ethereum_sepolia",
}

var defaultUSDCContracts = map[string]string{
	"eip155:8453":     "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	"eip155:84532":    "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	"eip155:1":        "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
	"eip155:11155111": "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
}

type domainCacheKey struct {
	url        string
	credential string
	network    string
	scheme     string
}

type domainCacheEntry struct {
	domain  *Domain
	expires time.Time
}

// Client talks to x402 facilitators. Every outbound call passes through the
// URL guard first. Signing domains are cached per (url, credential, network,
// scheme) with a 1-hour TTL so one credential's cache never serves another.
type Client struct {
	httpClient   *http.Client
	config       *utils.ConfigManager
	logger       *utils.LogsManager
	maxRetries   int
	retryBackoff time.Duration
	guard        func(string) error

	mu          sync.Mutex
	domainCache map[domainCacheKey]domainCacheEntry
}

func NewClient(config *utils.ConfigManager, logger *utils.LogsManager) *Client {
	timeout := time.Duration(config.GetConfigInt("facilitator_timeout_seconds", 10, 1, 60)) * time.Second
	maxRetries := config.GetConfigInt("facilitator_max_retries", 3, 0, 10)
	retryBackoff := time.Duration(config.GetConfigInt("facilitator_retry_backoff_ms", 1000, 100, 10000)) * time.Millisecond

	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		config:       config,
		logger:       logger,
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
		guard:        CheckOutboundURL,
		domainCache:  make(map[domainCacheKey]domainCacheEntry),
	}
}

// DefaultFacilitatorURL returns the configured facilitator endpoint.
func (c *Client) DefaultFacilitatorURL() string {
	return c.config.GetConfigWithDefault("facilitator_url", "https://facilitator.paperwall.dev")
}

// GetSupported queries GET /supported for the facilitator's payment schemes.
func (c *Client) GetSupported(ctx context.Context, facilitatorURL, credential string) (*SupportedResponse, error) {
	if err := c.guard(facilitatorURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, facilitatorURL+"/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	setHeaders(req, credential)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrFacilitatorTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrFacilitatorUnavailable, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrFacilitatorRejected, httpResp.StatusCode, body)
	}

	var resp SupportedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse supported response: %v", err)
	}

	c.logger.Debug(fmt.Sprintf("Facilitator %s supports %d payment schemes", facilitatorURL, len(resp.Kinds)), "facilitator")
	return &resp, nil
}

// Verify submits a signed payment to POST /verify.
func (c *Client) Verify(ctx context.Context, facilitatorURL, credential string, req *VerifyRequest) (*VerifyResponse, error) {
	var resp VerifyResponse
	if err := c.postWithRetry(ctx, facilitatorURL+"/verify", credential, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Settle submits a verified payment to POST /settle for on-chain execution.
func (c *Client) Settle(ctx context.Context, facilitatorURL, credential string, req *SettleRequest) (*SettleResponse, error) {
	var resp SettleResponse
	if err := c.postWithRetry(ctx, facilitatorURL+"/settle", credential, req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: settlement failed: %s %s", ErrFacilitatorRejected, resp.ErrorReason, resp.ErrorReasonDetail)
	}
	return &resp, nil
}

// VerifyAndSettle runs the verify/settle handshake: settle is only issued
// after the facilitator reports the payment valid. A rejected verification
// surfaces the facilitator's stated reason.
func (c *Client) VerifyAndSettle(ctx context.Context, facilitatorURL, credential string, req *VerifyRequest) (*SettleResponse, error) {
	verifyResp, err := c.Verify(ctx, facilitatorURL, credential, req)
	if err != nil {
		return nil, err
	}
	if !verifyResp.Ok() {
		return nil, fmt.Errorf("%w: %s", ErrVerificationFailed, verifyResp.Reason())
	}

	settleResp, err := c.Settle(ctx, facilitatorURL, credential, req)
	if err != nil {
		return nil, err
	}

	c.logger.Info(fmt.Sprintf("Payment settled: tx=%s network=%s", settleResp.Transaction, settleResp.Network), "facilitator")
	return settleResp, nil
}

// SigningDomain returns the EIP-712 domain parameters for (network, scheme),
// discovered from the facilitator's /supported data and cached for one hour.
func (c *Client) SigningDomain(ctx context.Context, facilitatorURL, credential, network, scheme string) (*Domain, error) {
	key := domainCacheKey{url: facilitatorURL, credential: credential, network: network, scheme: scheme}

	c.mu.Lock()
	if entry, ok := c.domainCache[key]; ok && time.Now().Before(entry.expires) {
		c.mu.Unlock()
		return entry.domain, nil
	}
	c.mu.Unlock()

	chainID, err := ChainIDFromNetwork(network)
	if err != nil {
		return nil, err
	}

	verifyingContract := c.USDCContract(network)
	if verifyingContract == "" {
		return nil, fmt.Errorf("%w: no USDC contract known for %s", ErrInvalidNetwork, network)
	}

	// Circle's official EIP-712 domain unless the facilitator overrides it.
	domain := &Domain{
		Name:              "USDC",
		Version:           "2",
		ChainID:           chainID.String(),
		VerifyingContract: verifyingContract,
	}

	supported, err := c.GetSupported(ctx, facilitatorURL, credential)
	if err != nil {
		return nil, err
	}
	found := false
	for _, kind := range supported.Kinds {
		if kind.Network != network || kind.Scheme != scheme {
			continue
		}
		found = true
		if name, ok := kind.Extra["name"].(string); ok && name != "" {
			domain.Name = name
		}
		if version, ok := kind.Extra["version"].(string); ok && version != "" {
			domain.Version = version
		}
		break
	}
	if !found {
		return nil, fmt.Errorf("%w: facilitator does not support scheme %q on %s", ErrFacilitatorRejected, scheme, network)
	}

	c.mu.Lock()
	c.domainCache[key] = domainCacheEntry{domain: domain, expires: time.Now().Add(domainCacheTTL)}
	c.mu.Unlock()

	return domain, nil
}

// Reset drops all cached signing domains.
func (c *Client) Reset() {
	c.mu.Lock()
	c.domainCache = make(map[domainCacheKey]domainCacheEntry)
	c.mu.Unlock()
}

// USDCContract returns the USDC token contract for a network, preferring the
// token_USDC_* config keys over the built-in defaults.
func (c *Client) USDCContract(network string) string {
	if suffix, ok := networkConfigSuffix[network]; ok {
		if value := c.config.GetConfigWithDefault("token_USDC_"+suffix, ""); value != "" {
			return value
		}
	}
	return defaultUSDCContracts[network]
}

// postWithRetry POSTs JSON with exponential backoff. 5xx and transport errors
// retry; 4xx rejections do not.
func (c *Client) postWithRetry(ctx context.Context, url, credential string, body, out interface{}) error {
	if err := c.guard(url); err != nil {
		return err
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %v", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.retryBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			c.logger.Info(fmt.Sprintf("Retrying facilitator call (attempt %d/%d): %s", attempt+1, c.maxRetries+1, url), "facilitator")
		}

		err := c.postOnce(ctx, url, credential, jsonData, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, ErrFacilitatorRejected) {
			return err
		}
	}

	c.logger.Error(fmt.Sprintf("Facilitator call failed after %d attempts: %v", c.maxRetries+1, lastErr), "facilitator")
	return lastErr
}

func (c *Client) postOnce(ctx context.Context, url, credential string, jsonData []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	setHeaders(req, credential)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ErrFacilitatorTimeout
		}
		return fmt.Errorf("%w: %v", ErrFacilitatorUnavailable, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %v", err)
	}

	c.logger.Debug(fmt.Sprintf("Facilitator response: HTTP %d from %s", httpResp.StatusCode, url), "facilitator")

	if httpResp.StatusCode >= 500 {
		return fmt.Errorf("%w: HTTP %d", ErrFacilitatorUnavailable, httpResp.StatusCode)
	}
	if httpResp.StatusCode >= 400 {
		var errResp struct {
			Error         string `json:"error"`
			InvalidReason string `json:"invalidReason"`
		}
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			if reason := errResp.InvalidReason; reason != "" {
				return fmt.Errorf("%w: %s", ErrFacilitatorRejected, reason)
			}
			if errResp.Error != "" {
				return fmt.Errorf("%w: %s", ErrFacilitatorRejected, errResp.Error)
			}
		}
		return fmt.Errorf("%w: HTTP %d", ErrFacilitatorRejected, httpResp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse facilitator response: %v", err)
	}
	return nil
}

func setHeaders(req *http.Request, credential string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "paperwall-node/1.0")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
}
