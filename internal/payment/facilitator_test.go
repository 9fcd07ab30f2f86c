package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paperwall-labs/paperwall-node/internal/utils"
)

func newTestConfig(t *testing.T) *utils.ConfigManager {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "configs")
	content := "facilitator_timeout_seconds = 5\n" +
		"facilitator_max_retries = 2\n" +
		"facilitator_retry_backoff_ms = 100\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return utils.NewConfigManager(cfgPath)
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	cm := newTestConfig(t)
	lm := utils.NewLogsManager(cm)
	t.Cleanup(func() { lm.Close() })

	client := NewClient(cm, lm)
	// Tests talk to a loopback httptest server, which the production guard
	// rejects by design.
	client.guard = func(string) error { return nil }
	return client
}

func testVerifyRequest() *VerifyRequest {
	requirements := &PaymentRequirements{
		Scheme:            "exact",
		Network:           "eip155:84532",
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Amount:            "10000",
		PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		MaxTimeoutSeconds: 600,
		Extra:             &RequirementsExtra{Name: "USDC", Version: "2"},
	}
	return &VerifyRequest{
		PaymentPayload: &PaymentPayload{
			X402Version: 2,
			Resource:    &ResourceInfo{URL: "https://news.example.com/article"},
			Accepted:    requirements,
			Payload: &PayloadWrapper{
				Signature: "0xabc",
				Authorization: &Authorization{
					From:        "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23",
					To:          "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
					Value:       "10000",
					ValidAfter:  "0",
					ValidBefore: "1893456000",
					Nonce:       "0x01",
				},
			},
		},
		PaymentRequirements: requirements,
	}
}

func TestVerifyAndSettleOrdering(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Expected bearer credential, got %q", got)
		}
		switch r.URL.Path {
		case "/verify":
			json.NewEncoder(w).Encode(&VerifyResponse{IsValid: true, Payer: "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"})
		case "/settle":
			json.NewEncoder(w).Encode(&SettleResponse{Success: true, Transaction: "0xdeadbeef", Network: "eip155:84532"})
		default:
			t.Errorf("Unexpected request path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t)
	resp, err := client.VerifyAndSettle(context.Background(), server.URL, "test-token", testVerifyRequest())
	if err != nil {
		t.Fatalf("VerifyAndSettle failed: %v", err)
	}
	if resp.Transaction != "0xdeadbeef" {
		t.Errorf("Expected settlement tx hash, got %s", resp.Transaction)
	}
	if len(calls) != 2 || calls[0] != "/verify" || calls[1] != "/settle" {
		t.Errorf("Expected verify then settle, got %v", calls)
	}
}

func TestVerifyAndSettleStopsOnInvalid(t *testing.T) {
	var settleCalled bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/verify":
			json.NewEncoder(w).Encode(&VerifyResponse{IsValid: false, InvalidReason: "insufficient_funds"})
		case "/settle":
			settleCalled = true
		}
	}))
	defer server.Close()

	client := newTestClient(t)
	_, err := client.VerifyAndSettle(context.Background(), server.URL, "", testVerifyRequest())
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("Expected ErrVerificationFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "insufficient_funds") {
		t.Errorf("Expected the facilitator's stated reason in the error, got %v", err)
	}
	if settleCalled {
		t.Error("Settle must never run after a failed verification")
	}
}

func TestGuardRunsBeforeAnyRequest(t *testing.T) {
	cm := newTestConfig(t)
	lm := utils.NewLogsManager(cm)
	t.Cleanup(func() { lm.Close() })
	client := NewClient(cm, lm) // production guard intact

	for _, call := range []func() error{
		func() error { _, err := client.GetSupported(context.Background(), "http://10.0.0.1", ""); return err },
		func() error {
			_, err := client.Verify(context.Background(), "https://127.0.0.1", "", testVerifyRequest())
			return err
		},
		func() error {
			_, err := client.Settle(context.Background(), "https://[::1]", "", testVerifyRequest())
			return err
		},
	} {
		if err := call(); !errors.Is(err, ErrDisallowedURL) {
			t.Errorf("Expected ErrDisallowedURL, got %v", err)
		}
	}
}

func TestVerifyRetriesServerErrors(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(&VerifyResponse{IsValid: true})
	}))
	defer server.Close()

	client := newTestClient(t)
	resp, err := client.Verify(context.Background(), server.URL, "", testVerifyRequest())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !resp.Ok() {
		t.Error("Expected a valid verification after retry")
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestVerifyDoesNotRetryRejections(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "malformed payload"})
	}))
	defer server.Close()

	client := newTestClient(t)
	_, err := client.Verify(context.Background(), server.URL, "", testVerifyRequest())
	if !errors.Is(err, ErrFacilitatorRejected) {
		t.Fatalf("Expected ErrFacilitatorRejected, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Rejections must not be retried, got %d attempts", attempts)
	}
}

func TestSigningDomainCaching(t *testing.T) {
	var supportedCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/supported" {
			t.Errorf("Unexpected request path %s", r.URL.Path)
			return
		}
		supportedCalls++
		json.NewEncoder(w).Encode(&SupportedResponse{Kinds: []SupportedKind{{
			X402Version: 2,
			Scheme:      "exact",
			Network:     "eip155:84532",
			Extra:       map[string]interface{}{"name": "USDC", "version": "2"},
		}}})
	}))
	defer server.Close()

	client := newTestClient(t)

	domain, err := client.SigningDomain(context.Background(), server.URL, "cred-a", "eip155:84532", "exact")
	if err != nil {
		t.Fatalf("SigningDomain failed: %v", err)
	}
	if domain.Name != "USDC" || domain.Version != "2" || domain.ChainID != "84532" {
		t.Errorf("Unexpected domain %+v", domain)
	}
	if domain.VerifyingContract != "0x036CbD53842c5426634e7929541eC2318f3dCF7e" {
		t.Errorf("Unexpected verifying contract %s", domain.VerifyingContract)
	}

	// Same key: served from cache.
	if _, err := client.SigningDomain(context.Background(), server.URL, "cred-a", "eip155:84532", "exact"); err != nil {
		t.Fatalf("SigningDomain failed: %v", err)
	}
	if supportedCalls != 1 {
		t.Errorf("Expected cached domain, got %d /supported calls", supportedCalls)
	}

	// A different credential must never share the cache entry.
	if _, err := client.SigningDomain(context.Background(), server.URL, "cred-b", "eip155:84532", "exact"); err != nil {
		t.Fatalf("SigningDomain failed: %v", err)
	}
	if supportedCalls != 2 {
		t.Errorf("Expected a fresh fetch for a new credential, got %d /supported calls", supportedCalls)
	}

	// Reset drops everything.
	client.Reset()
	if _, err := client.SigningDomain(context.Background(), server.URL, "cred-a", "eip155:84532", "exact"); err != nil {
		t.Fatalf("SigningDomain failed: %v", err)
	}
	if supportedCalls != 3 {
		t.Errorf("Expected a fresh fetch after Reset, got %d /supported calls", supportedCalls)
	}
}

func TestSigningDomainUnsupportedScheme(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&SupportedResponse{Kinds: []SupportedKind{{
			Scheme:  "exact",
			Network: "eip155:1",
		}}})
	}))
	defer server.Close()

	client := newTestClient(t)
	_, err := client.SigningDomain(context.Background(), server.URL, "", "eip155:84532", "exact")
	if !errors.Is(err, ErrFacilitatorRejected) {
		t.Errorf("Expected ErrFacilitatorRejected for unsupported scheme, got %v", err)
	}
}
