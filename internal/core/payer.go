package core

import (
	"context"
	"fmt"

	"github.com/paperwall-labs/paperwall-node/internal/budget"
	"github.com/paperwall-labs/paperwall-node/internal/payment"
	"github.com/paperwall-labs/paperwall-node/internal/utils"
	"github.com/paperwall-labs/paperwall-node/internal/wallet"
)

// Payer ties the engine together for one payment flow: budget check, key
// resolution, signing, verify/settle, history.
type Payer struct {
	store  *wallet.Store
	ledger *budget.Ledger
	signer *payment.Signer
	client *payment.Client
	config *utils.ConfigManager
	logger *utils.LogsManager
}

// PayRequest describes one payment attempt against a paywalled resource.
type PayRequest struct {
	URL          string                       // resource being purchased
	Requirements *payment.PaymentRequirements // terms from the resource's 402 response
	MaxPrice     string                       // optional decimal USDC cap ("" = none)
	ModeInput    string                       // wallet password when the wallet is password-mode
	Credential   string                       // optional facilitator bearer credential
	Mode         string                       // how the payment was initiated, e.g. "auto" or "manual"
}

// PayResult reports the outcome. On a budget decline, Decision carries the
// reason and Settlement is nil; declines are results, not errors.
type PayResult struct {
	Decision   *budget.Decision
	Settlement *payment.SettleResponse
	Entry      *budget.HistoryEntry
}

func NewPayer(store *wallet.Store, ledger *budget.Ledger, config *utils.ConfigManager, logger *utils.LogsManager) *Payer {
	return &Payer{
		store:  store,
		ledger: ledger,
		signer: payment.NewSigner(config, logger),
		client: payment.NewClient(config, logger),
		config: config,
		logger: logger,
	}
}

// Store exposes the payer's wallet store.
func (p *Payer) Store() *wallet.Store {
	return p.store
}

// Ledger exposes the payer's budget ledger.
func (p *Payer) Ledger() *budget.Ledger {
	return p.ledger
}

// Facilitator exposes the payer's facilitator client.
func (p *Payer) Facilitator() *payment.Client {
	return p.client
}

// Pay runs one complete payment: the budget ledger gates the attempt, the
// wallet supplies the signing key, the signer produces the authorization, the
// facilitator verifies then settles, and only a successful settlement is
// recorded as spend. On any failure or timeout no history entry is written.
func (p *Payer) Pay(ctx context.Context, req *PayRequest) (*PayResult, error) {
	if req.Requirements == nil {
		return nil, fmt.Errorf("payment requirements are required")
	}
	reqs := req.Requirements
	if reqs.Asset == "" {
		reqs.Asset = p.client.USDCContract(reqs.Network)
	}

	decision, err := p.ledger.CheckBudget(reqs.Amount, req.MaxPrice)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		p.logger.Info(fmt.Sprintf("Payment declined by budget: reason=%s url=%s amount=%s", decision.Reason, req.URL, reqs.Amount), "payer")
		return &PayResult{Decision: decision}, nil
	}

	keyBytes, err := p.store.ResolvePrivateKey(ctx, req.ModeInput)
	if err != nil {
		return nil, err
	}

	facilitatorURL := p.client.DefaultFacilitatorURL()
	domain, err := p.client.SigningDomain(ctx, facilitatorURL, req.Credential, reqs.Network, reqs.Scheme)
	if err != nil {
		return nil, err
	}

	wrapper, err := p.signer.SignPayment(keyBytes, &payment.PaymentOption{
		PayTo:             reqs.PayTo,
		Amount:            reqs.Amount,
		Network:           reqs.Network,
		Asset:             reqs.Asset,
		Scheme:            reqs.Scheme,
		MaxTimeoutSeconds: reqs.MaxTimeoutSeconds,
	}, domain)
	if err != nil {
		return nil, err
	}

	settlement, err := p.client.VerifyAndSettle(ctx, facilitatorURL, req.Credential, &payment.VerifyRequest{
		PaymentPayload: &payment.PaymentPayload{
			X402Version: 2,
			Resource:    &payment.ResourceInfo{URL: req.URL},
			Accepted:    reqs,
			Payload:     wrapper,
		},
		PaymentRequirements: reqs,
	})
	if err != nil {
		return nil, err
	}

	entry := &budget.HistoryEntry{
		URL:     req.URL,
		Amount:  reqs.Amount,
		Asset:   reqs.Asset,
		Network: reqs.Network,
		TxHash:  settlement.Transaction,
		Mode:    req.Mode,
	}
	if err := p.ledger.History().Append(entry); err != nil {
		// The payment settled on-chain; surface the bookkeeping failure
		// without pretending the payment failed.
		p.logger.Error(fmt.Sprintf("Payment settled (tx=%s) but history write failed: %v", settlement.Transaction, err), "payer")
		return &PayResult{Decision: decision, Settlement: settlement}, fmt.Errorf("payment settled but could not be recorded: %w", err)
	}

	p.logger.Info(fmt.Sprintf("Payment complete: url=%s amount=%s tx=%s", req.URL, reqs.Amount, settlement.Transaction), "payer")
	return &PayResult{Decision: decision, Settlement: settlement, Entry: entry}, nil
}
