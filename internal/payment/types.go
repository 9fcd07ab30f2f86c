package payment

// x402 v2 wire types, as accepted by standard facilitators.

// PaymentRequirements specifies what a payment must satisfy.
type PaymentRequirements struct {
	Scheme            string             `json:"scheme"`            // payment scheme, e.g. "exact"
	Network           string             `json:"network"`           // CAIP-2 network ID, e.g. "eip155:84532"
	Asset             string             `json:"asset"`             // token contract address
	Amount            string             `json:"amount"`            // smallest-unit amount as string
	PayTo             string             `json:"payTo"`             // recipient address
	MaxTimeoutSeconds int                `json:"maxTimeoutSeconds"` // authorization validity window
	Extra             *RequirementsExtra `json:"extra,omitempty"`
}

// RequirementsExtra carries the EIP-712 domain name/version the facilitator
// combines with asset (verifyingContract) and network (chainId).
type RequirementsExtra struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// ResourceInfo describes the resource being paid for.
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentPayload wraps the signed authorization and its context.
type PaymentPayload struct {
	X402Version int                  `json:"x402Version"`
	Resource    *ResourceInfo        `json:"resource"`
	Accepted    *PaymentRequirements `json:"accepted"`
	Payload     *PayloadWrapper      `json:"payload"`
}

// PayloadWrapper is the EVM "exact" scheme payload: the signature over the
// typed-data authorization plus the authorization itself.
type PayloadWrapper struct {
	Signature     string         `json:"signature"`
	Authorization *Authorization `json:"authorization"`
}

// Authorization is the ERC-3009 TransferWithAuthorization message.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// Domain holds the EIP-712 signing-domain parameters discovered from a
// facilitator for one (network, scheme) pair.
type Domain struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           string `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}

// VerifyRequest is the body of POST /verify (x402 v2: no top-level version).
type VerifyRequest struct {
	PaymentPayload      *PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements *PaymentRequirements `json:"paymentRequirements"`
}

// SettleRequest is identical to VerifyRequest per the x402 protocol.
type SettleRequest = VerifyRequest

// VerifyResponse from POST /verify.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	Valid         bool   `json:"valid"` // older facilitators
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Ok reports whether the facilitator accepted the payment under either
// response shape.
func (r *VerifyResponse) Ok() bool {
	return r.IsValid || r.Valid
}

// Reason returns the facilitator's stated rejection reason.
func (r *VerifyResponse) Reason() string {
	if r.InvalidReason != "" {
		return r.InvalidReason
	}
	return r.Error
}

// SettleResponse from POST /settle.
type SettleResponse struct {
	Success           bool   `json:"success"`
	Transaction       string `json:"transaction,omitempty"` // on-chain tx hash
	Network           string `json:"network,omitempty"`
	Payer             string `json:"payer,omitempty"`
	ErrorReason       string `json:"errorReason,omitempty"`
	ErrorReasonDetail string `json:"errorReasonDetail,omitempty"`
}

// SupportedResponse from GET /supported.
type SupportedResponse struct {
	Kinds      []SupportedKind `json:"kinds"`
	Extensions []string        `json:"extensions,omitempty"`
}

// SupportedKind is one payment scheme a facilitator accepts.
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}
