package payment

import "errors"

var (
	// Facilitator errors
	ErrFacilitatorUnavailable = errors.New("payment facilitator unavailable")
	ErrFacilitatorTimeout     = errors.New("payment facilitator timeout")
	ErrFacilitatorRejected    = errors.New("payment rejected by facilitator")
	ErrVerificationFailed     = errors.New("payment verification failed")

	// Outbound URL guard errors
	ErrDisallowedURL = errors.New("disallowed outbound URL")

	// Signing errors
	ErrInvalidNetwork = errors.New("invalid payment network")
)
