// Package providers holds one adapter per payment operator. Each adapter
// owns its credentials, request signing, webhook signature scheme, and fee
// schedule; the orchestrator only sees the payments.Provider interface.
package providers

import "time"

// Config is one operator's injected configuration. No adapter reads
// process-wide state.
type Config struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration

	FeeBps      int // fee percentage in basis points
	FeeMinCents int
	FeeMaxCents int
}

// clampedFee: percentage of amount, clamped to the operator's configured
// absolute minimum and maximum.
func clampedFee(amountCents, bps, minCents, maxCents int) int {
	if amountCents <= 0 || bps <= 0 {
		return 0
	}
	fee := amountCents * bps / 10000
	if fee < minCents {
		fee = minCents
	}
	if maxCents > 0 && fee > maxCents {
		fee = maxCents
	}
	return fee
}
