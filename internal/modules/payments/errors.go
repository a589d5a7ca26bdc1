package payments

import "errors"

var (
	ErrOrderNotPayable     = errors.New("order not payable")
	ErrUnknownMethod       = errors.New("unknown or unconfigured payment method")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrNotRefundable       = errors.New("payment not refundable")
	ErrRefundExceedsAmount = errors.New("refund amount exceeds refundable remainder")
	ErrAmountMismatch      = errors.New("webhook amount does not match payment")
	ErrUnknownEventType    = errors.New("unknown webhook event type")
)

// ProviderError wraps an adapter failure. The raw provider message stays in
// the audit payload; callers see only the method that failed.
type ProviderError struct {
	Method string
	Err    error
}

func (e *ProviderError) Error() string {
	return "payment provider " + e.Method + " unavailable"
}

func (e *ProviderError) Unwrap() error { return e.Err }
