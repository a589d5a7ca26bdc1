package orders

import "errors"

var (
	ErrEmptyOrder         = errors.New("order has no lines")
	ErrMissingCustomer    = errors.New("order has no customer")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrCurrencyMismatch   = errors.New("currency mismatch in order lines")
	ErrCouponInvalid      = errors.New("coupon invalid or expired")
	ErrNotCancellable     = errors.New("order not cancellable in its current state")
	ErrInvalidTransition  = errors.New("invalid order status transition")
	ErrNegativeTotal      = errors.New("order total would be negative")
)
