package orders

// Order lifecycle. The fulfillment chain is strictly forward; the
// compensation states are reachable from any state before delivery.
const (
	StatusPending    = "pending"
	StatusPaid       = "paid"
	StatusConfirmed  = "confirmed"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"

	StatusCancelled = "cancelled"
	StatusRefunded  = "refunded"
	StatusReturned  = "returned"
)

// Order-level payment status (the Payment rows carry their own lifecycle).
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// Per-line fulfillment status.
const (
	LinePending   = "pending"
	LineDelivered = "delivered"
	LineCancelled = "cancelled"
)

const MethodCashOnDelivery = "cod"

var statusRank = map[string]int{
	StatusPending:    0,
	StatusPaid:       1,
	StatusConfirmed:  2,
	StatusProcessing: 3,
	StatusShipped:    4,
	StatusDelivered:  5,
}

func IsTerminalStatus(s string) bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusRefunded, StatusReturned:
		return true
	}
	return false
}

func isCompensation(s string) bool {
	switch s {
	case StatusCancelled, StatusRefunded, StatusReturned:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal order transition.
// Terminal states accept nothing; compensation states are reachable from
// every non-terminal state; the fulfillment chain only moves forward.
func CanTransition(from, to string) bool {
	if from == to {
		return false
	}
	if IsTerminalStatus(from) {
		return false
	}
	if isCompensation(to) {
		return true
	}
	fr, ok := statusRank[from]
	if !ok {
		return false
	}
	tr, ok := statusRank[to]
	if !ok {
		return false
	}
	return tr > fr
}

// Cancellable: customer/operator cancellation is only allowed before
// fulfillment work starts.
func Cancellable(status string) bool {
	switch status {
	case StatusPending, StatusPaid, StatusConfirmed:
		return true
	}
	return false
}
