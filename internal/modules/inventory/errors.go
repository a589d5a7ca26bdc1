package inventory

import "fmt"

type ShortItem struct {
	ProductID string
	Requested int
	Available int
}

type InsufficientStockError struct {
	Items []ShortItem
}

func (e *InsufficientStockError) Error() string {
	if len(e.Items) == 0 {
		return "insufficient stock"
	}
	it := e.Items[0]
	return fmt.Sprintf("insufficient stock: product=%s requested=%d available=%d", it.ProductID, it.Requested, it.Available)
}

// LedgerViolationError signals a mutation that would drive reserved below
// zero or above on_hand. The enclosing transaction must abort.
type LedgerViolationError struct {
	ProductID string
	Op        string
}

func (e *LedgerViolationError) Error() string {
	return fmt.Sprintf("inventory ledger violation: op=%s product=%s", e.Op, e.ProductID)
}
