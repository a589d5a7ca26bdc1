package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"marchenet.tg/app/internal/http/middleware"
	"marchenet.tg/app/internal/modules/inventory"
	"marchenet.tg/app/internal/modules/orders"
	"marchenet.tg/app/internal/modules/payments"
	"marchenet.tg/app/internal/shared/apperr"
)

const (
	headerUserID     = "X-User-ID"
	headerOperatorID = "X-Operator-ID"
)

// Auth lives in an upstream collaborator; these headers arrive already
// verified.
func currentUser(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.GetHeader(headerUserID))
	return id, id != ""
}

func currentOperator(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.GetHeader(headerOperatorID))
	return id, id != ""
}

// fail maps domain sentinel errors onto the error taxonomy and hands the
// result to the error middleware.
func fail(c *gin.Context, err error) {
	middleware.Fail(c, mapDomainErr(err))
}

func mapDomainErr(err error) error {
	var short *inventory.InsufficientStockError
	if errors.As(err, &short) {
		fields := map[string]string{}
		for _, it := range short.Items {
			fields[it.ProductID] = fmt.Sprintf("requested %d, available %d", it.Requested, it.Available)
		}
		return &apperr.AppError{
			Kind:      apperr.Conflict,
			PublicMsg: "Insufficient stock for one or more items.",
			Fields:    fields,
			Err:       err,
		}
	}

	var ledger *inventory.LedgerViolationError
	if errors.As(err, &ledger) {
		return apperr.ConflictErr("Stock adjustment would violate the inventory ledger.")
	}

	var provErr *payments.ProviderError
	if errors.As(err, &provErr) {
		return apperr.UnprocessableErr("Payment could not be initiated; the order was cancelled. You may try again.", err)
	}

	switch {
	case errors.Is(err, orders.ErrEmptyOrder):
		return apperr.InvalidErr("Order must contain at least one line.", nil)
	case errors.Is(err, orders.ErrMissingCustomer):
		return apperr.InvalidErr("Order must belong to a customer.", nil)
	case errors.Is(err, orders.ErrProductUnavailable):
		return apperr.InvalidErr("One or more products are unavailable.", nil)
	case errors.Is(err, orders.ErrCurrencyMismatch):
		return apperr.InvalidErr("Product currency does not match the store currency.", nil)
	case errors.Is(err, orders.ErrCouponInvalid):
		return apperr.InvalidErr("Coupon is invalid or expired.", nil)
	case errors.Is(err, orders.ErrNotCancellable):
		return apperr.ConflictErr("Order cannot be cancelled in its current state.")
	case errors.Is(err, orders.ErrInvalidTransition):
		return apperr.ConflictErr("Illegal order status transition.")
	case errors.Is(err, orders.ErrNegativeTotal):
		return apperr.InvalidErr("Order total would be negative.", nil)
	case errors.Is(err, payments.ErrOrderNotPayable):
		return apperr.ConflictErr("Order is not payable in its current state.")
	case errors.Is(err, payments.ErrUnknownMethod):
		return apperr.InvalidErr("Unknown or unsupported payment method.", nil)
	case errors.Is(err, payments.ErrNotRefundable):
		return apperr.ConflictErr("Payment is not refundable.")
	case errors.Is(err, payments.ErrRefundExceedsAmount):
		return apperr.InvalidErr("Refund amount exceeds the refundable remainder.", nil)
	case errors.Is(err, payments.ErrPaymentNotFound):
		return apperr.NotFoundErr("Payment not found.")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFoundErr("Not found.")
	}
	return apperr.Wrap(err)
}
