package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"marchenet.tg/app/internal/http/middleware"
	"marchenet.tg/app/internal/http/validation"
	"marchenet.tg/app/internal/modules/orders"
	"marchenet.tg/app/internal/modules/payments"
	"marchenet.tg/app/internal/shared/apperr"
)

type PaymentHandler struct {
	Logger   *slog.Logger
	Service  *payments.Service
	Refunds  *payments.RefundService
	Registry *payments.Registry
	Orders   *orders.Repo
}

func NewPaymentHandler(logger *slog.Logger, svc *payments.Service, refunds *payments.RefundService, reg *payments.Registry, ordersRepo *orders.Repo) *PaymentHandler {
	return &PaymentHandler{Logger: logger, Service: svc, Refunds: refunds, Registry: reg, Orders: ordersRepo}
}

type initiateInput struct {
	OrderID        string `json:"order_id" binding:"required,uuid"`
	Method         string `json:"method" binding:"omitempty,max=32"`
	Phone          string `json:"phone" binding:"omitempty,min=5,max=32"`
	IdempotencyKey string `json:"idempotency_key" binding:"omitempty,max=64"`
}

// POST /api/payments/initiate runs an explicit (re)payment attempt against
// an existing order.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		if _, op := currentOperator(c); !op {
			middleware.Fail(c, apperr.UnauthorizedErr("Missing identity."))
			return
		}
	}

	var in initiateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		errs := validation.FromBindError(err, &in)
		middleware.Fail(c, apperr.InvalidErr("Request validation failed.", errs))
		return
	}

	out, err := h.Service.Initiate(c.Request.Context(), payments.InitiateInput{
		OrderID:        in.OrderID,
		Method:         in.Method,
		Phone:          in.Phone,
		IdempotencyKey: in.IdempotencyKey,
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payment_id":   out.PaymentID,
		"reference":    out.Reference,
		"status":       out.Status,
		"redirect_url": out.RedirectURL,
		"instructions": out.Instructions,
		"idempotent":   out.Idempotent,
	})
}

type refundInput struct {
	AmountCents int    `json:"amount_cents" binding:"omitempty,gt=0"`
	Reason      string `json:"reason" binding:"omitempty,max=255"`
}

// POST /api/payments/:id/refund (operator only)
func (h *PaymentHandler) Refund(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		middleware.Fail(c, apperr.ForbiddenErr("Operator identity required."))
		return
	}

	var in refundInput
	if err := c.ShouldBindJSON(&in); err != nil {
		errs := validation.FromBindError(err, &in)
		middleware.Fail(c, apperr.InvalidErr("Request validation failed.", errs))
		return
	}

	out, err := h.Refunds.Refund(c.Request.Context(), payments.RefundInput{
		PaymentID:   c.Param("id"),
		AmountCents: in.AmountCents,
		Reason:      in.Reason,
		Actor:       operator,
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"refund_payment_id": out.RefundPaymentID,
		"amount_cents":      out.AmountCents,
		"payment_status":    out.PaymentStatus,
	})
}

// POST /api/payments/:id/verify (operator only) asks the provider for the
// live status without mutating anything.
func (h *PaymentHandler) Verify(c *gin.Context) {
	if _, ok := currentOperator(c); !ok {
		middleware.Fail(c, apperr.ForbiddenErr("Operator identity required."))
		return
	}

	status, err := h.Service.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// GET /api/payments/:id (operator only)
func (h *PaymentHandler) Get(c *gin.Context) {
	if _, ok := currentOperator(c); !ok {
		middleware.Fail(c, apperr.ForbiddenErr("Operator identity required."))
		return
	}

	p, err := h.Service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": paymentJSON(p)})
}

// GET /api/orders/:id/payments lists every attempt and refund row for the
// order. Customers see their own orders, operators see all.
func (h *PaymentHandler) ListByOrder(c *gin.Context) {
	o, _, err := h.Orders.GetWithLines(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	if _, op := currentOperator(c); !op {
		userID, ok := currentUser(c)
		if !ok || o.CustomerID != userID {
			middleware.Fail(c, apperr.NotFoundErr("Not found."))
			return
		}
	}

	rows, err := h.Service.ListByOrder(c.Request.Context(), o.ID)
	if err != nil {
		fail(c, err)
		return
	}

	items := make([]gin.H, 0, len(rows))
	for _, p := range rows {
		items = append(items, paymentJSON(p))
	}
	c.JSON(http.StatusOK, gin.H{"payments": items})
}

func paymentJSON(p payments.Payment) gin.H {
	return gin.H{
		"id":             p.ID,
		"order_id":       p.OrderID,
		"method":         p.Method,
		"reference":      p.Reference,
		"status":         p.Status,
		"amount_cents":   p.AmountCents,
		"currency":       p.Currency,
		"refund_of_id":   p.RefundOfID,
		"failure_reason": p.FailureReason,
		"initiated_at":   p.InitiatedAt,
		"completed_at":   p.CompletedAt,
	}
}

// GET /api/payments/methods?country=TG
func (h *PaymentHandler) Methods(c *gin.Context) {
	country := strings.ToUpper(strings.TrimSpace(c.Query("country")))
	if len(country) != 2 {
		middleware.Fail(c, apperr.InvalidErr("Query parameter country must be a 2-letter code.", nil))
		return
	}
	c.JSON(http.StatusOK, gin.H{"methods": h.Registry.MethodsForCountry(country)})
}
