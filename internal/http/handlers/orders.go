package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"marchenet.tg/app/internal/http/middleware"
	"marchenet.tg/app/internal/http/validation"
	"marchenet.tg/app/internal/modules/orders"
	"marchenet.tg/app/internal/shared/apperr"
)

type OrderHandler struct {
	Logger  *slog.Logger
	Service *orders.Service
	Repo    *orders.Repo
}

func NewOrderHandler(logger *slog.Logger, svc *orders.Service, repo *orders.Repo) *OrderHandler {
	return &OrderHandler{Logger: logger, Service: svc, Repo: repo}
}

type addressInput struct {
	FirstName  string `json:"first_name" binding:"required,min=2,max=100"`
	LastName   string `json:"last_name" binding:"required,min=2,max=100"`
	Line1      string `json:"line1" binding:"required,min=5,max=255"`
	Line2      string `json:"line2" binding:"omitempty,max=255"`
	City       string `json:"city" binding:"required,min=2,max=100"`
	Region     string `json:"region" binding:"omitempty,max=100"`
	PostalCode string `json:"postal_code" binding:"omitempty,max=32"`
	Country    string `json:"country" binding:"required,len=2"`
	Phone      string `json:"phone" binding:"omitempty,min=5,max=32"`
}

type createOrderLineInput struct {
	ProductID string `json:"product_id" binding:"required,uuid"`
	Qty       int    `json:"qty" binding:"required,gt=0"`
}

type createOrderInput struct {
	Lines           []createOrderLineInput `json:"lines" binding:"required,min=1,dive"`
	DeliveryAddress addressInput           `json:"delivery_address" binding:"required"`
	BillingAddress  *addressInput          `json:"billing_address" binding:"omitempty"`
	PaymentMethod   string                 `json:"payment_method" binding:"required,max=32"`
	Phone           string                 `json:"phone" binding:"omitempty,min=5,max=32"`
	CouponCode      string                 `json:"coupon_code" binding:"omitempty,max=64"`
	IdempotencyKey  string                 `json:"idempotency_key" binding:"omitempty,max=64"`
}

// POST /api/orders
func (h *OrderHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		middleware.Fail(c, apperr.UnauthorizedErr("Missing user identity."))
		return
	}

	var in createOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		errs := validation.FromBindError(err, &in)
		middleware.Fail(c, apperr.InvalidErr("Request validation failed.", errs))
		return
	}

	lines := make([]orders.CreateOrderLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		lines = append(lines, orders.CreateOrderLine{ProductID: l.ProductID, Qty: l.Qty})
	}

	var billing *orders.Address
	if in.BillingAddress != nil {
		b := toAddress(*in.BillingAddress)
		billing = &b
	}

	res, err := h.Service.CreateOrder(c.Request.Context(), orders.CreateOrderInput{
		CustomerID:      userID,
		Lines:           lines,
		DeliveryAddress: toAddress(in.DeliveryAddress),
		BillingAddress:  billing,
		PaymentMethod:   in.PaymentMethod,
		Phone:           in.Phone,
		CouponCode:      in.CouponCode,
		IdempotencyKey:  in.IdempotencyKey,
	})
	if err != nil {
		fail(c, err)
		return
	}

	body := gin.H{"order": orderJSON(res.Order, res.Lines)}
	if res.Payment != nil {
		body["payment"] = gin.H{
			"payment_id":   res.Payment.PaymentID,
			"reference":    res.Payment.Reference,
			"status":       res.Payment.Status,
			"redirect_url": res.Payment.RedirectURL,
			"instructions": res.Payment.Instructions,
		}
	}
	c.JSON(http.StatusCreated, body)
}

// GET /api/orders/:id accepts either the uuid or the human-readable
// order number.
func (h *OrderHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if strings.HasPrefix(id, "MN-") {
		o, err := h.Repo.GetByNumber(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		id = o.ID
	}

	o, lines, err := h.Repo.GetWithLines(c.Request.Context(), id)
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

	c.JSON(http.StatusOK, gin.H{"order": orderJSON(o, lines)})
}

// GET /api/orders
func (h *OrderHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		middleware.Fail(c, apperr.UnauthorizedErr("Missing user identity."))
		return
	}

	var q struct {
		Page     int    `form:"page"`
		PageSize int    `form:"page_size"`
		Status   string `form:"status"`
	}
	_ = c.ShouldBindQuery(&q)

	res, err := h.Repo.ListByCustomer(c.Request.Context(), orders.ListByCustomerParams{
		CustomerID: userID,
		Page:       q.Page,
		PageSize:   q.PageSize,
		Status:     q.Status,
	})
	if err != nil {
		fail(c, err)
		return
	}

	items := make([]gin.H, 0, len(res.Items))
	for _, o := range res.Items {
		items = append(items, orderJSON(o, nil))
	}
	c.JSON(http.StatusOK, gin.H{"orders": items, "total": res.Total})
}

type cancelOrderInput struct {
	Reason string `json:"reason" binding:"omitempty,max=255"`
}

// POST /api/orders/:id/cancel
func (h *OrderHandler) Cancel(c *gin.Context) {
	actor, op := currentOperator(c)
	if !op {
		var ok bool
		actor, ok = currentUser(c)
		if !ok {
			middleware.Fail(c, apperr.UnauthorizedErr("Missing identity."))
			return
		}
		// Customers may only cancel their own orders.
		o, _, err := h.Repo.GetWithLines(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		if o.CustomerID != actor {
			middleware.Fail(c, apperr.NotFoundErr("Not found."))
			return
		}
	}

	var in cancelOrderInput
	_ = c.ShouldBindJSON(&in)

	err := h.Service.CancelOrder(c.Request.Context(), orders.CancelOrderInput{
		OrderID: c.Param("id"),
		Actor:   actor,
		Reason:  in.Reason,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type updateStatusInput struct {
	Status   string `json:"status" binding:"required,max=32"`
	Tracking string `json:"tracking" binding:"omitempty,max=255"`
}

// PUT /api/orders/:id/status (operator/vendor only)
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		middleware.Fail(c, apperr.ForbiddenErr("Operator identity required."))
		return
	}

	var in updateStatusInput
	if err := c.ShouldBindJSON(&in); err != nil {
		errs := validation.FromBindError(err, &in)
		middleware.Fail(c, apperr.InvalidErr("Request validation failed.", errs))
		return
	}

	err := h.Service.UpdateStatus(c.Request.Context(), orders.UpdateStatusInput{
		OrderID:  c.Param("id"),
		ToStatus: in.Status,
		Actor:    operator,
		Tracking: in.Tracking,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /api/orders/:id/events returns the audit trail. Customers see their
// own, any operator sees all.
func (h *OrderHandler) Events(c *gin.Context) {
	o, _, err := h.Repo.GetWithLines(c.Request.Context(), c.Param("id"))
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

	evs, err := h.Repo.Events(c.Request.Context(), o.ID)
	if err != nil {
		fail(c, err)
		return
	}

	items := make([]gin.H, 0, len(evs))
	for _, ev := range evs {
		items = append(items, gin.H{
			"actor":       ev.Actor,
			"action":      ev.Action,
			"from_status": ev.FromStatus,
			"to_status":   ev.ToStatus,
			"note":        ev.Note,
			"created_at":  ev.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": items})
}

func toAddress(in addressInput) orders.Address {
	return orders.Address{
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Line1:      in.Line1,
		Line2:      in.Line2,
		City:       in.City,
		Region:     in.Region,
		PostalCode: in.PostalCode,
		Country:    in.Country,
		Phone:      in.Phone,
	}
}

func orderJSON(o orders.Order, lines []orders.OrderLine) gin.H {
	out := gin.H{
		"id":             o.ID,
		"number":         o.Number,
		"status":         o.Status,
		"payment_status": o.PaymentStatus,
		"payment_method": o.PaymentMethod,
		"subtotal_cents": o.SubtotalCents,
		"shipping_cents": o.ShippingCents,
		"discount_cents": o.DiscountCents,
		"fee_cents":      o.FeeCents,
		"total_cents":    o.TotalCents,
		"refunded_cents": o.RefundedCents,
		"currency":       o.Currency,
		"created_at":     o.CreatedAt,
	}
	if lines != nil {
		ls := make([]gin.H, 0, len(lines))
		for _, l := range lines {
			ls = append(ls, gin.H{
				"id":               l.ID,
				"product_id":       l.ProductID,
				"product_name":     l.ProductName,
				"variant":          l.Variant,
				"unit_price_cents": l.UnitPriceCents,
				"qty":              l.Quantity,
				"line_total_cents": l.LineTotalCents,
				"status":           l.Status,
			})
		}
		out["lines"] = ls
	}
	return out
}
