package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marchenet.tg/app/internal/modules/inventory"
)

// PaymentGateway is the order workflow's view of the payment orchestrator.
// Implemented by the payments package; kept as an interface here so the
// dependency only points one way.
type PaymentGateway interface {
	// FeeFor returns the provider fee for the method, or an error for an
	// unknown/unconfigured method.
	FeeFor(method string, amountCents int) (int, error)

	Initiate(ctx context.Context, in InitiatePaymentInput) (InitiatePaymentResult, error)

	// CompensateCancellationInTx records the refund compensation for a paid
	// order inside the cancellation transaction.
	CompensateCancellationInTx(ctx context.Context, tx *gorm.DB, o *Order, actor string) error
}

type InitiatePaymentInput struct {
	OrderID        string
	Method         string
	Phone          string
	IdempotencyKey string
}

type InitiatePaymentResult struct {
	PaymentID    string
	Reference    string
	Status       string
	RedirectURL  string
	Instructions string
}

type Service struct {
	db       *gorm.DB
	logger   *slog.Logger
	payments PaymentGateway
	shipping ShippingPolicy
	currency string
}

func NewService(db *gorm.DB, logger *slog.Logger, payments PaymentGateway, shipping ShippingPolicy, currency string) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, logger: logger, payments: payments, shipping: shipping, currency: currency}
}

type CreateOrderLine struct {
	ProductID string
	Qty       int
}

type CreateOrderInput struct {
	CustomerID      string
	Lines           []CreateOrderLine
	DeliveryAddress Address
	BillingAddress  *Address
	PaymentMethod   string
	Phone           string
	CouponCode      string
	IdempotencyKey  string
}

type CreateOrderResult struct {
	Order   Order
	Lines   []OrderLine
	Payment *InitiatePaymentResult // nil for cash on delivery
}

// CreateOrder reserves stock, prices and persists the order atomically, then
// initiates payment. A failed initiation cancels the order and releases the
// reservation; the order row survives as the audit trail of the attempt.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	if in.CustomerID == "" {
		return CreateOrderResult{}, ErrMissingCustomer
	}
	if len(in.Lines) == 0 {
		return CreateOrderResult{}, ErrEmptyOrder
	}

	method := strings.ToLower(strings.TrimSpace(in.PaymentMethod))

	// Probing the fee up front also validates the method before any state
	// is written.
	if _, err := s.payments.FeeFor(method, 0); err != nil {
		return CreateOrderResult{}, err
	}

	var ord Order
	var lines []OrderLine

	createTx := func(tx *gorm.DB) error {
		now := time.Now()

		products, err := s.loadProducts(ctx, tx, in.Lines)
		if err != nil {
			return err
		}

		lines = lines[:0]
		subtotal := 0
		var storeID *string
		resLines := make([]inventory.Line, 0, len(in.Lines))

		for _, l := range in.Lines {
			p, ok := products[l.ProductID]
			if !ok || !p.Active {
				return ErrProductUnavailable
			}
			if p.Currency != s.currency {
				return ErrCurrencyMismatch
			}
			qty := l.Qty
			if qty < 1 {
				qty = 1
			}

			lines = append(lines, OrderLine{
				ID:             uuid.NewString(),
				ProductID:      p.ID,
				ProductName:    p.Name,
				Variant:        p.Variant,
				UnitPriceCents: p.PriceCents,
				Quantity:       qty,
				LineTotalCents: p.PriceCents * qty,
				Currency:       p.Currency,
				Status:         LinePending,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
			subtotal += p.PriceCents * qty
			resLines = append(resLines, inventory.Line{ProductID: p.ID, Qty: qty})
			if storeID == nil {
				sid := p.StoreID
				storeID = &sid
			}
		}

		// All-or-nothing hold; rolls the whole tx back on shortage.
		if err := inventory.ReserveInTx(ctx, tx, resLines); err != nil {
			return err
		}

		shipping := s.shipping.Fee(in.DeliveryAddress.Country, subtotal)

		discount := 0
		var couponPtr *string
		if code := strings.TrimSpace(in.CouponCode); code != "" {
			var cp Coupon
			if err := tx.WithContext(ctx).First(&cp, "code = ?", code).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrCouponInvalid
				}
				return err
			}
			discount, err = cp.DiscountFor(subtotal, now)
			if err != nil {
				return err
			}
			couponPtr = &cp.Code
		}

		fee, err := s.payments.FeeFor(method, subtotal+shipping-discount)
		if err != nil {
			return err
		}

		totals, err := ComputeTotals(subtotal, shipping, discount, fee)
		if err != nil {
			return err
		}

		number, err := nextNumberInTx(ctx, tx, now)
		if err != nil {
			return err
		}

		deliveryJSON, err := json.Marshal(in.DeliveryAddress)
		if err != nil {
			return err
		}
		var billingJSON datatypes.JSON
		if in.BillingAddress != nil {
			b, err := json.Marshal(in.BillingAddress)
			if err != nil {
				return err
			}
			billingJSON = datatypes.JSON(b)
		}

		var phonePtr *string
		if p := strings.TrimSpace(in.Phone); p != "" {
			phonePtr = &p
		}

		ord = Order{
			ID:                  uuid.NewString(),
			Number:              number,
			CustomerID:          in.CustomerID,
			StoreID:             storeID,
			Status:              StatusPending,
			PaymentStatus:       PaymentPending,
			PaymentMethod:       method,
			SubtotalCents:       totals.SubtotalCents,
			ShippingCents:       totals.ShippingCents,
			DiscountCents:       totals.DiscountCents,
			FeeCents:            totals.FeeCents,
			TotalCents:          totals.TotalCents,
			Currency:            s.currency,
			CouponCode:          couponPtr,
			Phone:               phonePtr,
			DeliveryAddressJSON: datatypes.JSON(deliveryJSON),
			BillingAddressJSON:  billingJSON,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := tx.WithContext(ctx).Create(&ord).Error; err != nil {
			return err
		}

		for i := range lines {
			lines[i].OrderID = ord.ID
		}
		if err := tx.WithContext(ctx).Create(&lines).Error; err != nil {
			return err
		}

		ev := OrderEvent{
			ID:         uuid.NewString(),
			OrderID:    ord.ID,
			Actor:      in.CustomerID,
			Action:     "create",
			FromStatus: "",
			ToStatus:   StatusPending,
			CreatedAt:  now,
		}
		return tx.WithContext(ctx).Create(&ev).Error
	}

	// Deadlock and lock-timeout retries run inside WithTxRetry; the outer
	// loop covers the rare order-number collision (1062 on the unique
	// number index), which needs a fresh number on the next attempt.
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = inventory.WithTxRetry(ctx, s.db, 3, createTx)
		if err == nil || !isDupNumber(err) {
			break
		}
	}
	if err != nil {
		return CreateOrderResult{}, err
	}

	s.logger.InfoContext(ctx, "order created",
		"order_id", ord.ID, "number", ord.Number, "total_cents", ord.TotalCents, "method", method)

	if method == MethodCashOnDelivery {
		// Manual settlement on delivery; no provider call.
		return CreateOrderResult{Order: ord, Lines: lines}, nil
	}

	payRes, payErr := s.payments.Initiate(ctx, InitiatePaymentInput{
		OrderID:        ord.ID,
		Method:         method,
		Phone:          in.Phone,
		IdempotencyKey: in.IdempotencyKey,
	})
	if payErr != nil {
		// Compensate: the order stays on file as a cancelled attempt, the
		// hold goes back to the pool. The failed payment row was already
		// persisted by the orchestrator.
		if cErr := s.cancelAfterInitiationFailure(ctx, ord.ID, payErr); cErr != nil {
			s.logger.ErrorContext(ctx, "initiation compensation failed",
				"order_id", ord.ID, "err", cErr)
		}
		return CreateOrderResult{}, payErr
	}

	ord.PaymentStatus = PaymentPending
	return CreateOrderResult{Order: ord, Lines: lines, Payment: &payRes}, nil
}

func (s *Service) loadProducts(ctx context.Context, tx *gorm.DB, lines []CreateOrderLine) (map[string]Product, error) {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	var rows []Product
	if err := tx.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]Product, len(rows))
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

func (s *Service) cancelAfterInitiationFailure(ctx context.Context, orderID string, cause error) error {
	return inventory.WithTxRetry(ctx, s.db, 3, func(tx *gorm.DB) error {
		var o Order
		if err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&o, "id = ?", orderID).Error; err != nil {
			return err
		}
		if o.Status != StatusPending {
			return nil
		}

		if err := s.releaseLinesInTx(ctx, tx, o.ID); err != nil {
			return err
		}

		now := time.Now()
		if err := tx.WithContext(ctx).Model(&Order{}).
			Where("id = ? AND status = ?", o.ID, StatusPending).
			Updates(map[string]any{
				"status":         StatusCancelled,
				"payment_status": PaymentFailed,
				"cancelled_at":   now,
				"updated_at":     now,
			}).Error; err != nil {
			return err
		}

		note := truncateNote("payment initiation failed: " + cause.Error())
		ev := OrderEvent{
			ID:         uuid.NewString(),
			OrderID:    o.ID,
			Actor:      "system",
			Action:     "cancel",
			FromStatus: StatusPending,
			ToStatus:   StatusCancelled,
			Note:       &note,
			CreatedAt:  now,
		}
		return tx.WithContext(ctx).Create(&ev).Error
	})
}

type CancelOrderInput struct {
	OrderID string
	Actor   string
	Reason  string
}

// CancelOrder releases the reservation and, for paid orders, triggers the
// refund compensation. Cancelling an already-cancelled order is a no-op.
func (s *Service) CancelOrder(ctx context.Context, in CancelOrderInput) error {
	if in.OrderID == "" || in.Actor == "" {
		return ErrNotCancellable
	}

	return inventory.WithTxRetry(ctx, s.db, 3, func(tx *gorm.DB) error {
		var o Order
		if err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&o, "id = ?", in.OrderID).Error; err != nil {
			return err
		}

		if o.Status == StatusCancelled {
			return nil // idempotent
		}
		if !Cancellable(o.Status) {
			return ErrNotCancellable
		}

		if err := s.releaseLinesInTx(ctx, tx, o.ID); err != nil {
			return err
		}

		now := time.Now()
		wasPaid := o.PaymentStatus == PaymentPaid

		updates := map[string]any{
			"status":       StatusCancelled,
			"cancelled_at": now,
			"updated_at":   now,
		}
		if err := tx.WithContext(ctx).Model(&Order{}).
			Where("id = ? AND status = ?", o.ID, o.Status).
			Updates(updates).Error; err != nil {
			return err
		}

		if wasPaid {
			if err := s.payments.CompensateCancellationInTx(ctx, tx, &o, in.Actor); err != nil {
				return err
			}
		}

		var notePtr *string
		if r := strings.TrimSpace(in.Reason); r != "" {
			n := truncateNote(r)
			notePtr = &n
		}
		ev := OrderEvent{
			ID:         uuid.NewString(),
			OrderID:    o.ID,
			Actor:      in.Actor,
			Action:     "cancel",
			FromStatus: o.Status,
			ToStatus:   StatusCancelled,
			Note:       notePtr,
			CreatedAt:  now,
		}
		return tx.WithContext(ctx).Create(&ev).Error
	})
}

// releaseLinesInTx returns every non-cancelled line's hold and marks the
// lines cancelled.
func (s *Service) releaseLinesInTx(ctx context.Context, tx *gorm.DB, orderID string) error {
	var lines []OrderLine
	if err := tx.WithContext(ctx).Find(&lines, "order_id = ? AND status <> ?", orderID, LineCancelled).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}

	res := make([]inventory.Line, 0, len(lines))
	for _, l := range lines {
		res = append(res, inventory.Line{ProductID: l.ProductID, Qty: l.Quantity})
	}
	if err := inventory.ReleaseInTx(ctx, tx, res); err != nil {
		return err
	}

	return tx.WithContext(ctx).Model(&OrderLine{}).
		Where("order_id = ? AND status <> ?", orderID, LineCancelled).
		Updates(map[string]any{"status": LineCancelled, "updated_at": time.Now()}).Error
}

type UpdateStatusInput struct {
	OrderID  string
	ToStatus string
	Actor    string
	Tracking string
}

// UpdateStatus advances the fulfillment chain (vendor/operator driven).
// Transition to delivered is the single point where reservations commit to
// permanent stock decrements.
func (s *Service) UpdateStatus(ctx context.Context, in UpdateStatusInput) error {
	if in.OrderID == "" || in.Actor == "" {
		return ErrInvalidTransition
	}
	to := strings.ToLower(strings.TrimSpace(in.ToStatus))
	if to == StatusCancelled || to == StatusRefunded {
		// Dedicated flows own these transitions.
		return ErrInvalidTransition
	}

	return inventory.WithTxRetry(ctx, s.db, 3, func(tx *gorm.DB) error {
		var o Order
		if err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&o, "id = ?", in.OrderID).Error; err != nil {
			return err
		}

		if !CanTransition(o.Status, to) {
			return ErrInvalidTransition
		}

		now := time.Now()
		updates := map[string]any{
			"status":     to,
			"updated_at": now,
		}

		switch to {
		case StatusPaid:
			if o.PaidAt == nil {
				updates["paid_at"] = now
			}
			updates["payment_status"] = PaymentPaid
		case StatusDelivered:
			updates["delivered_at"] = now

			var lines []OrderLine
			if err := tx.WithContext(ctx).Find(&lines, "order_id = ? AND status <> ?", o.ID, LineCancelled).Error; err != nil {
				return err
			}
			res := make([]inventory.Line, 0, len(lines))
			for _, l := range lines {
				res = append(res, inventory.Line{ProductID: l.ProductID, Qty: l.Quantity})
			}
			if err := inventory.CommitInTx(ctx, tx, res); err != nil {
				return err
			}
			if err := tx.WithContext(ctx).Model(&OrderLine{}).
				Where("order_id = ? AND status <> ?", o.ID, LineCancelled).
				Updates(map[string]any{"status": LineDelivered, "updated_at": now}).Error; err != nil {
				return err
			}
		case StatusReturned:
			// Returned before delivery: the hold goes back like a cancel.
			if err := s.releaseLinesInTx(ctx, tx, o.ID); err != nil {
				return err
			}
		}

		if err := tx.WithContext(ctx).Model(&Order{}).
			Where("id = ? AND status = ?", o.ID, o.Status). // optimistic guard
			Updates(updates).Error; err != nil {
			return err
		}

		var notePtr *string
		if t := strings.TrimSpace(in.Tracking); t != "" {
			n := truncateNote("tracking: " + t)
			notePtr = &n
		}
		ev := OrderEvent{
			ID:         uuid.NewString(),
			OrderID:    o.ID,
			Actor:      in.Actor,
			Action:     "status",
			FromStatus: o.Status,
			ToStatus:   to,
			Note:       notePtr,
			CreatedAt:  now,
		}
		return tx.WithContext(ctx).Create(&ev).Error
	})
}

func isDupNumber(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func truncateNote(s string) string {
	if len(s) <= 250 {
		return s
	}
	return s[:250]
}
