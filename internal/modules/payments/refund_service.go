package payments

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marchenet.tg/app/internal/modules/inventory"
	"marchenet.tg/app/internal/modules/orders"
)

type RefundService struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRefundService(db *gorm.DB, logger *slog.Logger) *RefundService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefundService{db: db, logger: logger}
}

type RefundInput struct {
	PaymentID   string
	AmountCents int // 0 means the full refundable remainder
	Reason      string
	Actor       string
}

type RefundOutcome struct {
	RefundPaymentID string
	AmountCents     int
	PaymentStatus   string // status of the original payment afterwards
}

// Refund records a refund against a completed payment as a new negative
// amount Payment row. The refund never exceeds the original amount; the sum
// of completed payments minus refunds stays within the order total.
func (s *RefundService) Refund(ctx context.Context, in RefundInput) (RefundOutcome, error) {
	if in.PaymentID == "" || in.Actor == "" {
		return RefundOutcome{}, ErrNotRefundable
	}
	if in.AmountCents < 0 {
		return RefundOutcome{}, ErrRefundExceedsAmount
	}

	var out RefundOutcome
	err := inventory.WithTxRetry(ctx, s.db, 3, func(tx *gorm.DB) error {
		var p Payment
		if err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&p, "id = ?", in.PaymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}

		remaining, err := refundableRemainder(ctx, tx, p)
		if err != nil {
			return err
		}
		if remaining <= 0 {
			return ErrNotRefundable
		}

		amount := in.AmountCents
		if amount == 0 {
			amount = remaining
		}
		if amount > remaining {
			return ErrRefundExceedsAmount
		}

		o, err := refundInTx(ctx, tx, p, amount, in.Reason, in.Actor)
		if err != nil {
			return err
		}
		out = *o
		return nil
	})
	if err != nil {
		return RefundOutcome{}, err
	}

	s.logger.InfoContext(ctx, "refund recorded",
		"payment_id", in.PaymentID, "refund_id", out.RefundPaymentID, "amount_cents", out.AmountCents)
	return out, nil
}

// refundableRemainder: original amount minus completed refunds already
// recorded against this payment. Only completed positive-amount payments
// are refundable at all.
func refundableRemainder(ctx context.Context, tx *gorm.DB, p Payment) (int, error) {
	if p.AmountCents <= 0 {
		return 0, ErrNotRefundable
	}
	if p.Status != StatusCompleted && p.Status != StatusPartiallyRefunded && p.Status != StatusRefunded {
		return 0, ErrNotRefundable
	}

	var refunded int
	if err := tx.WithContext(ctx).Model(&Payment{}).
		Select("COALESCE(SUM(-amount_cents), 0)").
		Where("refund_of_id = ? AND status = ?", p.ID, StatusCompleted).
		Scan(&refunded).Error; err != nil {
		return 0, err
	}
	return p.AmountCents - refunded, nil
}

// refundInTx writes the negative payment row and cascades statuses onto the
// original payment and the order. Caller holds the payment row lock.
func refundInTx(ctx context.Context, tx *gorm.DB, p Payment, amount int, reason, actor string) (*RefundOutcome, error) {
	now := time.Now()

	var reasonPtr *string
	if r := strings.TrimSpace(reason); r != "" {
		r = truncate(r, 250)
		reasonPtr = &r
	}

	refund := Payment{
		ID:            uuid.NewString(),
		OrderID:       p.OrderID,
		Method:        p.Method,
		Reference:     "REF-" + uuid.NewString(),
		ProviderRef:   p.ProviderRef,
		Status:        StatusCompleted,
		AmountCents:   -amount,
		Currency:      p.Currency,
		RefundOfID:    &p.ID,
		FailureReason: reasonPtr,
		InitiatedAt:   now,
		CompletedAt:   &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.WithContext(ctx).Create(&refund).Error; err != nil {
		return nil, err
	}

	remaining, err := refundableRemainder(ctx, tx, p)
	if err != nil {
		return nil, err
	}
	newStatus := StatusPartiallyRefunded
	if remaining <= 0 {
		newStatus = StatusRefunded
	}
	if err := tx.WithContext(ctx).Model(&Payment{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{"status": newStatus, "updated_at": now}).Error; err != nil {
		return nil, err
	}

	// Order cascade under its own row lock.
	var o orders.Order
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&o, "id = ?", p.OrderID).Error; err != nil {
		return nil, err
	}

	newRefunded := o.RefundedCents + amount
	if newRefunded > o.TotalCents {
		newRefunded = o.TotalCents
	}
	updates := map[string]any{
		"refunded_cents": newRefunded,
		"updated_at":     now,
	}

	// Fully refunded means no settled money remains across the order's
	// payment rows (refund rows carry negative amounts). Comparing against
	// the order total alone would misfire when an overpayment was refunded
	// while the first settlement stands.
	var net int
	if err := tx.WithContext(ctx).Model(&Payment{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("order_id = ? AND status IN ?", o.ID,
			[]string{StatusCompleted, StatusPartiallyRefunded, StatusRefunded}).
		Scan(&net).Error; err != nil {
		return nil, err
	}
	fully := net <= 0
	if fully {
		updates["payment_status"] = orders.PaymentRefunded
		updates["refunded_at"] = now
		if orders.CanTransition(o.Status, orders.StatusRefunded) {
			updates["status"] = orders.StatusRefunded
		}
	}
	if err := tx.WithContext(ctx).Model(&orders.Order{}).
		Where("id = ?", o.ID).
		Updates(updates).Error; err != nil {
		return nil, err
	}

	note := "refund_id=" + refund.ID
	ev := orders.OrderEvent{
		ID:         uuid.NewString(),
		OrderID:    o.ID,
		Actor:      actor,
		Action:     "refund",
		FromStatus: o.Status,
		ToStatus:   o.Status,
		Note:       &note,
		CreatedAt:  now,
	}
	if fully {
		if s, ok := updates["status"].(string); ok {
			ev.ToStatus = s
		}
	}
	if err := tx.WithContext(ctx).Create(&ev).Error; err != nil {
		return nil, err
	}

	return &RefundOutcome{
		RefundPaymentID: refund.ID,
		AmountCents:     amount,
		PaymentStatus:   newStatus,
	}, nil
}
