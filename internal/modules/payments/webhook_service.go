package payments

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marchenet.tg/app/internal/modules/orders"
)

type WebhookService struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewWebhookService(db *gorm.DB, logger *slog.Logger) *WebhookService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookService{db: db, logger: logger}
}

// Apply persists and applies one verified provider event. Delivery is
// at-least-once and unordered: duplicates dedupe on unique(provider,
// event_id), and a payment already in a terminal state absorbs the event as
// a no-op. ErrPaymentNotFound is returned for callbacks that reference no
// known attempt; the gateway acknowledges those so the provider stops
// retrying, and the stored event row flags them for operator review.
func (s *WebhookService) Apply(ctx context.Context, provider string, ev WebhookEvent, rawBody []byte) error {
	payload, _ := json.RawMessage(rawBody).MarshalJSON()

	var notFound bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		pe := ProviderEvent{
			ID:          uuid.NewString(),
			Provider:    provider,
			EventID:     ev.EventID,
			EventType:   ev.Type,
			PayloadJSON: datatypes.JSON(payload),
			ReceivedAt:  now,
		}

		if err := tx.WithContext(ctx).Create(&pe).Error; err != nil {
			if isDup(err) {
				s.logger.InfoContext(ctx, "webhook event deduplicated",
					"provider", provider, "event_id", ev.EventID, "type", ev.Type)
				return nil
			}
			return err
		}

		var applyErr error
		switch ev.Type {
		case EventPaymentSucceeded:
			applyErr = s.applyPaymentSucceeded(ctx, tx, provider, ev)
		case EventPaymentFailed:
			applyErr = s.applyPaymentFailed(ctx, tx, provider, ev)
		default:
			applyErr = ErrUnknownEventType
		}

		if errors.Is(applyErr, ErrPaymentNotFound) {
			// Keep the event, flag it, and commit: retrying will not make
			// the payment appear.
			notFound = true
			msg := "payment not found for provider_ref=" + ev.ProviderRef
			return tx.WithContext(ctx).Model(&ProviderEvent{}).
				Where("id = ?", pe.ID).
				Updates(map[string]any{"processed_at": now, "process_error": truncate(msg, 250)}).Error
		}

		if applyErr != nil {
			msg := truncate(applyErr.Error(), 250)
			if err := tx.WithContext(ctx).Model(&ProviderEvent{}).
				Where("id = ?", pe.ID).
				Updates(map[string]any{"process_error": msg}).Error; err != nil {
				return err
			}
			s.logger.ErrorContext(ctx, "webhook event apply failed",
				"provider", provider, "event_id", ev.EventID, "type", ev.Type, "error", msg)
			// Propagate so the gateway returns 500 and the provider retries.
			return applyErr
		}

		if err := tx.WithContext(ctx).Model(&ProviderEvent{}).
			Where("id = ?", pe.ID).
			Updates(map[string]any{"processed_at": now, "process_error": nil}).Error; err != nil {
			return err
		}

		s.logger.InfoContext(ctx, "webhook event processed",
			"provider", provider, "event_id", ev.EventID, "type", ev.Type)
		return nil
	})
	if err != nil {
		return err
	}
	if notFound {
		s.logger.WarnContext(ctx, "webhook referenced unknown payment, flagged for review",
			"provider", provider, "event_id", ev.EventID, "provider_ref", ev.ProviderRef)
		return ErrPaymentNotFound
	}
	return nil
}

func (s *WebhookService) applyPaymentSucceeded(ctx context.Context, tx *gorm.DB, provider string, ev WebhookEvent) error {
	p, err := s.lockPayment(ctx, tx, provider, ev.ProviderRef)
	if err != nil {
		return err
	}

	if IsTerminal(p.Status) && p.Status != StatusCompleted {
		return nil // idempotent replay
	}
	if ev.AmountCents > 0 && ev.AmountCents != p.AmountCents {
		return ErrAmountMismatch
	}

	now := time.Now()
	// Already completed (synchronous settlement during initiation, or a
	// replay): skip the payment update but still run the order cascade, its
	// guards make it idempotent.
	if p.Status != StatusCompleted {
		if err := tx.WithContext(ctx).Model(&Payment{}).
			Where("id = ?", p.ID).
			Updates(map[string]any{
				"status":         StatusCompleted,
				"failure_reason": nil,
				"completed_at":   now,
				"updated_at":     now,
			}).Error; err != nil {
			return err
		}
	}

	var o orders.Order
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&o, "id = ?", p.OrderID).Error; err != nil {
		return err
	}

	// The order was cancelled, refunded or returned while the charge was
	// still in flight: the money arrived for a dead order, so compensate
	// immediately instead of marking it paid.
	switch o.Status {
	case orders.StatusCancelled, orders.StatusRefunded, orders.StatusReturned:
		return s.refundSettlement(ctx, tx, p, p.AmountCents, "settled after cancellation")
	}

	// A different attempt already settled this order (two initiations
	// without idempotency keys both went through). The net settled money
	// must never exceed the order total; refund this payment's share of the
	// excess. Replays of the settlement that stands find no excess.
	excess, err := settledExcess(ctx, tx, o)
	if err != nil {
		return err
	}
	if excess > 0 {
		return s.refundSettlement(ctx, tx, p, excess, "duplicate settlement")
	}

	// Cascade: order payment status, and pending -> paid. The guards keep a
	// refunded or already-advanced order untouched.
	if err := tx.WithContext(ctx).Model(&orders.Order{}).
		Where("id = ? AND payment_status IN ?", o.ID, []string{orders.PaymentPending, orders.PaymentFailed}).
		Updates(map[string]any{
			"payment_status": orders.PaymentPaid,
			"updated_at":     now,
		}).Error; err != nil {
		return err
	}
	paidAt := now
	return tx.WithContext(ctx).Model(&orders.Order{}).
		Where("id = ? AND status = ?", o.ID, orders.StatusPending).
		Updates(map[string]any{
			"status":     orders.StatusPaid,
			"paid_at":    &paidAt,
			"updated_at": now,
		}).Error
}

// settledExcess is the net settled money across the order's payment rows
// (refund rows carry negative amounts) beyond the order total.
func settledExcess(ctx context.Context, tx *gorm.DB, o orders.Order) (int, error) {
	var net int
	if err := tx.WithContext(ctx).Model(&Payment{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("order_id = ? AND status IN ?", o.ID,
			[]string{StatusCompleted, StatusPartiallyRefunded, StatusRefunded}).
		Scan(&net).Error; err != nil {
		return 0, err
	}
	return net - o.TotalCents, nil
}

// refundSettlement refunds up to limitCents of a payment that settled for
// money the order must not keep. Replays find the remainder at zero.
func (s *WebhookService) refundSettlement(ctx context.Context, tx *gorm.DB, p Payment, limitCents int, reason string) error {
	p.Status = StatusCompleted
	remaining, err := refundableRemainder(ctx, tx, p)
	if err != nil {
		return err
	}
	amount := limitCents
	if amount > remaining {
		amount = remaining
	}
	if amount <= 0 {
		return nil
	}
	s.logger.WarnContext(ctx, "unexpected settlement, refunding",
		"order_id", p.OrderID, "payment_id", p.ID, "amount_cents", amount, "reason", reason)
	_, err = refundInTx(ctx, tx, p, amount, reason, "system")
	return err
}

func (s *WebhookService) applyPaymentFailed(ctx context.Context, tx *gorm.DB, provider string, ev WebhookEvent) error {
	p, err := s.lockPayment(ctx, tx, provider, ev.ProviderRef)
	if err != nil {
		return err
	}

	if IsTerminal(p.Status) {
		return nil
	}

	now := time.Now()
	reason := ev.Reason
	if reason == "" {
		reason = "provider webhook: failed"
	}
	if err := tx.WithContext(ctx).Model(&Payment{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"status":         StatusFailed,
			"failure_reason": truncate(reason, 250),
			"updated_at":     now,
		}).Error; err != nil {
		return err
	}

	// The order is left for the customer or operator to cancel or retry.
	// Never downgrade a paid order.
	return tx.WithContext(ctx).Model(&orders.Order{}).
		Where("id = ? AND payment_status = ?", p.OrderID, orders.PaymentPending).
		Updates(map[string]any{
			"payment_status": orders.PaymentFailed,
			"updated_at":     now,
		}).Error
}

// lockPayment resolves a callback to the original charge attempt. Refund
// rows copy the provider_ref of their original, so the lookup must exclude
// them or a callback could land on a negative-amount row.
func (s *WebhookService) lockPayment(ctx context.Context, tx *gorm.DB, provider, providerRef string) (Payment, error) {
	if providerRef == "" {
		return Payment{}, ErrPaymentNotFound
	}
	var p Payment
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "method = ? AND provider_ref = ? AND amount_cents > 0 AND refund_of_id IS NULL",
			provider, providerRef).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

func isDup(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
