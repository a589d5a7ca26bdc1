package payments

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marchenet.tg/app/internal/modules/orders"
)

// Gateway adapts the payment services to the order workflow's
// orders.PaymentGateway interface.
type Gateway struct {
	registry *Registry
	service  *Service
}

func NewGateway(registry *Registry, service *Service) *Gateway {
	return &Gateway{registry: registry, service: service}
}

var _ orders.PaymentGateway = (*Gateway)(nil)

func (g *Gateway) FeeFor(method string, amountCents int) (int, error) {
	p, ok := g.registry.Get(method)
	if !ok {
		return 0, ErrUnknownMethod
	}
	return p.Fee(amountCents), nil
}

func (g *Gateway) Initiate(ctx context.Context, in orders.InitiatePaymentInput) (orders.InitiatePaymentResult, error) {
	out, err := g.service.Initiate(ctx, InitiateInput{
		OrderID:        in.OrderID,
		Method:         in.Method,
		Phone:          in.Phone,
		IdempotencyKey: in.IdempotencyKey,
	})
	if err != nil {
		return orders.InitiatePaymentResult{}, err
	}
	return orders.InitiatePaymentResult{
		PaymentID:    out.PaymentID,
		Reference:    out.Reference,
		Status:       out.Status,
		RedirectURL:  out.RedirectURL,
		Instructions: out.Instructions,
	}, nil
}

// CompensateCancellationInTx refunds every settled payment of a paid order
// inside the cancellation transaction. A success webhook racing this cancel
// either lands first (and the payment is refunded here) or settles after the
// cancel commits, in which case the webhook path refunds it itself. A
// completed payment is never silently downgraded.
func (g *Gateway) CompensateCancellationInTx(ctx context.Context, tx *gorm.DB, o *orders.Order, actor string) error {
	var settled []Payment
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND amount_cents > 0 AND status IN ?", o.ID,
			[]string{StatusCompleted, StatusPartiallyRefunded}).
		Order("created_at ASC").
		Find(&settled).Error; err != nil {
		return err
	}

	for _, p := range settled {
		remaining, err := refundableRemainder(ctx, tx, p)
		if err != nil {
			return err
		}
		if remaining <= 0 {
			continue
		}
		if _, err := refundInTx(ctx, tx, p, remaining, "order cancelled", actor); err != nil {
			return err
		}
	}
	return nil
}
