package payments

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marchenet.tg/app/internal/modules/orders"
)

type Service struct {
	db       *gorm.DB
	registry *Registry
	logger   *slog.Logger
}

func NewService(db *gorm.DB, registry *Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, registry: registry, logger: logger}
}

type InitiateInput struct {
	OrderID        string
	Method         string // empty: use the order's selected method
	Phone          string
	IdempotencyKey string
}

type InitiateOutcome struct {
	PaymentID    string
	Reference    string
	Status       string
	RedirectURL  string
	Instructions string
	Idempotent   bool
}

// Initiate runs the three-phase payment start: (1) lock the order and create
// the pending attempt, (2) call the adapter outside any transaction, (3)
// finalize the attempt row. Adapter failures are always persisted as failed
// payments, never dropped.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (InitiateOutcome, error) {
	if in.OrderID == "" {
		return InitiateOutcome{}, ErrOrderNotPayable
	}

	var created Payment
	var ord orders.Order
	var provider Provider
	var idempotentHit bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&ord, "id = ?", in.OrderID).Error; err != nil {
			return err
		}

		// Idempotency before the payable gate: a replayed key returns the
		// stored attempt even after the order settled or was cancelled.
		if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
			var existing Payment
			e := tx.WithContext(ctx).First(&existing, "order_id = ? AND idempotency_key = ?", ord.ID, key).Error
			if e == nil {
				created = existing
				idempotentHit = true
				return nil
			}
			if !errors.Is(e, gorm.ErrRecordNotFound) {
				return e
			}
		}

		// Payable gate: a pending order whose payment has not completed.
		// Explicit retries after a failed attempt go through here too.
		if ord.Status != orders.StatusPending {
			return ErrOrderNotPayable
		}
		if ord.PaymentStatus != orders.PaymentPending && ord.PaymentStatus != orders.PaymentFailed {
			return ErrOrderNotPayable
		}

		method := strings.ToLower(strings.TrimSpace(in.Method))
		if method == "" {
			method = ord.PaymentMethod
		}
		var ok bool
		provider, ok = s.registry.Get(method)
		if !ok {
			return ErrUnknownMethod
		}

		now := time.Now()
		var phonePtr *string
		if p := strings.TrimSpace(in.Phone); p == "" && ord.Phone != nil {
			phonePtr = ord.Phone
		} else if p != "" {
			phonePtr = &p
		}
		var keyPtr *string
		if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
			keyPtr = &key
		}

		created = Payment{
			ID:             uuid.NewString(),
			OrderID:        ord.ID,
			Method:         method,
			Reference:      "PAY-" + uuid.NewString(),
			Status:         StatusPending,
			AmountCents:    ord.TotalCents,
			Currency:       ord.Currency,
			Phone:          phonePtr,
			IdempotencyKey: keyPtr,
			InitiatedAt:    now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return tx.WithContext(ctx).Create(&created).Error
	})
	if err != nil {
		return InitiateOutcome{}, err
	}

	if idempotentHit {
		out := outcomeFor(created, "", "")
		out.Idempotent = true
		return out, nil
	}

	// Phase 2: adapter call, bounded by the adapter's client timeout.
	resp, perr := provider.Initiate(ctx, InitiateRequest{
		OrderID:     ord.ID,
		Reference:   created.Reference,
		AmountCents: created.AmountCents,
		Currency:    created.Currency,
		Phone:       deref(created.Phone),
	})

	// Phase 3: finalize the attempt row.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		updates := map[string]any{"updated_at": now}

		if resp.ProviderRef != "" {
			updates["provider_ref"] = resp.ProviderRef
		}
		if len(resp.Raw) > 0 {
			updates["raw_response"] = datatypes.JSON(resp.Raw)
		}

		if perr != nil {
			msg := truncate(perr.Error(), 250)
			updates["status"] = StatusFailed
			updates["failure_reason"] = msg
			return tx.WithContext(ctx).Model(&Payment{}).
				Where("id = ?", created.ID).
				Updates(updates).Error
		}

		status := resp.Status
		if status == "" {
			status = StatusProcessing
		}
		updates["status"] = status
		return tx.WithContext(ctx).Model(&Payment{}).
			Where("id = ?", created.ID).
			Updates(updates).Error
	})
	if err != nil {
		return InitiateOutcome{}, err
	}

	if perr != nil {
		s.logger.WarnContext(ctx, "payment initiation failed",
			"order_id", ord.ID, "payment_id", created.ID, "method", created.Method, "err", perr)
		return InitiateOutcome{}, &ProviderError{Method: created.Method, Err: perr}
	}

	created.Status = resp.Status
	if created.Status == "" {
		created.Status = StatusProcessing
	}
	return outcomeFor(created, resp.RedirectURL, resp.Instructions), nil
}

// Verify asks the provider for the current status of an attempt without
// mutating anything (operator-triggered reconciliation).
func (s *Service) Verify(ctx context.Context, paymentID string) (string, error) {
	var p Payment
	if err := s.db.WithContext(ctx).First(&p, "id = ?", paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrPaymentNotFound
		}
		return "", err
	}
	provider, ok := s.registry.Get(p.Method)
	if !ok {
		return "", ErrUnknownMethod
	}
	if p.ProviderRef == nil {
		return p.Status, nil
	}
	return provider.Verify(ctx, *p.ProviderRef)
}

func (s *Service) Get(ctx context.Context, paymentID string) (Payment, error) {
	var p Payment
	err := s.db.WithContext(ctx).First(&p, "id = ?", paymentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, err
}

func (s *Service) ListByOrder(ctx context.Context, orderID string) ([]Payment, error) {
	var out []Payment
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&out, "order_id = ?", orderID).Error
	return out, err
}

func outcomeFor(p Payment, redirectURL, instructions string) InitiateOutcome {
	return InitiateOutcome{
		PaymentID:    p.ID,
		Reference:    p.Reference,
		Status:       p.Status,
		RedirectURL:  redirectURL,
		Instructions: instructions,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
