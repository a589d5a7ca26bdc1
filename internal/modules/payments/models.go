package payments

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending           = "pending"
	StatusProcessing        = "processing"
	StatusCompleted         = "completed"
	StatusFailed            = "failed"
	StatusRefunded          = "refunded"
	StatusPartiallyRefunded = "partially_refunded"
)

// IsTerminal: no webhook may move a payment out of these states.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusRefunded, StatusPartiallyRefunded:
		return true
	}
	return false
}

// Payment records one attempt (or one refund, as a negative-amount row with
// RefundOfID set). Rows are never deleted; RawResponse keeps the provider's
// payload verbatim for audit and is never used for decisions.
type Payment struct {
	ID      string `gorm:"type:char(36);primaryKey"`
	OrderID string `gorm:"type:char(36);not null;index:ix_payments_order_id"`

	Method      string  `gorm:"type:varchar(32);not null"`
	Reference   string  `gorm:"type:varchar(64);not null;uniqueIndex:ux_payments_reference"`
	ProviderRef *string `gorm:"type:varchar(128);index:ix_payments_provider_ref"`

	Status      string  `gorm:"type:varchar(32);not null"`
	AmountCents int     `gorm:"not null"`
	Currency    string  `gorm:"type:char(3);not null"`
	Phone       *string `gorm:"type:varchar(32)"`

	RefundOfID *string `gorm:"type:char(36);index:ix_payments_refund_of_id"`

	RawResponse   datatypes.JSON `gorm:"type:json"`
	FailureReason *string        `gorm:"type:varchar(255)"`

	IdempotencyKey *string `gorm:"type:varchar(64);index:ix_payments_idem_key"`

	InitiatedAt time.Time  `gorm:"type:datetime(3);not null"`
	CompletedAt *time.Time `gorm:"type:datetime(3)"`
	CreatedAt   time.Time  `gorm:"type:datetime(3);not null"`
	UpdatedAt   time.Time  `gorm:"type:datetime(3);not null"`
}

func (Payment) TableName() string { return "payments" }

// ProviderEvent deduplicates inbound webhooks: unique(provider, event_id).
type ProviderEvent struct {
	ID          string         `gorm:"type:char(36);primaryKey"`
	Provider    string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_provider_events_provider_event,priority:1"`
	EventID     string         `gorm:"type:varchar(128);not null;uniqueIndex:ux_provider_events_provider_event,priority:2"`
	EventType   string         `gorm:"type:varchar(64);not null"`
	PayloadJSON datatypes.JSON `gorm:"type:json;not null"`

	ReceivedAt   time.Time  `gorm:"type:datetime(3);not null"`
	ProcessedAt  *time.Time `gorm:"type:datetime(3)"`
	ProcessError *string    `gorm:"type:varchar(255)"`
}

func (ProviderEvent) TableName() string { return "provider_events" }
