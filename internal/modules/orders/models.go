package orders

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Order struct {
	ID     string `gorm:"type:char(36);primaryKey"`
	Number string `gorm:"type:varchar(32);not null;uniqueIndex:ux_orders_number"`

	CustomerID string  `gorm:"type:char(36);not null;index:ix_orders_customer_id"`
	StoreID    *string `gorm:"type:char(36);index:ix_orders_store_id"`

	Status        string `gorm:"type:varchar(32);not null"`
	PaymentStatus string `gorm:"type:varchar(32);not null"`
	PaymentMethod string `gorm:"type:varchar(32);not null"`

	SubtotalCents int `gorm:"not null"`
	ShippingCents int `gorm:"not null"`
	DiscountCents int `gorm:"not null"`
	FeeCents      int `gorm:"not null"`
	TotalCents    int `gorm:"not null"`
	RefundedCents int `gorm:"not null"`

	Currency   string  `gorm:"type:char(3);not null"`
	CouponCode *string `gorm:"type:varchar(64)"`
	Phone      *string `gorm:"type:varchar(32)"`

	// Address snapshots, frozen at creation.
	DeliveryAddressJSON datatypes.JSON `gorm:"type:json;not null"`
	BillingAddressJSON  datatypes.JSON `gorm:"type:json"`

	CreatedAt   time.Time  `gorm:"type:datetime(3);not null"`
	UpdatedAt   time.Time  `gorm:"type:datetime(3);not null"`
	PaidAt      *time.Time `gorm:"type:datetime(3)"`
	CancelledAt *time.Time `gorm:"type:datetime(3)"`
	DeliveredAt *time.Time `gorm:"type:datetime(3)"`
	RefundedAt  *time.Time `gorm:"type:datetime(3)"`

	DeletedAt gorm.DeletedAt `gorm:"type:datetime(3);index"`
}

func (Order) TableName() string { return "orders" }

// OrderLine is an immutable snapshot of the product at order time; only its
// per-line status changes afterwards.
type OrderLine struct {
	ID      string `gorm:"type:char(36);primaryKey"`
	OrderID string `gorm:"type:char(36);not null;index:ix_order_lines_order_id"`

	ProductID   string  `gorm:"type:char(36);not null;index:ix_order_lines_product_id"`
	ProductName string  `gorm:"type:varchar(255);not null"`
	Variant     *string `gorm:"type:varchar(128)"`

	UnitPriceCents int    `gorm:"not null"`
	Quantity       int    `gorm:"not null"`
	LineTotalCents int    `gorm:"not null"`
	Currency       string `gorm:"type:char(3);not null"`

	Status string `gorm:"type:varchar(32);not null"`

	CreatedAt time.Time `gorm:"type:datetime(3);not null"`
	UpdatedAt time.Time `gorm:"type:datetime(3);not null"`
}

func (OrderLine) TableName() string { return "order_lines" }

// OrderEvent is the audit trail row written on every transition.
type OrderEvent struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	OrderID    string    `gorm:"type:char(36);not null;index:ix_order_events_order_id"`
	Actor      string    `gorm:"type:varchar(64);not null"`
	Action     string    `gorm:"type:varchar(32);not null"`
	FromStatus string    `gorm:"type:varchar(32);not null"`
	ToStatus   string    `gorm:"type:varchar(32);not null"`
	Note       *string   `gorm:"type:varchar(255)"`
	CreatedAt  time.Time `gorm:"type:datetime(3);not null"`
}

func (OrderEvent) TableName() string { return "order_events" }

type Coupon struct {
	Code           string     `gorm:"type:varchar(64);primaryKey"`
	PercentOff     int        `gorm:"not null"`
	AmountOffCents int        `gorm:"not null"`
	Active         bool       `gorm:"not null"`
	ExpiresAt      *time.Time `gorm:"type:datetime(3)"`
}

func (Coupon) TableName() string { return "coupons" }

// Product is the read-only boundary to the catalog service. The core never
// writes this table.
type Product struct {
	ID         string  `gorm:"type:char(36);primaryKey"`
	StoreID    string  `gorm:"type:char(36);not null"`
	Name       string  `gorm:"type:varchar(255);not null"`
	Variant    *string `gorm:"type:varchar(128)"`
	PriceCents int     `gorm:"not null"`
	Currency   string  `gorm:"type:char(3);not null"`
	Active     bool    `gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// Address is the structured snapshot stored as JSON on the order.
type Address struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}
