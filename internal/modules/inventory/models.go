package inventory

import "time"

// StockRecord is the per-product inventory counter pair. available stock is
// derived: on_hand - reserved. Rows are mutated only under a row lock.
type StockRecord struct {
	ProductID string    `gorm:"type:char(36);primaryKey"`
	OnHand    int       `gorm:"not null"`
	Reserved  int       `gorm:"not null"`
	UpdatedAt time.Time `gorm:"type:datetime(3);not null"`
}

func (StockRecord) TableName() string { return "inventory_stocks" }

func (r StockRecord) Available() int { return r.OnHand - r.Reserved }

type Line struct {
	ProductID string
	Qty       int
}
