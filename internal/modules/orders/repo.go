package orders

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) GetWithLines(ctx context.Context, id string) (Order, []OrderLine, error) {
	var o Order
	if err := r.db.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		return Order{}, nil, err
	}
	var lines []OrderLine
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&lines, "order_id = ?", id).Error; err != nil {
		return Order{}, nil, err
	}
	return o, lines, nil
}

func (r *Repo) GetByNumber(ctx context.Context, number string) (Order, error) {
	var o Order
	err := r.db.WithContext(ctx).First(&o, "number = ?", number).Error
	return o, err
}

func (r *Repo) Events(ctx context.Context, orderID string) ([]OrderEvent, error) {
	var evs []OrderEvent
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&evs, "order_id = ?", orderID).Error
	return evs, err
}

type ListByCustomerParams struct {
	CustomerID string
	Page       int
	PageSize   int
	Status     string // optional filter
}

type ListByCustomerResult struct {
	Items []Order
	Total int64
}

func (r *Repo) ListByCustomer(ctx context.Context, in ListByCustomerParams) (ListByCustomerResult, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	size := in.PageSize
	if size < 1 || size > 100 {
		size = 20
	}

	q := r.db.WithContext(ctx).Model(&Order{}).Where("customer_id = ?", in.CustomerID)
	if status := strings.TrimSpace(in.Status); status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return ListByCustomerResult{}, err
	}

	var items []Order
	if err := q.
		Order("created_at DESC").
		Limit(size).
		Offset((page - 1) * size).
		Find(&items).Error; err != nil {
		return ListByCustomerResult{}, err
	}

	return ListByCustomerResult{Items: items, Total: total}, nil
}
