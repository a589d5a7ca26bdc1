package inventory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// mergeLines collapses duplicate product ids and returns the wanted
// quantities plus the sorted id list. Quantities below 1 count as 1.
func mergeLines(lines []Line) (map[string]int, []string) {
	want := make(map[string]int, len(lines))
	for _, ln := range lines {
		q := ln.Qty
		if q < 1 {
			q = 1
		}
		want[ln.ProductID] += q
	}

	ids := make([]string, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return want, ids
}

// shortfalls returns every product whose available quantity cannot cover the
// wanted quantity. Missing products count as zero available.
func shortfalls(want map[string]int, ids []string, avail map[string]int) []ShortItem {
	var out []ShortItem
	for _, id := range ids {
		req := want[id]
		av, ok := avail[id]
		if !ok || av < req {
			out = append(out, ShortItem{ProductID: id, Requested: req, Available: av})
		}
	}
	return out
}

func lockRecords(ctx context.Context, tx *gorm.DB, ids []string) (map[string]int, error) {
	var rows []StockRecord

	// SELECT ... FOR UPDATE in deterministic id order (deadlock avoidance)
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id IN ?", ids).
		Order("product_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	avail := make(map[string]int, len(rows))
	for _, r := range rows {
		avail[r.ProductID] = r.Available()
	}
	return avail, nil
}

// ReserveInTx places a hold on every line within the caller's transaction.
// Either every line reserves or the returned error aborts the transaction;
// no partial reservation survives.
func ReserveInTx(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if len(lines) == 0 {
		return nil
	}
	want, ids := mergeLines(lines)

	avail, err := lockRecords(ctx, tx, ids)
	if err != nil {
		return err
	}
	if short := shortfalls(want, ids, avail); len(short) > 0 {
		return &InsufficientStockError{Items: short}
	}

	now := time.Now()
	for _, id := range ids {
		req := want[id]
		// The WHERE guard is a second check under the lock: the update must
		// never drive available negative even if the read above went stale.
		res := tx.WithContext(ctx).Model(&StockRecord{}).
			Where("product_id = ? AND on_hand - reserved >= ?", id, req).
			Updates(map[string]any{
				"reserved":   gorm.Expr("reserved + ?", req),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return &InsufficientStockError{Items: []ShortItem{{ProductID: id, Requested: req, Available: 0}}}
		}
	}
	return nil
}

// ReleaseInTx returns reserved quantities to available stock. A release that
// would drive reserved negative aborts the transaction.
func ReleaseInTx(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if len(lines) == 0 {
		return nil
	}
	want, ids := mergeLines(lines)

	if _, err := lockRecords(ctx, tx, ids); err != nil {
		return err
	}

	now := time.Now()
	for _, id := range ids {
		req := want[id]
		res := tx.WithContext(ctx).Model(&StockRecord{}).
			Where("product_id = ? AND reserved >= ?", id, req).
			Updates(map[string]any{
				"reserved":   gorm.Expr("reserved - ?", req),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return &LedgerViolationError{ProductID: id, Op: "release"}
		}
	}
	return nil
}

// CommitInTx converts reservations into permanent decrements. This is the
// only place a reservation turns into a real stock reduction.
func CommitInTx(ctx context.Context, tx *gorm.DB, lines []Line) error {
	if len(lines) == 0 {
		return nil
	}
	want, ids := mergeLines(lines)

	if _, err := lockRecords(ctx, tx, ids); err != nil {
		return err
	}

	now := time.Now()
	for _, id := range ids {
		req := want[id]
		res := tx.WithContext(ctx).Model(&StockRecord{}).
			Where("product_id = ? AND reserved >= ? AND on_hand >= ?", id, req, req).
			Updates(map[string]any{
				"on_hand":    gorm.Expr("on_hand - ?", req),
				"reserved":   gorm.Expr("reserved - ?", req),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return &LedgerViolationError{ProductID: id, Op: "commit"}
		}
	}
	return nil
}

// Adjust restocks (or corrects) on-hand quantity for one product. Operator
// path; creates the record when missing.
func Adjust(ctx context.Context, db *gorm.DB, productID string, delta int) error {
	return WithTxRetry(ctx, db, 3, func(tx *gorm.DB) error {
		var rec StockRecord
		err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&rec, "product_id = ?", productID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if delta < 0 {
				return &LedgerViolationError{ProductID: productID, Op: "adjust"}
			}
			rec = StockRecord{ProductID: productID, OnHand: delta, UpdatedAt: time.Now()}
			return tx.WithContext(ctx).Create(&rec).Error
		}
		if err != nil {
			return err
		}
		if rec.OnHand+delta < rec.Reserved {
			return &LedgerViolationError{ProductID: productID, Op: "adjust"}
		}
		return tx.WithContext(ctx).Model(&StockRecord{}).
			Where("product_id = ?", productID).
			Updates(map[string]any{
				"on_hand":    gorm.Expr("on_hand + ?", delta),
				"updated_at": time.Now(),
			}).Error
	})
}

func Get(ctx context.Context, db *gorm.DB, productID string) (StockRecord, error) {
	var rec StockRecord
	err := db.WithContext(ctx).First(&rec, "product_id = ?", productID).Error
	return rec, err
}

// WithTxRetry runs fn in a transaction, retrying on MySQL deadlock or lock
// wait timeout.
func WithTxRetry(ctx context.Context, db *gorm.DB, attempts int, fn func(tx *gorm.DB) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error

	for i := 0; i < attempts; i++ {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(tx)
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if isRetryableMySQLError(err) && i < attempts-1 {
			time.Sleep(time.Duration(50*(i+1)) * time.Millisecond)
			continue
		}
		return err
	}
	return lastErr
}

func isRetryableMySQLError(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		// 1213: Deadlock found; 1205: Lock wait timeout
		return me.Number == 1213 || me.Number == 1205
	}
	return false
}
