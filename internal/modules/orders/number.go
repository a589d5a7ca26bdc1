package orders

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const numberPrefix = "MN"

// FormatNumber builds the human-readable, date-sequenced order number,
// e.g. MN-20260830-0042.
func FormatNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", numberPrefix, day.Format("20060102"), seq)
}

// nextNumberInTx allocates the next sequence for the day. The unique index
// on orders.number catches the rare concurrent collision; callers retry the
// creating transaction on duplicate key.
func nextNumberInTx(ctx context.Context, tx *gorm.DB, now time.Time) (string, error) {
	var count int64
	prefix := fmt.Sprintf("%s-%s-%%", numberPrefix, now.Format("20060102"))
	if err := tx.WithContext(ctx).Model(&Order{}).
		Unscoped().
		Where("number LIKE ?", prefix).
		Count(&count).Error; err != nil {
		return "", err
	}
	return FormatNumber(now, int(count)+1), nil
}
