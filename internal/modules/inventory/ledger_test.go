package inventory

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeLines(t *testing.T) {
	t.Run("collapses duplicates and sorts ids", func(t *testing.T) {
		want, ids := mergeLines([]Line{
			{ProductID: "b", Qty: 2},
			{ProductID: "a", Qty: 1},
			{ProductID: "b", Qty: 3},
		})
		assert.Equal(t, []string{"a", "b"}, ids)
		assert.Equal(t, map[string]int{"a": 1, "b": 5}, want)
	})

	t.Run("quantities below one count as one", func(t *testing.T) {
		want, _ := mergeLines([]Line{
			{ProductID: "a", Qty: 0},
			{ProductID: "b", Qty: -3},
		})
		assert.Equal(t, map[string]int{"a": 1, "b": 1}, want)
	})

	t.Run("empty input", func(t *testing.T) {
		want, ids := mergeLines(nil)
		assert.Empty(t, want)
		assert.Empty(t, ids)
	})
}

func TestShortfalls(t *testing.T) {
	want := map[string]int{"a": 2, "b": 5, "c": 1}
	ids := []string{"a", "b", "c"}

	t.Run("all covered", func(t *testing.T) {
		avail := map[string]int{"a": 2, "b": 10, "c": 1}
		assert.Empty(t, shortfalls(want, ids, avail))
	})

	t.Run("reports every short product", func(t *testing.T) {
		avail := map[string]int{"a": 1, "b": 10}
		short := shortfalls(want, ids, avail)
		require.Len(t, short, 2)
		assert.Equal(t, ShortItem{ProductID: "a", Requested: 2, Available: 1}, short[0])
		// product with no stock record at all counts as zero available
		assert.Equal(t, ShortItem{ProductID: "c", Requested: 1, Available: 0}, short[1])
	})
}

func TestStockRecordAvailable(t *testing.T) {
	r := StockRecord{OnHand: 10, Reserved: 3}
	assert.Equal(t, 7, r.Available())
}

func TestInsufficientStockErrorMessage(t *testing.T) {
	err := &InsufficientStockError{Items: []ShortItem{{ProductID: "p1", Requested: 3, Available: 1}}}
	assert.Equal(t, "insufficient stock: product=p1 requested=3 available=1", err.Error())

	empty := &InsufficientStockError{}
	assert.Equal(t, "insufficient stock", empty.Error())
}

func TestIsRetryableMySQLError(t *testing.T) {
	assert.True(t, isRetryableMySQLError(&mysql.MySQLError{Number: 1213}))
	assert.True(t, isRetryableMySQLError(&mysql.MySQLError{Number: 1205}))
	assert.False(t, isRetryableMySQLError(&mysql.MySQLError{Number: 1062}))
	assert.False(t, isRetryableMySQLError(errors.New("not a mysql error")))
	assert.False(t, isRetryableMySQLError(nil))
}
