package inventory

// Database-backed ledger tests; they need MySQL for row locking. Set
// APP_TEST_DB_DSN to run them, otherwise they skip.

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	sqlmysql "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("APP_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("set APP_TEST_DB_DSN to run database tests")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&StockRecord{}))
	return db
}

func TestConcurrentReserveLastUnit(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	productID := uuid.NewString()
	require.NoError(t, db.Create(&StockRecord{
		ProductID: productID, OnHand: 1, UpdatedAt: time.Now(),
	}).Error)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = WithTxRetry(ctx, db, 3, func(tx *gorm.DB) error {
				return ReserveInTx(ctx, tx, []Line{{ProductID: productID, Qty: 1}})
			})
		}(i)
	}
	wg.Wait()

	var won, short int
	for _, err := range errs {
		var ise *InsufficientStockError
		switch {
		case err == nil:
			won++
		case errors.As(err, &ise):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, short)

	rec, err := Get(ctx, db, productID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.OnHand)
	assert.Equal(t, 1, rec.Reserved)
	assert.Equal(t, 0, rec.Available())
}

func TestWithTxRetryRecoversFromDeadlock(t *testing.T) {
	db := testDB(t)

	calls := 0
	err := WithTxRetry(context.Background(), db, 3, func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return &sqlmysql.MySQLError{Number: 1213}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = WithTxRetry(context.Background(), db, 2, func(tx *gorm.DB) error {
		calls++
		return &sqlmysql.MySQLError{Number: 1205}
	})
	var me *sqlmysql.MySQLError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 2, calls)
}

func TestReserveReleaseCommitRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	productID := uuid.NewString()
	require.NoError(t, db.Create(&StockRecord{
		ProductID: productID, OnHand: 5, UpdatedAt: time.Now(),
	}).Error)

	lines := []Line{{ProductID: productID, Qty: 3}}
	require.NoError(t, WithTxRetry(ctx, db, 3, func(tx *gorm.DB) error {
		return ReserveInTx(ctx, tx, lines)
	}))

	require.NoError(t, WithTxRetry(ctx, db, 3, func(tx *gorm.DB) error {
		return ReleaseInTx(ctx, tx, []Line{{ProductID: productID, Qty: 1}})
	}))

	require.NoError(t, WithTxRetry(ctx, db, 3, func(tx *gorm.DB) error {
		return CommitInTx(ctx, tx, []Line{{ProductID: productID, Qty: 2}})
	}))

	rec, err := Get(ctx, db, productID)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.OnHand)
	assert.Equal(t, 0, rec.Reserved)

	// releasing more than is held aborts
	err = WithTxRetry(ctx, db, 3, func(tx *gorm.DB) error {
		return ReleaseInTx(ctx, tx, []Line{{ProductID: productID, Qty: 1}})
	})
	var lve *LedgerViolationError
	assert.ErrorAs(t, err, &lve)
}
