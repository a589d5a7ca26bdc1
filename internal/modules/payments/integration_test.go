package payments

// Database-backed workflow tests. They need a MySQL instance because the
// services rely on row locks and driver error codes; set APP_TEST_DB_DSN to
// run them, otherwise they skip.

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"marchenet.tg/app/internal/modules/inventory"
	"marchenet.tg/app/internal/modules/orders"
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
	require.NoError(t, db.AutoMigrate(
		&orders.Order{}, &orders.OrderLine{}, &orders.OrderEvent{},
		&orders.Product{}, &orders.Coupon{},
		&inventory.StockRecord{},
		&Payment{}, &ProviderEvent{},
	))
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, status, payStatus string, totalCents int) orders.Order {
	t.Helper()
	now := time.Now()
	o := orders.Order{
		ID:                  uuid.NewString(),
		Number:              "TST-" + uuid.NewString()[:18],
		CustomerID:          uuid.NewString(),
		Status:              status,
		PaymentStatus:       payStatus,
		PaymentMethod:       "tmoney",
		SubtotalCents:       totalCents,
		TotalCents:          totalCents,
		Currency:            "XOF",
		DeliveryAddressJSON: datatypes.JSON(`{}`),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	require.NoError(t, db.Create(&o).Error)
	return o
}

func seedPayment(t *testing.T, db *gorm.DB, orderID, status string, amountCents int) Payment {
	t.Helper()
	now := time.Now()
	ref := "TXN-" + uuid.NewString()
	p := Payment{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		Method:      "tmoney",
		Reference:   "PAY-" + uuid.NewString(),
		Status:      status,
		AmountCents: amountCents,
		Currency:    "XOF",
		ProviderRef: &ref,
		InitiatedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func successEvent(p Payment) WebhookEvent {
	return WebhookEvent{
		EventID:     "evt-" + uuid.NewString(),
		Type:        EventPaymentSucceeded,
		ProviderRef: *p.ProviderRef,
		AmountCents: p.AmountCents,
		Currency:    p.Currency,
	}
}

func reloadOrder(t *testing.T, db *gorm.DB, id string) orders.Order {
	t.Helper()
	var o orders.Order
	require.NoError(t, db.First(&o, "id = ?", id).Error)
	return o
}

func reloadPayment(t *testing.T, db *gorm.DB, id string) Payment {
	t.Helper()
	var p Payment
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	return p
}

func refundsOf(t *testing.T, db *gorm.DB, paymentID string) []Payment {
	t.Helper()
	var rows []Payment
	require.NoError(t, db.Find(&rows, "refund_of_id = ?", paymentID).Error)
	return rows
}

func TestWebhookApplyReplaySingleEffect(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	ws := NewWebhookService(db, nil)

	o := seedOrder(t, db, orders.StatusPending, orders.PaymentPending, 5000)
	p := seedPayment(t, db, o.ID, StatusProcessing, 5000)

	ev := successEvent(p)
	require.NoError(t, ws.Apply(ctx, "tmoney", ev, []byte(`{}`)))

	// same event id again: deduped on unique(provider, event_id)
	require.NoError(t, ws.Apply(ctx, "tmoney", ev, []byte(`{}`)))
	// fresh event id for the same settlement: absorbed by the terminal guard
	require.NoError(t, ws.Apply(ctx, "tmoney", successEvent(p), []byte(`{}`)))

	got := reloadPayment(t, db, p.ID)
	assert.Equal(t, StatusCompleted, got.Status)

	ord := reloadOrder(t, db, o.ID)
	assert.Equal(t, orders.StatusPaid, ord.Status)
	assert.Equal(t, orders.PaymentPaid, ord.PaymentStatus)
	require.NotNil(t, ord.PaidAt)
	assert.Empty(t, refundsOf(t, db, p.ID))
}

func TestWebhookSettlementAfterCancellationIsRefunded(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	ws := NewWebhookService(db, nil)

	o := seedOrder(t, db, orders.StatusCancelled, orders.PaymentPending, 7500)
	p := seedPayment(t, db, o.ID, StatusProcessing, 7500)

	require.NoError(t, ws.Apply(ctx, "tmoney", successEvent(p), []byte(`{}`)))

	got := reloadPayment(t, db, p.ID)
	assert.Equal(t, StatusRefunded, got.Status)

	refunds := refundsOf(t, db, p.ID)
	require.Len(t, refunds, 1)
	assert.Equal(t, -7500, refunds[0].AmountCents)
	assert.Equal(t, StatusCompleted, refunds[0].Status)

	ord := reloadOrder(t, db, o.ID)
	assert.Equal(t, orders.StatusCancelled, ord.Status)
	assert.Equal(t, orders.PaymentRefunded, ord.PaymentStatus)
	assert.Equal(t, 7500, ord.RefundedCents)

	// A late retry with a fresh event id must resolve to the original
	// attempt, not the refund row that shares its provider_ref, and must
	// not refund twice.
	require.NoError(t, ws.Apply(ctx, "tmoney", successEvent(p), []byte(`{}`)))
	assert.Len(t, refundsOf(t, db, p.ID), 1)
}

func TestWebhookSettlementOnReturnedOrderIsRefunded(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	ws := NewWebhookService(db, nil)

	o := seedOrder(t, db, orders.StatusReturned, orders.PaymentPending, 2000)
	p := seedPayment(t, db, o.ID, StatusProcessing, 2000)

	require.NoError(t, ws.Apply(ctx, "tmoney", successEvent(p), []byte(`{}`)))

	assert.Equal(t, StatusRefunded, reloadPayment(t, db, p.ID).Status)
	refunds := refundsOf(t, db, p.ID)
	require.Len(t, refunds, 1)
	assert.Equal(t, -2000, refunds[0].AmountCents)
	assert.Equal(t, orders.StatusReturned, reloadOrder(t, db, o.ID).Status)
}

func TestWebhookRefundsDuplicateSettlement(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	ws := NewWebhookService(db, nil)

	o := seedOrder(t, db, orders.StatusPending, orders.PaymentPending, 4000)
	first := seedPayment(t, db, o.ID, StatusProcessing, 4000)
	second := seedPayment(t, db, o.ID, StatusProcessing, 4000)

	require.NoError(t, ws.Apply(ctx, "tmoney", successEvent(first), []byte(`{}`)))
	require.NoError(t, ws.Apply(ctx, "tmoney", successEvent(second), []byte(`{}`)))

	// first settlement stands
	ord := reloadOrder(t, db, o.ID)
	assert.Equal(t, orders.StatusPaid, ord.Status)
	assert.Equal(t, orders.PaymentPaid, ord.PaymentStatus)
	assert.Equal(t, StatusCompleted, reloadPayment(t, db, first.ID).Status)
	assert.Empty(t, refundsOf(t, db, first.ID))

	// second settlement is returned in full
	assert.Equal(t, StatusRefunded, reloadPayment(t, db, second.ID).Status)
	refunds := refundsOf(t, db, second.ID)
	require.Len(t, refunds, 1)
	assert.Equal(t, -4000, refunds[0].AmountCents)

	// a late retry for the settlement that stands finds no excess and must
	// not touch it
	require.NoError(t, ws.Apply(ctx, "tmoney", successEvent(first), []byte(`{}`)))
	assert.Equal(t, StatusCompleted, reloadPayment(t, db, first.ID).Status)
	assert.Empty(t, refundsOf(t, db, first.ID))
	assert.Equal(t, orders.PaymentPaid, reloadOrder(t, db, o.ID).PaymentStatus)
}

func TestRefundRemainderBounds(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	rs := NewRefundService(db, nil)

	o := seedOrder(t, db, orders.StatusPaid, orders.PaymentPaid, 6000)
	p := seedPayment(t, db, o.ID, StatusCompleted, 6000)

	_, err := rs.Refund(ctx, RefundInput{PaymentID: p.ID, AmountCents: 6500, Reason: "too much", Actor: "op-1"})
	assert.ErrorIs(t, err, ErrRefundExceedsAmount)

	out, err := rs.Refund(ctx, RefundInput{PaymentID: p.ID, AmountCents: 2500, Reason: "damaged item", Actor: "op-1"})
	require.NoError(t, err)
	assert.Equal(t, 2500, out.AmountCents)
	assert.Equal(t, StatusPartiallyRefunded, out.PaymentStatus)

	_, err = rs.Refund(ctx, RefundInput{PaymentID: p.ID, AmountCents: 4000, Reason: "again", Actor: "op-1"})
	assert.ErrorIs(t, err, ErrRefundExceedsAmount)

	// zero amount means the full remainder
	out, err = rs.Refund(ctx, RefundInput{PaymentID: p.ID, Reason: "order void", Actor: "op-1"})
	require.NoError(t, err)
	assert.Equal(t, 3500, out.AmountCents)
	assert.Equal(t, StatusRefunded, out.PaymentStatus)

	ord := reloadOrder(t, db, o.ID)
	assert.Equal(t, orders.PaymentRefunded, ord.PaymentStatus)
	assert.Equal(t, 6000, ord.RefundedCents)

	_, err = rs.Refund(ctx, RefundInput{PaymentID: p.ID, Reason: "nothing left", Actor: "op-1"})
	assert.ErrorIs(t, err, ErrNotRefundable)
}

func TestInitiateIdempotentReplayAfterSettlement(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	registry := NewRegistry(fakeProvider{method: "tmoney", countries: []string{"TG"}})
	svc := NewService(db, registry, nil)

	o := seedOrder(t, db, orders.StatusPaid, orders.PaymentPaid, 3000)
	key := "idem-" + uuid.NewString()
	p := seedPayment(t, db, o.ID, StatusCompleted, 3000)
	require.NoError(t, db.Model(&Payment{}).Where("id = ?", p.ID).
		Update("idempotency_key", key).Error)

	// replaying the key must return the stored attempt, not reject the
	// settled order
	out, err := svc.Initiate(ctx, InitiateInput{OrderID: o.ID, IdempotencyKey: key})
	require.NoError(t, err)
	assert.True(t, out.Idempotent)
	assert.Equal(t, p.ID, out.PaymentID)
	assert.Equal(t, StatusCompleted, out.Status)

	// without the key the payable gate still holds
	_, err = svc.Initiate(ctx, InitiateInput{OrderID: o.ID, Method: "tmoney"})
	assert.ErrorIs(t, err, ErrOrderNotPayable)
}

func TestCancelPaidOrderRefundsAndReleasesStock(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	registry := NewRegistry(fakeProvider{method: "cod", countries: []string{"TG"}})
	gateway := NewGateway(registry, NewService(db, registry, nil))
	osvc := orders.NewService(db, nil, gateway, orders.ShippingPolicy{}, "XOF")

	productID := uuid.NewString()
	require.NoError(t, db.Create(&orders.Product{
		ID: productID, StoreID: uuid.NewString(), Name: "Sac de riz 25kg",
		PriceCents: 9000, Currency: "XOF", Active: true,
	}).Error)
	require.NoError(t, db.Create(&inventory.StockRecord{
		ProductID: productID, OnHand: 3, UpdatedAt: time.Now(),
	}).Error)

	res, err := osvc.CreateOrder(ctx, orders.CreateOrderInput{
		CustomerID:      uuid.NewString(),
		Lines:           []orders.CreateOrderLine{{ProductID: productID, Qty: 2}},
		DeliveryAddress: orders.Address{Country: "TG", City: "Lomé"},
		PaymentMethod:   "cod",
	})
	require.NoError(t, err)

	rec, err := inventory.Get(ctx, db, productID)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Reserved)

	// settle out of band, then mark paid
	p := seedPayment(t, db, res.Order.ID, StatusCompleted, res.Order.TotalCents)
	require.NoError(t, db.Model(&Payment{}).Where("id = ?", p.ID).
		Update("method", "cod").Error)
	require.NoError(t, osvc.UpdateStatus(ctx, orders.UpdateStatusInput{
		OrderID: res.Order.ID, ToStatus: orders.StatusPaid, Actor: "op-1",
	}))

	require.NoError(t, osvc.CancelOrder(ctx, orders.CancelOrderInput{
		OrderID: res.Order.ID, Actor: "op-1", Reason: "customer request",
	}))

	ord := reloadOrder(t, db, res.Order.ID)
	assert.Equal(t, orders.StatusCancelled, ord.Status)
	assert.Equal(t, orders.PaymentRefunded, ord.PaymentStatus)
	assert.Equal(t, ord.TotalCents, ord.RefundedCents)

	refunds := refundsOf(t, db, p.ID)
	require.Len(t, refunds, 1)
	assert.Equal(t, -ord.TotalCents, refunds[0].AmountCents)

	rec, err = inventory.Get(ctx, db, productID)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Reserved)
	assert.Equal(t, 3, rec.OnHand)
}
