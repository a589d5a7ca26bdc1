package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testShipping = ShippingPolicy{
	HomeCountry:        "TG",
	DomesticCents:      1500,
	InternationalCents: 6000,
	FreeThresholdCents: 50000,
}

func TestShippingFee(t *testing.T) {
	t.Run("domestic flat rate", func(t *testing.T) {
		assert.Equal(t, 1500, testShipping.Fee("TG", 10000))
	})

	t.Run("domestic free above threshold", func(t *testing.T) {
		assert.Equal(t, 0, testShipping.Fee("TG", 50000))
		assert.Equal(t, 0, testShipping.Fee("TG", 120000))
	})

	t.Run("country match is case insensitive", func(t *testing.T) {
		assert.Equal(t, 1500, testShipping.Fee("tg", 10000))
		assert.Equal(t, 1500, testShipping.Fee(" TG ", 10000))
	})

	t.Run("international flat rate regardless of subtotal", func(t *testing.T) {
		assert.Equal(t, 6000, testShipping.Fee("BJ", 10000))
		assert.Equal(t, 6000, testShipping.Fee("FR", 500000))
	})

	t.Run("zero threshold disables free shipping", func(t *testing.T) {
		p := testShipping
		p.FreeThresholdCents = 0
		assert.Equal(t, 1500, p.Fee("TG", 1000000))
	})
}

func TestCouponDiscountFor(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	t.Run("percent off", func(t *testing.T) {
		c := Coupon{Code: "TEN", PercentOff: 10, Active: true}
		d, err := c.DiscountFor(20000, now)
		require.NoError(t, err)
		assert.Equal(t, 2000, d)
	})

	t.Run("fixed amount off", func(t *testing.T) {
		c := Coupon{Code: "FLAT", AmountOffCents: 500, Active: true}
		d, err := c.DiscountFor(20000, now)
		require.NoError(t, err)
		assert.Equal(t, 500, d)
	})

	t.Run("percent and amount combine", func(t *testing.T) {
		c := Coupon{Code: "BOTH", PercentOff: 10, AmountOffCents: 500, Active: true}
		d, err := c.DiscountFor(20000, now)
		require.NoError(t, err)
		assert.Equal(t, 2500, d)
	})

	t.Run("capped at subtotal", func(t *testing.T) {
		c := Coupon{Code: "BIG", AmountOffCents: 99999, Active: true}
		d, err := c.DiscountFor(1000, now)
		require.NoError(t, err)
		assert.Equal(t, 1000, d)
	})

	t.Run("inactive rejected", func(t *testing.T) {
		c := Coupon{Code: "OFF", PercentOff: 10}
		_, err := c.DiscountFor(1000, now)
		assert.ErrorIs(t, err, ErrCouponInvalid)
	})

	t.Run("expired rejected", func(t *testing.T) {
		past := now.Add(-time.Hour)
		c := Coupon{Code: "OLD", PercentOff: 10, Active: true, ExpiresAt: &past}
		_, err := c.DiscountFor(1000, now)
		assert.ErrorIs(t, err, ErrCouponInvalid)
	})

	t.Run("not yet expired accepted", func(t *testing.T) {
		future := now.Add(time.Hour)
		c := Coupon{Code: "OK", PercentOff: 10, Active: true, ExpiresAt: &future}
		d, err := c.DiscountFor(1000, now)
		require.NoError(t, err)
		assert.Equal(t, 100, d)
	})
}

func TestComputeTotals(t *testing.T) {
	t.Run("sums components", func(t *testing.T) {
		got, err := ComputeTotals(20000, 1500, 2000, 300)
		require.NoError(t, err)
		assert.Equal(t, 19800, got.TotalCents)
		assert.Equal(t, 20000, got.SubtotalCents)
		assert.Equal(t, 1500, got.ShippingCents)
		assert.Equal(t, 2000, got.DiscountCents)
		assert.Equal(t, 300, got.FeeCents)
	})

	t.Run("zero total is valid", func(t *testing.T) {
		got, err := ComputeTotals(1000, 0, 1000, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, got.TotalCents)
	})

	t.Run("negative total rejected", func(t *testing.T) {
		_, err := ComputeTotals(1000, 0, 2000, 0)
		assert.ErrorIs(t, err, ErrNegativeTotal)
	})
}
