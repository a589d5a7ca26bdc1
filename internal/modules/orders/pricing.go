package orders

import (
	"strings"
	"time"
)

// ShippingPolicy: flat domestic rate, waived above the free-shipping
// threshold; a higher flat rate everywhere else. Thresholds compare against
// the subtotal only.
type ShippingPolicy struct {
	HomeCountry        string
	DomesticCents      int
	InternationalCents int
	FreeThresholdCents int
}

func (p ShippingPolicy) Fee(country string, subtotalCents int) int {
	if !strings.EqualFold(strings.TrimSpace(country), p.HomeCountry) {
		return p.InternationalCents
	}
	if p.FreeThresholdCents > 0 && subtotalCents >= p.FreeThresholdCents {
		return 0
	}
	return p.DomesticCents
}

// DiscountFor computes the coupon's discount against the subtotal, capped at
// the subtotal itself. Inactive or expired coupons are rejected.
func (c Coupon) DiscountFor(subtotalCents int, now time.Time) (int, error) {
	if !c.Active {
		return 0, ErrCouponInvalid
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return 0, ErrCouponInvalid
	}

	d := c.AmountOffCents
	if c.PercentOff > 0 {
		d += subtotalCents * c.PercentOff / 100
	}
	if d < 0 {
		d = 0
	}
	if d > subtotalCents {
		d = subtotalCents
	}
	return d, nil
}

type Totals struct {
	SubtotalCents int
	ShippingCents int
	DiscountCents int
	FeeCents      int
	TotalCents    int
}

// ComputeTotals enforces the order amount invariant:
// total = subtotal + shipping - discount + fee, never negative.
func ComputeTotals(subtotal, shipping, discount, fee int) (Totals, error) {
	t := Totals{
		SubtotalCents: subtotal,
		ShippingCents: shipping,
		DiscountCents: discount,
		FeeCents:      fee,
		TotalCents:    subtotal + shipping - discount + fee,
	}
	if t.TotalCents < 0 {
		return Totals{}, ErrNegativeTotal
	}
	return t, nil
}
