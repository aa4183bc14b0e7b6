// Package pricing computes order totals and coupon discounts.
package pricing

import (
	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	"github.com/shopspring/decimal"
)

const moneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// ApplyCoupon returns total after coupon, rounded to cents. The result never
// drops below zero and never exceeds total. A nil coupon leaves total as is.
func ApplyCoupon(coupon *domain.Coupon, total decimal.Decimal) decimal.Decimal {
	if coupon == nil {
		return total.Round(moneyPlaces)
	}

	var discounted decimal.Decimal
	switch coupon.Type {
	case domain.CouponTypePercentage:
		discounted = total.Mul(decimal.NewFromInt(1).Sub(coupon.Discount.Div(hundred)))
	case domain.CouponTypeFixed:
		discounted = total.Sub(coupon.Discount)
	default:
		discounted = total
	}

	discounted = decimal.Max(discounted, decimal.Zero)
	discounted = decimal.Min(discounted, total)

	return discounted.Round(moneyPlaces)
}

// OrderTotal is the sum of item subtotals plus delivery.
func OrderTotal(items []domain.OrderItem, delivery decimal.Decimal) decimal.Decimal {
	total := delivery
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}

	return total.Round(moneyPlaces)
}
