package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
)

type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "CARD"
	PaymentMethodCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
	PaymentStatusPaid   PaymentStatus = "PAID"
	PaymentStatusFailed PaymentStatus = "FAILED"
)

// CanTransitionTo reports whether a payment may move from s to next.
// PAID is terminal.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusUnpaid:
		return next == PaymentStatusPaid || next == PaymentStatusFailed
	case PaymentStatusFailed:
		return next == PaymentStatusPaid
	default:
		return false
	}
}

type Order struct {
	ID                      int64           `db:"id"`
	JobID                   string          `db:"job_id"`
	UserID                  int64           `db:"user_id"`
	AddressID               int64           `db:"address_id"`
	CouponID                *int64          `db:"coupon_id"`
	DeliveryPrice           decimal.Decimal `db:"delivery_price"`
	TotalPrice              decimal.Decimal `db:"total_price"`
	TotalPriceAfterDiscount decimal.Decimal `db:"total_price_after_discount"`
	OrderStatus             OrderStatus     `db:"order_status"`
	PaymentMethod           PaymentMethod   `db:"payment_method"`
	PaymentStatus           PaymentStatus   `db:"payment_status"`
	PaymentURL              *string         `db:"payment_url"`
	Items                   []OrderItem     `db:"-"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type OrderItem struct {
	ID              int64           `db:"id"`
	OrderID         int64           `db:"order_id"`
	InventoryLineID int64           `db:"inventory_line_id"`
	ProductID       int64           `db:"product_id"`
	ProductName     string          `db:"product_name"`
	Quantity        int32           `db:"quantity"`
	UnitPrice       decimal.Decimal `db:"unit_price"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt32(i.Quantity))
}
