package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        int64   `db:"id"`
	Email     string  `db:"email"`
	PushToken *string `db:"push_token"`
}

type Address struct {
	ID     int64 `db:"id"`
	UserID int64 `db:"user_id"`
}

type CouponType string

const (
	CouponTypePercentage CouponType = "PERCENTAGE"
	CouponTypeFixed      CouponType = "FIXED"
)

type Coupon struct {
	ID         int64           `db:"id"`
	Code       string          `db:"code"`
	Type       CouponType      `db:"type"`
	Discount   decimal.Decimal `db:"discount"`
	ExpiryDate time.Time       `db:"expiry_date"`
	IsActive   bool            `db:"is_active"`
}

// Expired reports whether the coupon's expiry date is not after now.
func (c *Coupon) Expired(now time.Time) bool {
	return !c.ExpiryDate.After(now)
}

// Usable reports whether the coupon may be applied at now.
func (c *Coupon) Usable(now time.Time) bool {
	return c.IsActive && !c.Expired(now)
}

type InventoryLine struct {
	ID          int64           `db:"id"`
	ProductID   int64           `db:"product_id"`
	ProductName string          `db:"product_name"`
	Price       decimal.Decimal `db:"price"`
	Color       *string         `db:"color"`
	Size        *string         `db:"size"`
	Quantity    int32           `db:"quantity"`
}

// Reservation is the outcome of decrementing one inventory line.
type Reservation struct {
	InventoryLineID int64
	ProductID       int64
	ProductName     string
	UnitPrice       decimal.Decimal
	Remaining       int32
}

type Cart struct {
	ID         int64           `db:"id"`
	UserID     int64           `db:"user_id"`
	TotalPrice decimal.Decimal `db:"total_price"`
	Items      []CartItem      `db:"-"`
}

type CartItem struct {
	InventoryLineID int64           `db:"inventory_line_id"`
	ProductID       int64           `db:"product_id"`
	Quantity        int32           `db:"quantity"`
	UnitPrice       decimal.Decimal `db:"unit_price"`
}
