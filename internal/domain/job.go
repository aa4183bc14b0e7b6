package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CheckoutRequest is what a caller submits to intake. Exactly one of
// FromCart or Product must be set.
type CheckoutRequest struct {
	UserID        int64                 `json:"userId" validate:"required,gt=0"`
	AddressID     int64                 `json:"addressId" validate:"required,gt=0"`
	PaymentMethod PaymentMethod         `json:"paymentMethod" validate:"required,oneof=CARD CASH_ON_DELIVERY"`
	DeliveryPrice decimal.Decimal       `json:"deliveryPrice"`
	CouponID      *int64                `json:"couponId,omitempty" validate:"omitempty,gt=0"`
	FromCart      bool                  `json:"fromCart"`
	Product       *SingleProductRequest `json:"product,omitempty"`
}

type SingleProductRequest struct {
	DetailsID int64 `json:"detailsId" validate:"required,gt=0"`
	Quantity  int32 `json:"quantity" validate:"required,gt=0"`
}

func (r *CheckoutRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	if r.FromCart == (r.Product != nil) {
		return fmt.Errorf("%w: exactly one of fromCart or product must be set", ErrInvalidPayload)
	}

	if r.DeliveryPrice.IsNegative() {
		return fmt.Errorf("%w: deliveryPrice must not be negative", ErrInvalidPayload)
	}

	return nil
}

// Job is the queued unit of work. It carries everything the worker needs to
// build an order, and is delivered at least once.
type Job struct {
	JobID         string          `json:"jobId" validate:"required,uuid"`
	UserID        int64           `json:"userId" validate:"required,gt=0"`
	AddressID     int64           `json:"addressId" validate:"required,gt=0"`
	PaymentMethod PaymentMethod   `json:"paymentMethod" validate:"required,oneof=CARD CASH_ON_DELIVERY"`
	DeliveryPrice decimal.Decimal `json:"deliveryPrice"`
	CouponID      *int64          `json:"couponId,omitempty" validate:"omitempty,gt=0"`
	CartItems     []JobCartItem   `json:"cartItems,omitempty" validate:"omitempty,dive"`
	SingleProduct *JobProduct     `json:"singleProduct,omitempty"`
	EnqueuedAt    time.Time       `json:"enqueuedAt"`
}

type JobCartItem struct {
	DetailsID int64           `json:"detailsId" validate:"required,gt=0"`
	Quantity  int32           `json:"quantity" validate:"required,gt=0"`
	ProductID int64           `json:"productId" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type JobProduct struct {
	DetailsID    int64           `json:"detailsId" validate:"required,gt=0"`
	Quantity     int32           `json:"quantity" validate:"required,gt=0"`
	ProductName  string          `json:"productName" validate:"required"`
	ProductPrice decimal.Decimal `json:"productPrice"`
}

// LineItem is one inventory line to reserve.
type LineItem struct {
	InventoryLineID int64
	Quantity        int32
}

func (j *Job) Validate() error {
	if err := validate.Struct(j); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	if (len(j.CartItems) > 0) == (j.SingleProduct != nil) {
		return fmt.Errorf("%w: exactly one of cartItems or singleProduct must be set", ErrInvalidPayload)
	}

	if j.DeliveryPrice.IsNegative() {
		return fmt.Errorf("%w: deliveryPrice must not be negative", ErrInvalidPayload)
	}

	return nil
}

func (j *Job) FromCart() bool {
	return len(j.CartItems) > 0
}

// LineItems returns the lines to reserve in ascending inventory line id.
// Repeated lines are merged so each row is locked once.
func (j *Job) LineItems() []LineItem {
	byLine := make(map[int64]int32)

	if j.SingleProduct != nil {
		byLine[j.SingleProduct.DetailsID] += j.SingleProduct.Quantity
	}
	for _, item := range j.CartItems {
		byLine[item.DetailsID] += item.Quantity
	}

	items := make([]LineItem, 0, len(byLine))
	for id, qty := range byLine {
		items = append(items, LineItem{InventoryLineID: id, Quantity: qty})
	}

	sort.Slice(items, func(a, b int) bool {
		return items[a].InventoryLineID < items[b].InventoryLineID
	})

	return items
}

type JobState string

const (
	JobStateQueued    JobState = "QUEUED"
	JobStateCompleted JobState = "COMPLETED"
	JobStateFailed    JobState = "FAILED"
)

// JobStatus is what a caller sees when polling a job.
type JobStatus struct {
	JobID      string     `json:"jobId"`
	State      JobState   `json:"state"`
	OrderID    *int64     `json:"orderId,omitempty"`
	PaymentURL *string    `json:"paymentUrl,omitempty"`
	ErrorClass ErrorClass `json:"errorClass,omitempty"`
	Error      string     `json:"error,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
