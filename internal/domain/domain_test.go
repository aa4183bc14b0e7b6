package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"insufficient stock", ErrInsufficientStock, ClassConflict},
		{"wrapped invalid coupon", fmt.Errorf("reserve: %w", ErrInvalidCoupon), ClassConflict},
		{"user not found", ErrUserNotFound, ClassValidation},
		{"cart empty", ErrCartEmpty, ClassValidation},
		{"unknown", errors.New("connection reset"), ClassTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Classify(tt.err))
		})
	}

	require.True(t, ClassConflict.Terminal())
	require.False(t, ClassTransient.Terminal())
}

func TestPaymentStatus_CanTransitionTo(t *testing.T) {
	require.True(t, PaymentStatusUnpaid.CanTransitionTo(PaymentStatusPaid))
	require.True(t, PaymentStatusUnpaid.CanTransitionTo(PaymentStatusFailed))
	require.True(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusPaid))

	require.False(t, PaymentStatusPaid.CanTransitionTo(PaymentStatusFailed))
	require.False(t, PaymentStatusPaid.CanTransitionTo(PaymentStatusPaid))
	require.False(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusFailed))
}

func TestCoupon_Usable(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	active := Coupon{IsActive: true, ExpiryDate: now.Add(time.Hour)}
	require.True(t, active.Usable(now))

	expired := Coupon{IsActive: true, ExpiryDate: now.Add(-time.Second)}
	require.False(t, expired.Usable(now))

	disabled := Coupon{IsActive: false, ExpiryDate: now.Add(time.Hour)}
	require.False(t, disabled.Usable(now))
}

func validJob() Job {
	return Job{
		JobID:         "0b8f1c2e-3a5d-4c6e-9f10-1a2b3c4d5e6f",
		UserID:        1,
		AddressID:     2,
		PaymentMethod: PaymentMethodCashOnDelivery,
		DeliveryPrice: decimal.RequireFromString("5.00"),
		CartItems: []JobCartItem{
			{DetailsID: 9, Quantity: 1, ProductID: 3, UnitPrice: decimal.RequireFromString("10.00")},
			{DetailsID: 4, Quantity: 2, ProductID: 3, UnitPrice: decimal.RequireFromString("10.00")},
			{DetailsID: 9, Quantity: 2, ProductID: 3, UnitPrice: decimal.RequireFromString("10.00")},
		},
	}
}

func TestJob_Validate(t *testing.T) {
	job := validJob()
	require.NoError(t, job.Validate())

	both := validJob()
	both.SingleProduct = &JobProduct{DetailsID: 1, Quantity: 1, ProductName: "Tee"}
	require.ErrorIs(t, both.Validate(), ErrInvalidPayload)

	neither := validJob()
	neither.CartItems = nil
	require.ErrorIs(t, neither.Validate(), ErrInvalidPayload)

	badMethod := validJob()
	badMethod.PaymentMethod = "BARTER"
	err := badMethod.Validate()
	require.ErrorIs(t, err, ErrInvalidPayload)

	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)
}

func TestJob_LineItemsSortedAndMerged(t *testing.T) {
	job := validJob()

	require.Equal(t, []LineItem{
		{InventoryLineID: 4, Quantity: 2},
		{InventoryLineID: 9, Quantity: 3},
	}, job.LineItems())
}

func TestCheckoutRequest_Validate(t *testing.T) {
	req := CheckoutRequest{
		UserID:        1,
		AddressID:     1,
		PaymentMethod: PaymentMethodCard,
		FromCart:      true,
	}
	require.NoError(t, req.Validate())

	req.Product = &SingleProductRequest{DetailsID: 1, Quantity: 1}
	require.ErrorIs(t, req.Validate(), ErrInvalidPayload)

	req.FromCart = false
	req.DeliveryPrice = decimal.NewFromInt(-1)
	require.ErrorIs(t, req.Validate(), ErrInvalidPayload)
}
