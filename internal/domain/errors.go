package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every sentinel below wraps exactly one of them so callers
// can branch on the class with errors.Is.
var (
	ErrValidation = errors.New("validation")
	ErrConflict   = errors.New("conflict")
)

var (
	ErrInvalidPayload        = fmt.Errorf("%w: invalid payload", ErrValidation)
	ErrUserNotFound          = fmt.Errorf("%w: user not found", ErrValidation)
	ErrAddressNotFound       = fmt.Errorf("%w: address not found", ErrValidation)
	ErrCouponNotFound        = fmt.Errorf("%w: coupon not found", ErrValidation)
	ErrCouponExpired         = fmt.Errorf("%w: coupon expired", ErrValidation)
	ErrInventoryLineNotFound = fmt.Errorf("%w: inventory line not found", ErrValidation)
	ErrCartEmpty             = fmt.Errorf("%w: cart is empty", ErrValidation)
	ErrOrderNotFound         = fmt.Errorf("%w: order not found", ErrValidation)

	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", ErrConflict)
	ErrInvalidCoupon     = fmt.Errorf("%w: invalid coupon", ErrConflict)
)

type ErrorClass string

const (
	ClassValidation ErrorClass = "validation"
	ClassConflict   ErrorClass = "conflict"
	ClassTransient  ErrorClass = "transient"
)

// Classify maps err to its class. Anything outside the validation and
// conflict families is treated as transient and may be retried.
func Classify(err error) ErrorClass {
	switch {
	case errors.Is(err, ErrValidation):
		return ClassValidation
	case errors.Is(err, ErrConflict):
		return ClassConflict
	default:
		return ClassTransient
	}
}

func (c ErrorClass) Terminal() bool {
	return c != ClassTransient
}
