package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	"github.com/sakashimaa/checkout-pipeline/internal/jobstatus"
)

// statusFor maps a service error to the HTTP status returned to the caller.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrAddressNotFound),
		errors.Is(err, domain.ErrCouponNotFound),
		errors.Is(err, domain.ErrInventoryLineNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, jobstatus.ErrJobNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func errorBody(status int, err error) fiber.Map {
	if status == fiber.StatusInternalServerError {
		return fiber.Map{"error": "internal error"}
	}

	return fiber.Map{"error": err.Error()}
}
