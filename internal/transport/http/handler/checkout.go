package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	"github.com/sakashimaa/checkout-pipeline/internal/jobstatus"
	"github.com/sakashimaa/checkout-pipeline/internal/service"
	"github.com/sakashimaa/checkout-pipeline/pkg/mylogger"
	"github.com/sakashimaa/checkout-pipeline/pkg/utils"
	"go.uber.org/zap"
)

// UserIDHeader carries the caller's id when it is not in the body. It is set
// by the upstream gateway after authentication.
const UserIDHeader = "X-User-ID"

type CheckoutHandler struct {
	intake   service.IntakeService
	statuses jobstatus.Store
	logger   *zap.Logger
}

func NewCheckoutHandler(intake service.IntakeService, statuses jobstatus.Store, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		intake:   intake,
		statuses: statuses,
		logger:   logger,
	}
}

func (h *CheckoutHandler) Submit(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req domain.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		mylogger.Warn(ctx, h.logger, "failed to parse checkout body", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "error parsing body",
		})
	}

	if req.UserID == 0 {
		if header := c.Get(UserIDHeader); header != "" {
			userID, err := strconv.ParseInt(header, 10, 64)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "invalid " + UserIDHeader + " header",
				})
			}
			req.UserID = userID
		}
	}

	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "invalid checkout request",
			"fields": utils.FormatValidationError(err),
		})
	}

	accepted, err := h.intake.Submit(ctx, req)
	if err != nil {
		status := statusFor(err)

		mylogger.Warn(
			ctx,
			h.logger,
			"checkout submit failed",
			zap.Int("http_code", status),
			zap.Error(err),
		)

		return c.Status(status).JSON(errorBody(status, err))
	}

	return c.Status(fiber.StatusAccepted).JSON(accepted)
}

func (h *CheckoutHandler) GetJob(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if _, err := uuid.Parse(jobID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid job id",
		})
	}

	status, err := h.statuses.Get(c.UserContext(), jobID)
	if err != nil {
		code := statusFor(err)
		if !errors.Is(err, jobstatus.ErrJobNotFound) && !errors.Is(err, context.Canceled) {
			mylogger.Error(c.UserContext(), h.logger, "job status lookup failed", zap.String("job_id", jobID), zap.Error(err))
		}

		return c.Status(code).JSON(errorBody(code, err))
	}

	return c.JSON(status)
}
