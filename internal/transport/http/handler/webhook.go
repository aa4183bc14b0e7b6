package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	"github.com/sakashimaa/checkout-pipeline/internal/payment"
	"github.com/sakashimaa/checkout-pipeline/internal/service"
	"github.com/sakashimaa/checkout-pipeline/pkg/mylogger"
	"go.uber.org/zap"
)

const SignatureHeader = "Stripe-Signature"

// EventParser verifies a provider callback and extracts the payment event.
type EventParser interface {
	Parse(payload []byte, signature string) (*domain.PaymentEvent, error)
}

type WebhookHandler struct {
	parser     EventParser
	reconciler service.Reconciler
	logger     *zap.Logger
}

func NewWebhookHandler(parser EventParser, reconciler service.Reconciler, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		parser:     parser,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Payment acknowledges with 2xx everything the provider should not resend.
// Only failures that a later delivery could fix get a 500.
func (h *WebhookHandler) Payment(c *fiber.Ctx) error {
	ctx := c.UserContext()

	event, err := h.parser.Parse(c.Body(), c.Get(SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalidSignature):
			mylogger.Warn(ctx, h.logger, "rejected webhook with bad signature", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid signature"})
		case errors.Is(err, payment.ErrUnhandledEvent):
			mylogger.Debug(ctx, h.logger, "ignored webhook event", zap.Error(err))
			return c.SendStatus(fiber.StatusOK)
		default:
			mylogger.Warn(ctx, h.logger, "malformed webhook event", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	if err := h.reconciler.Reconcile(ctx, event); err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			mylogger.Warn(
				ctx,
				h.logger,
				"webhook for unknown order acknowledged",
				zap.String("event_id", event.EventID),
				zap.Int64("order_id", event.OrderID),
			)

			return c.SendStatus(fiber.StatusOK)
		}

		mylogger.Error(ctx, h.logger, "webhook reconcile failed", zap.String("event_id", event.EventID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	return c.SendStatus(fiber.StatusOK)
}
