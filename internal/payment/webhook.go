package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUnhandledEvent marks a verified event this service does not act on.
	ErrUnhandledEvent = errors.New("unhandled webhook event")
)

type StripeVerifier struct {
	secret string
}

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

// Parse verifies the signature header against payload and maps the event to
// a payment outcome for one order.
func (v *StripeVerifier) Parse(payload []byte, signature string) (*domain.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	var outcome domain.PaymentOutcome
	var session stripe.CheckoutSession

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnhandledEvent, event.Type)
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		// Delayed payment methods complete the session before the money moves.
		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return nil, fmt.Errorf("%w: session completed with payment status %s", ErrUnhandledEvent, session.PaymentStatus)
		}
		outcome = domain.PaymentOutcomeSucceeded
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		outcome = domain.PaymentOutcomeSucceeded
	default:
		outcome = domain.PaymentOutcomeFailed
	}

	orderID, err := strconv.ParseInt(session.Metadata["order_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: missing order_id metadata", domain.ErrInvalidPayload)
	}

	return &domain.PaymentEvent{
		EventID: event.ID,
		OrderID: orderID,
		Outcome: outcome,
	}, nil
}
