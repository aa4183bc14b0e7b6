package payment

import (
	"fmt"
	"testing"
	"time"

	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func signedEvent(t *testing.T, eventType, paymentStatus, orderID string) ([]byte, string) {
	t.Helper()

	payload := []byte(fmt.Sprintf(`{
		"id": "evt_%s",
		"object": "event",
		"type": %q,
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"payment_status": %q,
			"metadata": {"order_id": %q, "user_id": "7"}
		}}
	}`, eventType, eventType, paymentStatus, orderID))

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})

	return signed.Payload, signed.Header
}

func TestStripeVerifier_MapsEvents(t *testing.T) {
	tests := []struct {
		eventType     string
		paymentStatus string
		want          domain.PaymentOutcome
	}{
		{"checkout.session.completed", "paid", domain.PaymentOutcomeSucceeded},
		{"checkout.session.async_payment_succeeded", "paid", domain.PaymentOutcomeSucceeded},
		{"checkout.session.async_payment_failed", "unpaid", domain.PaymentOutcomeFailed},
		{"checkout.session.expired", "unpaid", domain.PaymentOutcomeFailed},
	}

	verifier := NewStripeVerifier(testWebhookSecret)

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			payload, header := signedEvent(t, tt.eventType, tt.paymentStatus, "42")

			event, err := verifier.Parse(payload, header)
			require.NoError(t, err)
			require.Equal(t, int64(42), event.OrderID)
			require.Equal(t, tt.want, event.Outcome)
			require.Equal(t, "evt_"+tt.eventType, event.EventID)
		})
	}
}

func TestStripeVerifier_RejectsBadSignature(t *testing.T) {
	payload, _ := signedEvent(t, "checkout.session.completed", "paid", "42")

	_, err := NewStripeVerifier(testWebhookSecret).Parse(payload, "t=1,v1=deadbeef")
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStripeVerifier_IgnoresUnpaidCompletionAndOtherTypes(t *testing.T) {
	verifier := NewStripeVerifier(testWebhookSecret)

	payload, header := signedEvent(t, "checkout.session.completed", "unpaid", "42")
	_, err := verifier.Parse(payload, header)
	require.ErrorIs(t, err, ErrUnhandledEvent)

	payload, header = signedEvent(t, "customer.created", "paid", "42")
	_, err = verifier.Parse(payload, header)
	require.ErrorIs(t, err, ErrUnhandledEvent)
}

func TestStripeVerifier_RequiresOrderMetadata(t *testing.T) {
	payload, header := signedEvent(t, "checkout.session.completed", "paid", "")

	_, err := NewStripeVerifier(testWebhookSecret).Parse(payload, header)
	require.ErrorIs(t, err, domain.ErrInvalidPayload)
}
