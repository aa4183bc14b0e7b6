package domain

type PaymentOutcome string

const (
	PaymentOutcomeSucceeded PaymentOutcome = "succeeded"
	PaymentOutcomeFailed    PaymentOutcome = "failed"
)

// PaymentEvent is a verified provider notification about one order.
type PaymentEvent struct {
	EventID string
	OrderID int64
	Outcome PaymentOutcome
}

func (o PaymentOutcome) Status() PaymentStatus {
	if o == PaymentOutcomeSucceeded {
		return PaymentStatusPaid
	}
	return PaymentStatusFailed
}
