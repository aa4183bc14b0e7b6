package domain

import (
	"encoding/json"
	"time"
)

// Envelope wraps every message published to Kafka.
type Envelope struct {
	Event   string          `json:"event"`
	EventID int64           `json:"event_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

const (
	EventCheckoutRequested = "CheckoutRequested"
	EventCheckoutFailed    = "CheckoutFailed"
	EventPushRequested     = "PushRequested"
)

type DeadLetter struct {
	JobID    string          `json:"job_id"`
	Reason   string          `json:"reason"`
	Class    string          `json:"class"`
	Attempts int             `json:"attempts"`
	FailedAt time.Time       `json:"failed_at"`
	Original json.RawMessage `json:"original"`
}

type PushMessage struct {
	UserID int64  `json:"user_id"`
	Token  string `json:"token"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

func NewEnvelope(event string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Envelope{Event: event, Payload: raw}, nil
}
