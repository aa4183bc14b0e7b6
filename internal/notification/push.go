package notification

import (
	"context"
	"strconv"

	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	generalDomain "github.com/sakashimaa/checkout-pipeline/pkg/domain"
	"github.com/sakashimaa/checkout-pipeline/pkg/kafka"
)

// PushObserver hands push notifications to the push gateway through Kafka.
type PushObserver struct {
	producer kafka.Producer
	topic    string
}

func NewPushObserver(producer kafka.Producer, topic string) *PushObserver {
	return &PushObserver{producer: producer, topic: topic}
}

func (o *PushObserver) Name() string { return "push" }

func (o *PushObserver) Notify(ctx context.Context, n domain.Notification) error {
	if n.Recipient.PushToken == nil || *n.Recipient.PushToken == "" {
		return nil
	}

	envelope, err := generalDomain.NewEnvelope(generalDomain.EventPushRequested, generalDomain.PushMessage{
		UserID: n.Recipient.UserID,
		Token:  *n.Recipient.PushToken,
		Title:  n.Title,
		Body:   n.Body,
	})
	if err != nil {
		return err
	}

	return o.producer.ProduceMessage(ctx, o.topic, strconv.FormatInt(n.Recipient.UserID, 10), envelope)
}
