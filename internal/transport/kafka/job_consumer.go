package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	"github.com/sakashimaa/checkout-pipeline/internal/jobstatus"
	"github.com/sakashimaa/checkout-pipeline/internal/metrics"
	"github.com/sakashimaa/checkout-pipeline/internal/service"
	generalDomain "github.com/sakashimaa/checkout-pipeline/pkg/domain"
	"github.com/sakashimaa/checkout-pipeline/pkg/kafka"
	"github.com/sakashimaa/checkout-pipeline/pkg/mylogger"
	"go.uber.org/zap"
)

type Publisher interface {
	ProduceMessage(ctx context.Context, topic string, key string, message interface{}) error
}

type JobConsumerConfig struct {
	Brokers      []string
	GroupID      string
	Topic        string
	DLQTopic     string
	MaxAttempts  int
	RetryBackoff time.Duration
}

// JobConsumer feeds checkout jobs from Kafka to the order processor, one at a
// time. Transient failures are retried in place; terminal failures and
// exhausted retries go to the dead-letter topic.
type JobConsumer struct {
	processor service.OrderProcessor
	statuses  jobstatus.Store
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	cfg       JobConsumerConfig
	now       func() time.Time

	mu sync.Mutex
}

func NewJobConsumer(
	processor service.OrderProcessor,
	statuses jobstatus.Store,
	publisher Publisher,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg JobConsumerConfig,
) *JobConsumer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	return &JobConsumer{
		processor: processor,
		statuses:  statuses,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (c *JobConsumer) Start(ctx context.Context) error {
	consumerGroup := kafka.NewConsumerGroup(
		c.cfg.Brokers,
		c.cfg.GroupID,
		[]string{c.cfg.Topic},
		c.HandleMessage,
		c.logger,
	)

	return consumerGroup.Run(ctx)
}

// HandleMessage processes one job message. It returns an error only when the
// message must be redelivered: shutdown in the middle of a job, or a failed
// dead-letter publish.
func (c *JobConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var envelope generalDomain.Envelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		mylogger.Error(ctx, c.logger, "Error unmarshalling envelope", zap.Error(err))
		return c.deadLetter(ctx, "", msg.Value, err, 0)
	}

	if envelope.Event != generalDomain.EventCheckoutRequested {
		mylogger.Warn(ctx, c.logger, "Ignored event type", zap.String("event_type", envelope.Event))
		return nil
	}

	var job domain.Job
	if err := json.Unmarshal(envelope.Payload, &job); err != nil {
		mylogger.Error(ctx, c.logger, "Failed to unmarshal job", zap.Error(err))
		return c.deadLetter(ctx, "", msg.Value, err, 0)
	}

	res, attempts, err := c.process(ctx, &job)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.setStatus(ctx, domain.JobStatus{
			JobID:      job.JobID,
			State:      domain.JobStateFailed,
			ErrorClass: domain.Classify(err),
			Error:      err.Error(),
		})

		return c.deadLetter(ctx, job.JobID, msg.Value, err, attempts)
	}

	c.setStatus(ctx, domain.JobStatus{
		JobID:      job.JobID,
		State:      domain.JobStateCompleted,
		OrderID:    &res.OrderID,
		PaymentURL: res.PaymentURL,
	})

	return nil
}

func (c *JobConsumer) process(ctx context.Context, job *domain.Job) (*service.Result, int, error) {
	for attempt := 1; ; attempt++ {
		res, err := c.processor.Process(ctx, job)
		if err == nil {
			return res, attempt, nil
		}

		if domain.Classify(err).Terminal() || attempt >= c.cfg.MaxAttempts {
			return nil, attempt, err
		}

		c.metrics.JobRetried()

		mylogger.Warn(
			ctx,
			c.logger,
			"Retrying checkout job",
			zap.String("job_id", job.JobID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, attempt, errors.Join(err, ctx.Err())
		case <-time.After(c.cfg.RetryBackoff * time.Duration(attempt)):
		}
	}
}

func (c *JobConsumer) deadLetter(ctx context.Context, jobID string, original []byte, cause error, attempts int) error {
	class := domain.Classify(cause)
	if jobID == "" {
		class = domain.ClassValidation
	}

	envelope, err := generalDomain.NewEnvelope(generalDomain.EventCheckoutFailed, generalDomain.DeadLetter{
		JobID:    jobID,
		Reason:   cause.Error(),
		Class:    string(class),
		Attempts: attempts,
		FailedAt: c.now().UTC(),
		Original: rawOriginal(original),
	})
	if err != nil {
		return err
	}

	if err := c.publisher.ProduceMessage(ctx, c.cfg.DLQTopic, jobID, envelope); err != nil {
		mylogger.Error(
			ctx,
			c.logger,
			"Failed to dead-letter checkout job",
			zap.String("job_id", jobID),
			zap.Error(err),
		)

		return err
	}

	mylogger.Warn(
		ctx,
		c.logger,
		"Checkout job dead-lettered",
		zap.String("job_id", jobID),
		zap.String("class", string(class)),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)

	return nil
}

func (c *JobConsumer) setStatus(ctx context.Context, status domain.JobStatus) {
	if err := c.statuses.Set(ctx, status); err != nil {
		mylogger.Warn(ctx, c.logger, "Failed to record job status", zap.String("job_id", status.JobID), zap.Error(err))
	}
}

// rawOriginal keeps a valid JSON message as is and quotes anything else.
func rawOriginal(value []byte) json.RawMessage {
	if json.Valid(value) {
		return value
	}

	quoted, _ := json.Marshal(string(value))
	return quoted
}
