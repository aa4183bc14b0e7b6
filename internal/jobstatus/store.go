// Package jobstatus keeps the outcome of queued checkout jobs so callers can
// poll for the order id.
package jobstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/checkout-pipeline/internal/domain"
)

var ErrJobNotFound = errors.New("job not found")

type Store interface {
	Set(ctx context.Context, status domain.JobStatus) error
	Get(ctx context.Context, jobID string) (*domain.JobStatus, error)
}

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, ttl time.Duration) Store {
	return &redisStore{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

func key(jobID string) string {
	return fmt.Sprintf("checkout:job:%s", jobID)
}

func (s *redisStore) Set(ctx context.Context, status domain.JobStatus) error {
	status.UpdatedAt = s.now().UTC()

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal job status: %w", err)
	}

	if err := s.client.Set(ctx, key(status.JobID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store job status: %w", err)
	}

	return nil
}

func (s *redisStore) Get(ctx context.Context, jobID string) (*domain.JobStatus, error) {
	val, err := s.client.Get(ctx, key(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}

		return nil, fmt.Errorf("failed to read job status: %w", err)
	}

	var status domain.JobStatus
	if err := json.Unmarshal(val, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job status: %w", err)
	}

	return &status, nil
}
