package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	"github.com/sakashimaa/checkout-pipeline/internal/jobstatus"
	"github.com/sakashimaa/checkout-pipeline/internal/metrics"
	"github.com/sakashimaa/checkout-pipeline/internal/repository"
	"github.com/sakashimaa/checkout-pipeline/pkg/db"
	generalDomain "github.com/sakashimaa/checkout-pipeline/pkg/domain"
	"github.com/sakashimaa/checkout-pipeline/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/checkout-pipeline/pkg/outbox/domain"
	"github.com/sakashimaa/checkout-pipeline/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const checkoutAggregate = "Checkout"

type Accepted struct {
	JobID string `json:"jobId"`
}

// IntakeService validates checkout requests and queues them for the worker.
type IntakeService interface {
	Submit(ctx context.Context, req domain.CheckoutRequest) (*Accepted, error)
}

type Repositories struct {
	Users     repository.UserRepository
	Carts     repository.CartRepository
	Coupons   repository.CouponRepository
	Inventory repository.InventoryRepository
	Orders    repository.OrderRepository
}

type intakeService struct {
	pool       *pgxpool.Pool
	logger     *zap.Logger
	repos      Repositories
	outboxRepo worker.OutboxRepository
	statuses   jobstatus.Store
	metrics    *metrics.Metrics
	jobsTopic  string
	now        func() time.Time
	tracer     trace.Tracer
}

func NewIntakeService(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	repos Repositories,
	outboxRepo worker.OutboxRepository,
	statuses jobstatus.Store,
	m *metrics.Metrics,
	jobsTopic string,
) IntakeService {
	return &intakeService{
		pool:       pool,
		logger:     logger,
		repos:      repos,
		outboxRepo: outboxRepo,
		statuses:   statuses,
		metrics:    m,
		jobsTopic:  jobsTopic,
		now:        time.Now,
		tracer:     otel.Tracer("intake_service"),
	}
}

// Submit runs the cheap synchronous checks and queues the job. It returns as
// soon as the job is durably queued; the order is built later by the worker.
func (s *intakeService) Submit(ctx context.Context, req domain.CheckoutRequest) (*Accepted, error) {
	ctx, span := s.tracer.Start(ctx, "IntakeService.Submit")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", req.UserID),
		attribute.Bool("from_cart", req.FromCart),
		attribute.String("payment_method", string(req.PaymentMethod)),
	)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	job, err := s.buildJob(ctx, req)
	if err != nil {
		mylogger.Warn(ctx, s.logger, "Checkout rejected", zap.Int64("user_id", req.UserID), zap.Error(err))
		return nil, err
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	err = db.WithTransaction(ctx, s.pool, s.logger, func(tx pgx.Tx) error {
		return s.outboxRepo.SaveOutboxEvent(ctx, tx, &outboxDomain.OutboxEvent{
			AggregateType: checkoutAggregate,
			AggregateID:   job.JobID,
			EventType:     generalDomain.EventCheckoutRequested,
			MessageKey:    strconv.FormatInt(job.UserID, 10),
			Payload:       payload,
			Topic:         s.jobsTopic,
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to queue checkout job: %w", err)
	}

	span.SetAttributes(attribute.String("job_id", job.JobID))

	if err := s.statuses.Set(ctx, domain.JobStatus{JobID: job.JobID, State: domain.JobStateQueued}); err != nil {
		mylogger.Warn(ctx, s.logger, "Failed to record queued job status", zap.String("job_id", job.JobID), zap.Error(err))
	}

	s.metrics.JobSubmitted()

	mylogger.Info(
		ctx,
		s.logger,
		"Checkout job queued",
		zap.String("job_id", job.JobID),
		zap.Int64("user_id", job.UserID),
	)

	return &Accepted{JobID: job.JobID}, nil
}

func (s *intakeService) buildJob(ctx context.Context, req domain.CheckoutRequest) (*domain.Job, error) {
	if _, err := s.repos.Users.GetUser(ctx, s.pool, req.UserID); err != nil {
		return nil, err
	}

	if _, err := s.repos.Users.GetUserAddress(ctx, s.pool, req.UserID, req.AddressID); err != nil {
		return nil, err
	}

	if req.CouponID != nil {
		coupon, err := s.repos.Coupons.GetCoupon(ctx, s.pool, *req.CouponID)
		if err != nil {
			return nil, err
		}

		if coupon.Expired(s.now()) {
			return nil, domain.ErrCouponExpired
		}
	}

	job := &domain.Job{
		JobID:         uuid.NewString(),
		UserID:        req.UserID,
		AddressID:     req.AddressID,
		PaymentMethod: req.PaymentMethod,
		DeliveryPrice: req.DeliveryPrice,
		CouponID:      req.CouponID,
		EnqueuedAt:    s.now().UTC(),
	}

	if req.FromCart {
		cart, err := s.repos.Carts.GetCart(ctx, s.pool, req.UserID)
		if err != nil {
			return nil, err
		}

		if len(cart.Items) == 0 {
			return nil, domain.ErrCartEmpty
		}

		for _, item := range cart.Items {
			job.CartItems = append(job.CartItems, domain.JobCartItem{
				DetailsID: item.InventoryLineID,
				Quantity:  item.Quantity,
				ProductID: item.ProductID,
				UnitPrice: item.UnitPrice,
			})
		}

		return job, nil
	}

	line, err := s.repos.Inventory.GetLine(ctx, s.pool, req.Product.DetailsID)
	if err != nil {
		return nil, err
	}

	job.SingleProduct = &domain.JobProduct{
		DetailsID:    line.ID,
		Quantity:     req.Product.Quantity,
		ProductName:  line.ProductName,
		ProductPrice: line.Price,
	}

	return job, nil
}
