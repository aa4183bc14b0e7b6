package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	"github.com/sakashimaa/checkout-pipeline/internal/metrics"
	"github.com/sakashimaa/checkout-pipeline/internal/notification"
	"github.com/sakashimaa/checkout-pipeline/internal/payment"
	"github.com/sakashimaa/checkout-pipeline/internal/pricing"
	"github.com/sakashimaa/checkout-pipeline/pkg/db"
	"github.com/sakashimaa/checkout-pipeline/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Notifier broadcasts a notification. Delivery problems are not reported.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

type Result struct {
	OrderID    int64
	PaymentURL *string
	// Duplicate is set when the job had already been committed earlier.
	Duplicate bool
}

// OrderProcessor turns one queued job into an order.
type OrderProcessor interface {
	Process(ctx context.Context, job *domain.Job) (*Result, error)
}

type orderProcessor struct {
	pool           *pgxpool.Pool
	logger         *zap.Logger
	repos          Repositories
	payments       *payment.Registry
	notifier       Notifier
	metrics        *metrics.Metrics
	paymentTimeout time.Duration
	now            func() time.Time
	tracer         trace.Tracer
}

func NewOrderProcessor(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	repos Repositories,
	payments *payment.Registry,
	notifier Notifier,
	m *metrics.Metrics,
	paymentTimeout time.Duration,
) OrderProcessor {
	return &orderProcessor{
		pool:           pool,
		logger:         logger,
		repos:          repos,
		payments:       payments,
		notifier:       notifier,
		metrics:        m,
		paymentTimeout: paymentTimeout,
		now:            time.Now,
		tracer:         otel.Tracer("order_processor"),
	}
}

// Process builds the order for job in a single transaction: re-validation,
// order header, inventory reservation in ascending line order, totals,
// payment initiation and cart clearing either all commit or all roll back.
// Notifications are sent only after commit.
func (p *orderProcessor) Process(ctx context.Context, job *domain.Job) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "OrderProcessor.Process")
	defer span.End()

	span.SetAttributes(
		attribute.String("job_id", job.JobID),
		attribute.Int64("user_id", job.UserID),
		attribute.String("payment_method", string(job.PaymentMethod)),
	)

	started := p.now()

	if err := job.Validate(); err != nil {
		p.metrics.JobProcessed(err, p.now().Sub(started))
		return nil, err
	}

	var (
		result  *Result
		pending []domain.Notification
	)

	err := db.WithTransaction(ctx, p.pool, p.logger, func(tx pgx.Tx) error {
		var err error
		result, pending, err = p.buildOrder(ctx, tx, job)
		return err
	})

	p.metrics.JobProcessed(err, p.now().Sub(started))

	if err != nil {
		span.RecordError(err)
		mylogger.Warn(
			ctx,
			p.logger,
			"Checkout job failed",
			zap.String("job_id", job.JobID),
			zap.String("class", string(domain.Classify(err))),
			zap.Error(err),
		)

		return nil, err
	}

	for _, n := range pending {
		p.notifier.Notify(ctx, n)
	}

	span.SetAttributes(
		attribute.Int64("order_id", result.OrderID),
		attribute.Bool("duplicate", result.Duplicate),
	)

	mylogger.Info(
		ctx,
		p.logger,
		"Checkout job processed",
		zap.String("job_id", job.JobID),
		zap.Int64("order_id", result.OrderID),
		zap.Bool("duplicate", result.Duplicate),
	)

	return result, nil
}

func (p *orderProcessor) buildOrder(ctx context.Context, tx pgx.Tx, job *domain.Job) (*Result, []domain.Notification, error) {
	var cart *domain.Cart
	if job.FromCart() {
		// Locked before the duplicate check so a concurrent redelivery of the
		// same job waits here and then sees the committed order.
		var err error
		cart, err = p.repos.Carts.LockCart(ctx, tx, job.UserID)
		if err != nil {
			return nil, nil, err
		}
	}

	if existing, err := p.existingOrder(ctx, tx, job.JobID); existing != nil || err != nil {
		return existing, nil, err
	}

	coupon, err := p.usableCoupon(ctx, tx, job.CouponID)
	if err != nil {
		return nil, nil, err
	}

	if _, err := p.repos.Users.GetUserAddress(ctx, tx, job.UserID, job.AddressID); err != nil {
		return nil, nil, err
	}

	user, err := p.repos.Users.GetUser(ctx, tx, job.UserID)
	if err != nil {
		return nil, nil, err
	}

	if cart != nil && len(cart.Items) == 0 {
		return nil, nil, domain.ErrCartEmpty
	}

	order := &domain.Order{
		JobID:         job.JobID,
		UserID:        job.UserID,
		AddressID:     job.AddressID,
		CouponID:      job.CouponID,
		DeliveryPrice: job.DeliveryPrice,
		OrderStatus:   domain.OrderStatusPending,
		PaymentMethod: job.PaymentMethod,
		PaymentStatus: domain.PaymentStatusUnpaid,
	}

	created, err := p.repos.Orders.CreateOrder(ctx, tx, order)
	if err != nil {
		return nil, nil, err
	}
	if !created {
		existing, err := p.existingOrder(ctx, tx, job.JobID)
		return existing, nil, err
	}

	items := make([]domain.OrderItem, 0, len(job.LineItems()))
	for _, line := range job.LineItems() {
		reservation, err := p.repos.Inventory.Reserve(ctx, tx, line.InventoryLineID, line.Quantity)
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientStock) {
				p.metrics.ReservationRejected()
			}

			return nil, nil, err
		}

		items = append(items, domain.OrderItem{
			InventoryLineID: line.InventoryLineID,
			ProductID:       reservation.ProductID,
			ProductName:     reservation.ProductName,
			Quantity:        line.Quantity,
			UnitPrice:       reservation.UnitPrice,
		})
	}

	order.TotalPrice = pricing.OrderTotal(items, job.DeliveryPrice)
	order.TotalPriceAfterDiscount = pricing.ApplyCoupon(coupon, order.TotalPrice)

	if err := p.repos.Orders.InsertItems(ctx, tx, order.ID, items); err != nil {
		return nil, nil, err
	}
	order.Items = items

	if err := p.repos.Orders.UpdateTotals(ctx, tx, order.ID, order.TotalPrice, order.TotalPriceAfterDiscount); err != nil {
		return nil, nil, err
	}

	recipient := domain.Recipient{UserID: user.ID, Email: user.Email, PushToken: user.PushToken}
	pending := []domain.Notification{notification.OrderCreated(order, recipient)}

	strategy, ok := p.payments.Lookup(job.PaymentMethod)
	switch {
	case ok && !order.TotalPriceAfterDiscount.IsPositive():
		// Nothing to collect.
		if err := p.repos.Orders.UpdatePaymentStatus(ctx, tx, order.ID, domain.PaymentStatusPaid); err != nil {
			return nil, nil, err
		}
		order.PaymentStatus = domain.PaymentStatusPaid

	case ok:
		url, err := p.initiatePayment(ctx, strategy, order, user)
		if err != nil {
			return nil, nil, err
		}

		if err := p.repos.Orders.SetPaymentURL(ctx, tx, order.ID, url); err != nil {
			return nil, nil, err
		}

		order.PaymentURL = &url
		pending = append(pending, notification.PaymentLinkIssued(order, recipient, url))
	}

	if cart != nil {
		if err := p.repos.Carts.ClearCart(ctx, tx, cart.ID); err != nil {
			return nil, nil, err
		}
	}

	return &Result{OrderID: order.ID, PaymentURL: order.PaymentURL}, pending, nil
}

func (p *orderProcessor) existingOrder(ctx context.Context, tx pgx.Tx, jobID string) (*Result, error) {
	order, err := p.repos.Orders.GetOrderByJobID(ctx, tx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}

	mylogger.Info(ctx, p.logger, "Job already processed", zap.String("job_id", jobID), zap.Int64("order_id", order.ID))

	return &Result{OrderID: order.ID, PaymentURL: order.PaymentURL, Duplicate: true}, nil
}

func (p *orderProcessor) usableCoupon(ctx context.Context, tx pgx.Tx, couponID *int64) (*domain.Coupon, error) {
	if couponID == nil {
		return nil, nil
	}

	coupon, err := p.repos.Coupons.GetCoupon(ctx, tx, *couponID)
	if err != nil {
		if errors.Is(err, domain.ErrCouponNotFound) {
			return nil, fmt.Errorf("%w: coupon %d no longer exists", domain.ErrInvalidCoupon, *couponID)
		}
		return nil, err
	}

	if !coupon.Usable(p.now()) {
		return nil, fmt.Errorf("%w: coupon %s is expired or inactive", domain.ErrInvalidCoupon, coupon.Code)
	}

	return coupon, nil
}

// initiatePayment calls the gateway under its own deadline. The caller's
// transaction stays open, so any failure here rolls the whole order back.
func (p *orderProcessor) initiatePayment(ctx context.Context, strategy payment.Strategy, order *domain.Order, user *domain.User) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.paymentTimeout)
	defer cancel()

	items := make([]payment.Item, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payment.Item{
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	url, err := strategy.ProcessPayment(ctx, payment.Request{
		UserID:   order.UserID,
		OrderID:  order.ID,
		Email:    user.Email,
		Items:    items,
		Delivery: order.DeliveryPrice,
		Total:    order.TotalPriceAfterDiscount,
	})
	p.metrics.PaymentInitiated(order.PaymentMethod, err)

	if err != nil {
		return "", fmt.Errorf("payment initiation failed: %w", err)
	}

	return url, nil
}
