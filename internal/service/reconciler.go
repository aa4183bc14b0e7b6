package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	"github.com/sakashimaa/checkout-pipeline/internal/metrics"
	"github.com/sakashimaa/checkout-pipeline/internal/notification"
	"github.com/sakashimaa/checkout-pipeline/pkg/db"
	"github.com/sakashimaa/checkout-pipeline/pkg/mylogger"
	outboxUtils "github.com/sakashimaa/checkout-pipeline/pkg/outbox/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Reconciler applies verified payment provider events to orders.
type Reconciler interface {
	Reconcile(ctx context.Context, event *domain.PaymentEvent) error
}

type ReconcilerConfig struct {
	LookupAttempts int
	LookupBackoff  time.Duration
}

type reconciler struct {
	pool     *pgxpool.Pool
	logger   *zap.Logger
	repos    Repositories
	notifier Notifier
	metrics  *metrics.Metrics
	cfg      ReconcilerConfig
	tracer   trace.Tracer
}

func NewReconciler(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	repos Repositories,
	notifier Notifier,
	m *metrics.Metrics,
	cfg ReconcilerConfig,
) Reconciler {
	if cfg.LookupAttempts < 1 {
		cfg.LookupAttempts = 1
	}

	return &reconciler{
		pool:     pool,
		logger:   logger,
		repos:    repos,
		notifier: notifier,
		metrics:  m,
		cfg:      cfg,
		tracer:   otel.Tracer("reconciler"),
	}
}

type outcome struct {
	changed   bool
	duplicate bool
	status    domain.PaymentStatus
	recipient domain.Recipient
}

// Reconcile records the payment outcome on the order. Each event id is
// applied at most once. PAID is never downgraded. A webhook can arrive before
// the order is visible, so a missing order is retried a bounded number of
// times before ErrOrderNotFound is returned.
func (r *reconciler) Reconcile(ctx context.Context, event *domain.PaymentEvent) error {
	ctx, span := r.tracer.Start(ctx, "Reconciler.Reconcile")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", event.EventID),
		attribute.Int64("order_id", event.OrderID),
		attribute.String("outcome", string(event.Outcome)),
	)

	for attempt := 1; ; attempt++ {
		res, err := r.apply(ctx, event)
		if err == nil {
			r.finish(ctx, event, res)
			return nil
		}

		if !errors.Is(err, domain.ErrOrderNotFound) || attempt >= r.cfg.LookupAttempts {
			span.RecordError(err)
			r.metrics.WebhookHandled("error")

			mylogger.Warn(
				ctx,
				r.logger,
				"Payment event not applied",
				zap.String("event_id", event.EventID),
				zap.Int64("order_id", event.OrderID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)

			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.LookupBackoff * time.Duration(attempt)):
		}
	}
}

func (r *reconciler) apply(ctx context.Context, event *domain.PaymentEvent) (outcome, error) {
	var res outcome

	err := db.WithTransaction(ctx, r.pool, r.logger, func(tx pgx.Tx) error {
		claimed, err := outboxUtils.ClaimEvent(ctx, tx, r.logger, event.EventID)
		if err != nil {
			return err
		}
		if !claimed {
			res.duplicate = true
			return nil
		}

		order, err := r.repos.Orders.LockOrder(ctx, tx, event.OrderID)
		if err != nil {
			return err
		}

		target := event.Outcome.Status()
		res.status = order.PaymentStatus

		if !order.PaymentStatus.CanTransitionTo(target) {
			mylogger.Info(
				ctx,
				r.logger,
				"Payment status unchanged",
				zap.Int64("order_id", order.ID),
				zap.String("current", string(order.PaymentStatus)),
				zap.String("requested", string(target)),
			)

			return nil
		}

		if err := r.repos.Orders.UpdatePaymentStatus(ctx, tx, order.ID, target); err != nil {
			return err
		}

		user, err := r.repos.Users.GetUser(ctx, tx, order.UserID)
		if err != nil {
			return err
		}

		res.changed = true
		res.status = target
		res.recipient = domain.Recipient{UserID: user.ID, Email: user.Email, PushToken: user.PushToken}

		return nil
	})

	return res, err
}

func (r *reconciler) finish(ctx context.Context, event *domain.PaymentEvent, res outcome) {
	switch {
	case res.duplicate:
		r.metrics.WebhookHandled("duplicate")
	case !res.changed:
		r.metrics.WebhookHandled("unchanged")
	default:
		r.metrics.WebhookHandled("applied")

		mylogger.Info(
			ctx,
			r.logger,
			"Payment status updated",
			zap.Int64("order_id", event.OrderID),
			zap.String("payment_status", string(res.status)),
		)

		r.notifier.Notify(ctx, notification.PaymentSettled(event.OrderID, res.recipient, res.status))
	}
}
