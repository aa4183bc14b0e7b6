package payment

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sakashimaa/checkout-pipeline/pkg/mylogger"
	"github.com/sakashimaa/checkout-pipeline/pkg/utils"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CheckoutSessions is the part of the Stripe client the strategy uses.
type CheckoutSessions interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type StripeConfig struct {
	SecretKey  string
	Currency   string
	SuccessURL string
	CancelURL  string
	Timeout    time.Duration
}

type StripeStrategy struct {
	sessions CheckoutSessions
	cfg      StripeConfig
	cb       *gobreaker.CircuitBreaker
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewStripeClient builds a Stripe API client whose HTTP calls are bounded by
// cfg.Timeout.
func NewStripeClient(cfg StripeConfig) *client.API {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return client.New(cfg.SecretKey, stripe.NewBackends(httpClient))
}

func NewStripeStrategy(sessions CheckoutSessions, cfg StripeConfig, logger *zap.Logger) *StripeStrategy {
	return &StripeStrategy{
		sessions: sessions,
		cfg:      cfg,
		cb:       utils.NewBreaker("StripeCheckout", logger),
		logger:   logger,
		tracer:   otel.Tracer("payment/stripe"),
	}
}

// ProcessPayment creates a hosted checkout session for the order and returns
// its URL.
func (s *StripeStrategy) ProcessPayment(ctx context.Context, req Request) (string, error) {
	ctx, span := s.tracer.Start(ctx, "StripeStrategy.ProcessPayment")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", req.OrderID),
		attribute.Int64("user_id", req.UserID),
		attribute.Int("items_count", len(req.Items)),
	)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         s.lineItems(req),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		ClientReferenceID: stripe.String(strconv.FormatInt(req.OrderID, 10)),
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.AddMetadata("order_id", strconv.FormatInt(req.OrderID, 10))
	params.AddMetadata("user_id", strconv.FormatInt(req.UserID, 10))
	params.Context = ctx

	session, err := utils.ExecuteWithBreaker(s.cb, func() (*stripe.CheckoutSession, error) {
		return s.sessions.New(params)
	})
	if err != nil {
		span.RecordError(err)
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to create checkout session",
			zap.Int64("order_id", req.OrderID),
			zap.Error(err),
		)

		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Checkout session created",
		zap.Int64("order_id", req.OrderID),
		zap.String("session_id", session.ID),
	)

	return session.URL, nil
}

// lineItems lists every order item plus delivery. When a discount makes the
// charged total differ from that sum, a single line with the total is sent
// instead so the customer pays exactly what the order records.
func (s *StripeStrategy) lineItems(req Request) []*stripe.CheckoutSessionLineItemParams {
	sum := req.Delivery
	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items)+1)

	for _, item := range req.Items {
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt32(item.Quantity)))
		items = append(items, s.lineItem(item.Name, item.UnitPrice, int64(item.Quantity)))
	}

	if req.Delivery.IsPositive() {
		items = append(items, s.lineItem("Delivery", req.Delivery, 1))
	}

	if !req.Total.Equal(sum) {
		return []*stripe.CheckoutSessionLineItemParams{
			s.lineItem(fmt.Sprintf("Order #%d", req.OrderID), req.Total, 1),
		}
	}

	return items
}

func (s *StripeStrategy) lineItem(name string, price decimal.Decimal, quantity int64) *stripe.CheckoutSessionLineItemParams {
	return &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency: stripe.String(s.cfg.Currency),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(name),
			},
			UnitAmount: stripe.Int64(toMinorUnits(price)),
		},
		Quantity: stripe.Int64(quantity),
	}
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
