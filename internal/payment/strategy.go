// Package payment dispatches orders to external payment providers.
package payment

import (
	"context"

	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	"github.com/shopspring/decimal"
)

type Item struct {
	Name      string
	Quantity  int32
	UnitPrice decimal.Decimal
}

type Request struct {
	UserID   int64
	OrderID  int64
	Email    string
	Items    []Item
	Delivery decimal.Decimal
	// Total is what the customer is charged, after discount.
	Total decimal.Decimal
}

// Strategy starts a payment and returns the URL the customer is sent to.
type Strategy interface {
	ProcessPayment(ctx context.Context, req Request) (string, error)
}

// Registry maps a payment method to the strategy that handles it. A method
// without a strategy needs no external step.
type Registry struct {
	strategies map[domain.PaymentMethod]Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[domain.PaymentMethod]Strategy)}
}

func (r *Registry) Register(method domain.PaymentMethod, strategy Strategy) *Registry {
	r.strategies[method] = strategy
	return r
}

func (r *Registry) Lookup(method domain.PaymentMethod) (Strategy, bool) {
	s, ok := r.strategies[method]
	return s, ok
}
