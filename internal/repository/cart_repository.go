package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	"github.com/sakashimaa/checkout-pipeline/pkg/db"
	"github.com/sakashimaa/checkout-pipeline/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type CartRepository interface {
	GetCart(ctx context.Context, q db.Querier, userID int64) (*domain.Cart, error)
	LockCart(ctx context.Context, tx pgx.Tx, userID int64) (*domain.Cart, error)
	ClearCart(ctx context.Context, tx pgx.Tx, cartID int64) error
}

type cartRepo struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewCartRepository(logger *zap.Logger) CartRepository {
	return &cartRepo{
		logger: logger,
		tracer: otel.Tracer("cart_repository"),
	}
}

// GetCart returns the user's cart with its items. A user without a cart row
// gets an empty cart.
func (r *cartRepo) GetCart(ctx context.Context, q db.Querier, userID int64) (*domain.Cart, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.GetCart")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	return r.loadCart(ctx, q, span, userID, false)
}

// LockCart is GetCart with the cart row locked until tx ends.
func (r *cartRepo) LockCart(ctx context.Context, tx pgx.Tx, userID int64) (*domain.Cart, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.LockCart")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	return r.loadCart(ctx, tx, span, userID, true)
}

func (r *cartRepo) loadCart(ctx context.Context, q db.Querier, span trace.Span, userID int64, lock bool) (*domain.Cart, error) {
	query := `
		SELECT id, user_id, total_price
		FROM carts
		WHERE user_id = $1
	`
	if lock {
		query += " FOR UPDATE"
	}

	var cart domain.Cart
	err := q.QueryRow(ctx, query, userID).Scan(&cart.ID, &cart.UserID, &cart.TotalPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.Cart{UserID: userID}, nil
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to query cart", zap.Int64("user_id", userID), zap.Error(err))

		return nil, fmt.Errorf("failed to query cart: %w", err)
	}

	itemsQuery := `
		SELECT inventory_line_id, product_id, quantity, unit_price
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY inventory_line_id
	`

	rows, err := q.Query(ctx, itemsQuery, cart.ID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.InventoryLineID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}

		cart.Items = append(cart.Items, item)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to iterate cart items: %w", err)
	}

	span.SetAttributes(attribute.Int("items_count", len(cart.Items)))

	return &cart, nil
}

func (r *cartRepo) ClearCart(ctx context.Context, tx pgx.Tx, cartID int64) error {
	ctx, span := r.tracer.Start(ctx, "CartRepository.ClearCart")
	defer span.End()

	span.SetAttributes(attribute.Int64("cart_id", cartID))

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to delete cart items", zap.Int64("cart_id", cartID), zap.Error(err))

		return fmt.Errorf("failed to delete cart items: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE carts SET total_price = 0 WHERE id = $1`, cartID); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to reset cart total", zap.Int64("cart_id", cartID), zap.Error(err))

		return fmt.Errorf("failed to reset cart total: %w", err)
	}

	return nil
}
