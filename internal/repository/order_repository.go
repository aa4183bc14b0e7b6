package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	"github.com/sakashimaa/checkout-pipeline/pkg/db"
	"github.com/sakashimaa/checkout-pipeline/pkg/mylogger"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OrderRepository interface {
	CreateOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) (bool, error)
	InsertItems(ctx context.Context, tx pgx.Tx, orderID int64, items []domain.OrderItem) error
	UpdateTotals(ctx context.Context, tx pgx.Tx, orderID int64, total, afterDiscount decimal.Decimal) error
	SetPaymentURL(ctx context.Context, tx pgx.Tx, orderID int64, url string) error
	LockOrder(ctx context.Context, tx pgx.Tx, orderID int64) (*domain.Order, error)
	UpdatePaymentStatus(ctx context.Context, tx pgx.Tx, orderID int64, status domain.PaymentStatus) error
	GetOrder(ctx context.Context, q db.Querier, orderID int64) (*domain.Order, error)
	GetOrderByJobID(ctx context.Context, q db.Querier, jobID string) (*domain.Order, error)
}

type orderRepo struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(logger *zap.Logger) OrderRepository {
	return &orderRepo{
		logger: logger,
		tracer: otel.Tracer("order_repository"),
	}
}

const orderColumns = `
	id, job_id::text, user_id, address_id, coupon_id, delivery_price, total_price,
	total_price_after_discount, order_status, payment_method, payment_status,
	payment_url, created_at, updated_at
`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID,
		&o.JobID,
		&o.UserID,
		&o.AddressID,
		&o.CouponID,
		&o.DeliveryPrice,
		&o.TotalPrice,
		&o.TotalPriceAfterDiscount,
		&o.OrderStatus,
		&o.PaymentMethod,
		&o.PaymentStatus,
		&o.PaymentURL,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &o, nil
}

// CreateOrder inserts the order header. It returns false without error when
// an order for the same job already exists.
func (r *orderRepo) CreateOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.CreateOrder")
	defer span.End()

	span.SetAttributes(
		attribute.String("job_id", order.JobID),
		attribute.Int64("user_id", order.UserID),
	)

	query := `
		INSERT INTO orders (
			job_id, user_id, address_id, coupon_id, delivery_price, total_price,
			total_price_after_discount, order_status, payment_method, payment_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (job_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err := tx.QueryRow(
		ctx,
		query,
		order.JobID,
		order.UserID,
		order.AddressID,
		order.CouponID,
		order.DeliveryPrice,
		order.TotalPrice,
		order.TotalPriceAfterDiscount,
		order.OrderStatus,
		order.PaymentMethod,
		order.PaymentStatus,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(ctx, r.logger, "Order for job already exists", zap.String("job_id", order.JobID))
			return false, nil
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to insert order", zap.Error(err))

		return false, fmt.Errorf("failed to insert order: %w", err)
	}

	span.SetAttributes(attribute.Int64("order_id", order.ID))

	return true, nil
}

// InsertItems writes all items in one round trip and fills in their ids.
func (r *orderRepo) InsertItems(ctx context.Context, tx pgx.Tx, orderID int64, items []domain.OrderItem) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.InsertItems")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.Int("items_count", len(items)),
	)

	query := `
		INSERT INTO order_items (order_id, inventory_line_id, product_id, product_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(query, orderID, item.InventoryLineID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice)
	}

	results := tx.SendBatch(ctx, batch)

	for i := range items {
		if err := results.QueryRow().Scan(&items[i].ID); err != nil {
			_ = results.Close()

			span.RecordError(err)
			mylogger.Error(ctx, r.logger, "Failed to insert item", zap.Int64("order_id", orderID), zap.Error(err))

			return fmt.Errorf("failed to insert order item: %w", err)
		}

		items[i].OrderID = orderID
	}

	if err := results.Close(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to close batch: %w", err)
	}

	return nil
}

func (r *orderRepo) UpdateTotals(ctx context.Context, tx pgx.Tx, orderID int64, total, afterDiscount decimal.Decimal) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.UpdateTotals")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("total_price", total.String()),
		attribute.String("total_price_after_discount", afterDiscount.String()),
	)

	query := `
		UPDATE orders
		SET total_price = $1, total_price_after_discount = $2, updated_at = NOW()
		WHERE id = $3
	`

	return r.execOne(ctx, span, tx, query, orderID, total, afterDiscount, orderID)
}

func (r *orderRepo) SetPaymentURL(ctx context.Context, tx pgx.Tx, orderID int64, url string) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.SetPaymentURL")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	query := `
		UPDATE orders
		SET payment_url = $1, updated_at = NOW()
		WHERE id = $2
	`

	return r.execOne(ctx, span, tx, query, orderID, url, orderID)
}

func (r *orderRepo) UpdatePaymentStatus(ctx context.Context, tx pgx.Tx, orderID int64, status domain.PaymentStatus) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.UpdatePaymentStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("payment_status", string(status)),
	)

	query := `
		UPDATE orders
		SET payment_status = $1, updated_at = NOW()
		WHERE id = $2
	`

	return r.execOne(ctx, span, tx, query, orderID, status, orderID)
}

func (r *orderRepo) execOne(ctx context.Context, span trace.Span, tx pgx.Tx, query string, orderID int64, args ...any) error {
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to update order", zap.Int64("order_id", orderID), zap.Error(err))

		return fmt.Errorf("failed to update order: %w", err)
	}

	if tag.RowsAffected() == 0 {
		mylogger.Warn(ctx, r.logger, "Order not found", zap.Int64("order_id", orderID))
		return domain.ErrOrderNotFound
	}

	return nil
}

// LockOrder reads the order and holds its row lock until tx ends.
func (r *orderRepo) LockOrder(ctx context.Context, tx pgx.Tx, orderID int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.LockOrder")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	order, err := scanOrder(tx.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}

		span.RecordError(err)
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	return order, nil
}

func (r *orderRepo) GetOrder(ctx context.Context, q db.Querier, orderID int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetOrder")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	return r.getWithItems(ctx, span, q, query, orderID)
}

func (r *orderRepo) GetOrderByJobID(ctx context.Context, q db.Querier, jobID string) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetOrderByJobID")
	defer span.End()

	span.SetAttributes(attribute.String("job_id", jobID))

	query := `SELECT ` + orderColumns + ` FROM orders WHERE job_id = $1`

	return r.getWithItems(ctx, span, q, query, jobID)
}

func (r *orderRepo) getWithItems(ctx context.Context, span trace.Span, q db.Querier, query string, arg any) (*domain.Order, error) {
	order, err := scanOrder(q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}

		span.RecordError(err)
		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	itemsQuery := `
		SELECT id, order_id, inventory_line_id, product_id, product_name, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY inventory_line_id
	`

	rows, err := q.Query(ctx, itemsQuery, order.ID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.InventoryLineID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}

		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to iterate order items: %w", err)
	}

	return order, nil
}
