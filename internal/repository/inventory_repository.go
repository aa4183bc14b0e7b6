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

type InventoryRepository interface {
	GetLine(ctx context.Context, q db.Querier, lineID int64) (*domain.InventoryLine, error)
	Reserve(ctx context.Context, tx pgx.Tx, lineID int64, quantity int32) (*domain.Reservation, error)
}

type inventoryRepo struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewInventoryRepository(logger *zap.Logger) InventoryRepository {
	return &inventoryRepo{
		logger: logger,
		tracer: otel.Tracer("inventory_repository"),
	}
}

func (r *inventoryRepo) GetLine(ctx context.Context, q db.Querier, lineID int64) (*domain.InventoryLine, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.GetLine")
	defer span.End()

	span.SetAttributes(attribute.Int64("inventory_line_id", lineID))

	query := `
		SELECT l.id, l.product_id, p.name, p.price, l.color, l.size, l.quantity
		FROM inventory_lines l
		JOIN products p ON p.id = l.product_id
		WHERE l.id = $1
	`

	var line domain.InventoryLine
	err := q.QueryRow(ctx, query, lineID).Scan(
		&line.ID,
		&line.ProductID,
		&line.ProductName,
		&line.Price,
		&line.Color,
		&line.Size,
		&line.Quantity,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInventoryLineNotFound
		}

		span.RecordError(err)
		return nil, fmt.Errorf("failed to query inventory line: %w", err)
	}

	return &line, nil
}

// Reserve locks the inventory line until tx ends, checks that quantity is
// available and decrements it. The returned unit price is the product price
// at the moment of the reservation.
func (r *inventoryRepo) Reserve(ctx context.Context, tx pgx.Tx, lineID int64, quantity int32) (*domain.Reservation, error) {
	ctx, span := r.tracer.Start(ctx, "InventoryRepository.Reserve")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("inventory_line_id", lineID),
		attribute.Int("quantity", int(quantity)),
	)

	lockQuery := `
		SELECT l.quantity, l.product_id, p.name, p.price
		FROM inventory_lines l
		JOIN products p ON p.id = l.product_id
		WHERE l.id = $1
		FOR UPDATE OF l
	`

	var (
		available   int32
		productID   int64
		productName string
		price       decimal.Decimal
	)

	err := tx.QueryRow(ctx, lockQuery, lineID).Scan(&available, &productID, &productName, &price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", domain.ErrInventoryLineNotFound, lineID)
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to lock inventory line", zap.Int64("inventory_line_id", lineID), zap.Error(err))

		return nil, fmt.Errorf("failed to lock inventory line: %w", err)
	}

	if available < quantity {
		mylogger.Warn(
			ctx,
			r.logger,
			"Insufficient stock",
			zap.Int64("inventory_line_id", lineID),
			zap.Int32("available", available),
			zap.Int32("requested", quantity),
		)

		return nil, fmt.Errorf("%w: line %d has %d, requested %d", domain.ErrInsufficientStock, lineID, available, quantity)
	}

	updateQuery := `
		UPDATE inventory_lines
		SET quantity = quantity - $1
		WHERE id = $2
		RETURNING quantity
	`

	var remaining int32
	if err := tx.QueryRow(ctx, updateQuery, quantity, lineID).Scan(&remaining); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to decrement inventory line", zap.Int64("inventory_line_id", lineID), zap.Error(err))

		return nil, fmt.Errorf("failed to decrement inventory line: %w", err)
	}

	return &domain.Reservation{
		InventoryLineID: lineID,
		ProductID:       productID,
		ProductName:     productName,
		UnitPrice:       price,
		Remaining:       remaining,
	}, nil
}
