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

type CouponRepository interface {
	GetCoupon(ctx context.Context, q db.Querier, couponID int64) (*domain.Coupon, error)
}

type couponRepo struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewCouponRepository(logger *zap.Logger) CouponRepository {
	return &couponRepo{
		logger: logger,
		tracer: otel.Tracer("coupon_repository"),
	}
}

func (r *couponRepo) GetCoupon(ctx context.Context, q db.Querier, couponID int64) (*domain.Coupon, error) {
	ctx, span := r.tracer.Start(ctx, "CouponRepository.GetCoupon")
	defer span.End()

	span.SetAttributes(attribute.Int64("coupon_id", couponID))

	query := `
		SELECT id, code, type, discount, expiry_date, is_active
		FROM coupons
		WHERE id = $1
	`

	var c domain.Coupon
	err := q.QueryRow(ctx, query, couponID).Scan(
		&c.ID,
		&c.Code,
		&c.Type,
		&c.Discount,
		&c.ExpiryDate,
		&c.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCouponNotFound
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to query coupon", zap.Int64("coupon_id", couponID), zap.Error(err))

		return nil, fmt.Errorf("failed to query coupon: %w", err)
	}

	return &c, nil
}
