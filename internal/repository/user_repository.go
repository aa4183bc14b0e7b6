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

type UserRepository interface {
	GetUser(ctx context.Context, q db.Querier, userID int64) (*domain.User, error)
	GetUserAddress(ctx context.Context, q db.Querier, userID, addressID int64) (*domain.Address, error)
}

type userRepo struct {
	logger *zap.Logger
	tracer trace.Tracer
}

func NewUserRepository(logger *zap.Logger) UserRepository {
	return &userRepo{
		logger: logger,
		tracer: otel.Tracer("user_repository"),
	}
}

func (r *userRepo) GetUser(ctx context.Context, q db.Querier, userID int64) (*domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.GetUser")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	query := `
		SELECT id, email, push_token
		FROM users
		WHERE id = $1
	`

	var user domain.User
	err := q.QueryRow(ctx, query, userID).Scan(&user.ID, &user.Email, &user.PushToken)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to query user", zap.Int64("user_id", userID), zap.Error(err))

		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return &user, nil
}

// GetUserAddress returns the address only when it belongs to userID.
func (r *userRepo) GetUserAddress(ctx context.Context, q db.Querier, userID, addressID int64) (*domain.Address, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.GetUserAddress")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
		attribute.Int64("address_id", addressID),
	)

	query := `
		SELECT id, user_id
		FROM addresses
		WHERE id = $1 AND user_id = $2
	`

	var address domain.Address
	err := q.QueryRow(ctx, query, addressID, userID).Scan(&address.ID, &address.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAddressNotFound
		}

		span.RecordError(err)
		mylogger.Error(ctx, r.logger, "Failed to query address", zap.Int64("address_id", addressID), zap.Error(err))

		return nil, fmt.Errorf("failed to query address: %w", err)
	}

	return &address, nil
}
