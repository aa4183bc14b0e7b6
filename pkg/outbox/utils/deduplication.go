package utils

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/checkout-pipeline/pkg/mylogger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ClaimEvent records eventID in processed_events inside tx. It reports false
// when the id was already recorded, in which case the caller must skip the
// event. The claim only becomes durable when tx commits, so a rolled back
// attempt leaves the event claimable again.
func ClaimEvent(ctx context.Context, tx pgx.Tx, logger *zap.Logger, eventID string) (bool, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("dedup.event_id", eventID))

	query := `
		INSERT INTO processed_events (event_id)
		VALUES ($1)
		ON CONFLICT (event_id) DO NOTHING
	`

	tag, err := tx.Exec(ctx, query, eventID)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to claim event: %w", err)
	}

	if tag.RowsAffected() == 0 {
		mylogger.Info(
			ctx,
			logger,
			"Event already processed, skipping",
			zap.String("event_id", eventID),
		)

		return false, nil
	}

	return true, nil
}
