package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/justinndidit/eventPipeline/internal/models"
	"github.com/rs/zerolog"
)

type BatchRepo struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

func NewBatchRepo(pool *pgxpool.Pool, logger *zerolog.Logger) *BatchRepo {
	return &BatchRepo{pool: pool, logger: logger}
}

const batchColumns = `id, template_id, type, total, sent, delivered, failed, status, scheduled_at, started_at, completed_at, created_at`

func scanBatch(row pgx.Row) (*models.Batch, error) {
	var b models.Batch
	err := row.Scan(
		&b.ID, &b.TemplateID, &b.Type, &b.Total, &b.Sent, &b.Delivered,
		&b.Failed, &b.Status, &b.ScheduledAt, &b.StartedAt, &b.CompletedAt,
		&b.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan batch: %w", err)
	}
	return &b, nil
}

func (r *BatchRepo) Insert(ctx context.Context, b *models.Batch) error {
	query := `
		INSERT INTO notification_batches (id, template_id, type, total, status, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query, b.ID, b.TemplateID, b.Type, b.Total, b.Status, b.ScheduledAt, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}

	return nil
}

func (r *BatchRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM notification_batches WHERE id = $1`
	return scanBatch(r.pool.QueryRow(ctx, query, id))
}

// RecordOutcome bumps the batch counter for one member outcome. A batch
// completes when every member has been sent or terminally failed; the
// first call that closes it returns the closed batch so the caller can
// publish completion. Counters only ever increase.
func (r *BatchRepo) RecordOutcome(ctx context.Context, id uuid.UUID, outcome string) (*models.Batch, error) {
	var column string
	switch outcome {
	case models.StatusSent:
		column = "sent"
	case models.StatusDelivered:
		column = "delivered"
	case models.StatusFailed:
		column = "failed"
	default:
		return nil, fmt.Errorf("unknown batch outcome %q", outcome)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin batch update: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`
		UPDATE notification_batches
		SET %s = %s + 1,
		    status = CASE WHEN status = $1 THEN $2 ELSE status END,
		    started_at = COALESCE(started_at, now())
		WHERE id = $3
		RETURNING total, sent, failed, status
	`, column, column)

	var total, sent, failed int
	var status string
	err = tx.QueryRow(ctx, query, models.BatchStatusPending, models.BatchStatusProcessing, id).
		Scan(&total, &sent, &failed, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update batch counters: %w", err)
	}

	var completed *models.Batch
	if sent+failed >= total && status != models.BatchStatusCompleted {
		finish := `
			UPDATE notification_batches SET status = $1, completed_at = $2
			WHERE id = $3 AND completed_at IS NULL
			RETURNING ` + batchColumns
		b, err := scanBatch(tx.QueryRow(ctx, finish, models.BatchStatusCompleted, time.Now().UTC(), id))
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("failed to complete batch: %w", err)
		}
		if b != nil {
			completed = b
			r.logger.Info().Str("batch_id", id.String()).Int("total", total).Msg("Batch completed")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit batch update: %w", err)
	}
	return completed, nil
}
