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

// ErrNotFound is returned when a row does not exist or a guarded status
// transition matched no row (the status had already moved on).
var ErrNotFound = errors.New("not found")

const notificationColumns = `
	id, type, priority, recipient, template_id, subject, content, html_content,
	variables, metadata, status, scheduled_at, expires_at, retry_count,
	max_retries, error_message, batch_id, provider_id, created_at, updated_at,
	sent_at, delivered_at, failed_at`

type NotificationRepo struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

func NewNotificationRepo(pool *pgxpool.Pool, logger *zerolog.Logger) *NotificationRepo {
	return &NotificationRepo{pool: pool, logger: logger}
}

func scanNotification(row pgx.Row) (*models.Notification, error) {
	var n models.Notification
	err := row.Scan(
		&n.ID, &n.Type, &n.Priority, &n.Recipient, &n.TemplateID, &n.Subject,
		&n.Content, &n.HTMLContent, &n.Variables, &n.Metadata, &n.Status,
		&n.ScheduledAt, &n.ExpiresAt, &n.RetryCount, &n.MaxRetries,
		&n.ErrorMessage, &n.BatchID, &n.ProviderID, &n.CreatedAt, &n.UpdatedAt,
		&n.SentAt, &n.DeliveredAt, &n.FailedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}
	return &n, nil
}

func (r *NotificationRepo) Insert(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (
			id, type, priority, recipient, template_id, subject, content,
			html_content, variables, metadata, status, scheduled_at, expires_at,
			retry_count, max_retries, batch_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
	`

	_, err := r.pool.Exec(ctx, query,
		n.ID, n.Type, n.Priority, n.Recipient, n.TemplateID, n.Subject,
		n.Content, n.HTMLContent, n.Variables, n.Metadata, n.Status,
		n.ScheduledAt, n.ExpiresAt, n.RetryCount, n.MaxRetries, n.BatchID,
		n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("notification_id", n.ID.String()).Msg("Failed to insert notification")
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	return nil
}

func (r *NotificationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	return scanNotification(r.pool.QueryRow(ctx, query, id))
}

// ClaimDue atomically flips due pending rows to sending and returns them,
// urgent first, FIFO inside a priority. SKIP LOCKED keeps concurrent
// scheduler ticks from double-claiming.
func (r *NotificationRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	query := `
		UPDATE notifications SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM notifications
			WHERE status = $3
			  AND (scheduled_at IS NULL OR scheduled_at <= $2)
			  AND (expires_at IS NULL OR expires_at > $2)
			ORDER BY
				CASE priority
					WHEN 'urgent' THEN 4
					WHEN 'high' THEN 3
					WHEN 'normal' THEN 2
					ELSE 1
				END DESC,
				created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + notificationColumns

	rows, err := r.pool.Query(ctx, query, models.StatusSending, now, models.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due notifications: %w", err)
	}
	defer rows.Close()

	claimed := make([]models.Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, *n)
	}

	return claimed, rows.Err()
}

// ExpireOverdue fails pending rows whose send deadline has passed.
func (r *NotificationRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE notifications
		SET status = $1, error_message = 'expired before dispatch', failed_at = $2, updated_at = $2
		WHERE status = $3 AND expires_at IS NOT NULL AND expires_at <= $2
	`
	tag, err := r.pool.Exec(ctx, query, models.StatusFailed, now, models.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to expire notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkSent records a successful dispatch. The update asserts the row is
// still sending; a zero-row update reports ErrNotFound.
func (r *NotificationRepo) MarkSent(ctx context.Context, id uuid.UUID, providerID string, at time.Time) error {
	query := `
		UPDATE notifications
		SET status = $1, provider_id = NULLIF($2, ''), sent_at = $3, updated_at = $3, error_message = NULL
		WHERE id = $4 AND status = $5
	`
	tag, err := r.pool.Exec(ctx, query, models.StatusSent, providerID, at, id, models.StatusSending)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDelivered applies a delivery receipt to a sent row; calling it twice
// is a no-op the second time.
func (r *NotificationRepo) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE notifications
		SET status = $1, delivered_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	tag, err := r.pool.Exec(ctx, query, models.StatusDelivered, at, id, models.StatusSent)
	if err != nil {
		return fmt.Errorf("failed to mark notification delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed terminally fails a sending row.
func (r *NotificationRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	query := `
		UPDATE notifications
		SET status = $1, error_message = $2, failed_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	tag, err := r.pool.Exec(ctx, query, models.StatusFailed, reason, at, id, models.StatusSending)
	if err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Requeue returns a sending row to pending with an incremented retry
// count and the next attempt time.
func (r *NotificationRepo) Requeue(ctx context.Context, id uuid.UUID, reason string, nextAttempt time.Time) error {
	query := `
		UPDATE notifications
		SET status = $1, retry_count = retry_count + 1, error_message = $2,
		    scheduled_at = $3, updated_at = now()
		WHERE id = $4 AND status = $5 AND retry_count < max_retries
	`
	tag, err := r.pool.Exec(ctx, query, models.StatusPending, reason, nextAttempt, id, models.StatusSending)
	if err != nil {
		return fmt.Errorf("failed to requeue notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Cancel aborts a pending notification before dispatch.
func (r *NotificationRepo) Cancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notifications SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`
	tag, err := r.pool.Exec(ctx, query, models.StatusCancelled, id, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// StatsForRecipient aggregates over the window starting at since (zero
// time means all).
func (r *NotificationRepo) StatsForRecipient(ctx context.Context, recipient string, since time.Time) (*models.NotificationStats, error) {
	query := `
		SELECT type, status, count(*)
		FROM notifications
		WHERE recipient = $1 AND ($2::timestamptz IS NULL OR created_at >= $2)
		GROUP BY type, status
	`
	var sinceArg *time.Time
	if !since.IsZero() {
		sinceArg = &since
	}

	rows, err := r.pool.Query(ctx, query, recipient, sinceArg)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate notification stats: %w", err)
	}
	defer rows.Close()

	stats := &models.NotificationStats{ByType: make(map[string]int64)}
	for rows.Next() {
		var typ, status string
		var count int64
		if err := rows.Scan(&typ, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats.Total += count
		stats.ByType[typ] += count
		switch status {
		case models.StatusSent:
			stats.Sent += count
		case models.StatusDelivered:
			stats.Delivered += count
		case models.StatusFailed:
			stats.Failed += count
		case models.StatusPending, models.StatusSending:
			stats.Pending += count
		}
	}

	return stats, rows.Err()
}
