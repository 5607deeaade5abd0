package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/justinndidit/eventPipeline/internal/models"
	"github.com/rs/zerolog"
)

type InAppRepo struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

func NewInAppRepo(pool *pgxpool.Pool, logger *zerolog.Logger) *InAppRepo {
	return &InAppRepo{pool: pool, logger: logger}
}

func (r *InAppRepo) InsertInApp(ctx context.Context, n *models.InAppNotification) error {
	query := `
		INSERT INTO in_app_notifications (
			id, user_id, title, message, type, category, priority,
			action_type, action_url, action_data, is_read, is_archived,
			expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false, false, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		n.ID, n.UserID, n.Title, n.Message, n.Type, n.Category, n.Priority,
		n.ActionType, n.ActionURL, n.ActionData, n.ExpiresAt, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert in-app notification: %w", err)
	}

	return nil
}

// ListForUser returns a user's inbox newest-first. Expired and archived
// rows are excluded; unreadOnly narrows to unread.
func (r *InAppRepo) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.InAppNotification, int, error) {
	where := `
		WHERE user_id = $1 AND NOT is_archived
		  AND (expires_at IS NULL OR expires_at > now())
	`
	if unreadOnly {
		where += ` AND NOT is_read`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM in_app_notifications `+where, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count in-app notifications: %w", err)
	}

	query := `
		SELECT id, user_id, title, message, type, category, priority,
		       action_type, action_url, action_data, is_read, is_archived,
		       expires_at, created_at, read_at
		FROM in_app_notifications ` + where + `
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list in-app notifications: %w", err)
	}
	defer rows.Close()

	items := make([]models.InAppNotification, 0, limit)
	for rows.Next() {
		var n models.InAppNotification
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Category,
			&n.Priority, &n.ActionType, &n.ActionURL, &n.ActionData,
			&n.IsRead, &n.IsArchived, &n.ExpiresAt, &n.CreatedAt, &n.ReadAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan in-app notification: %w", err)
		}
		items = append(items, n)
	}

	return items, total, rows.Err()
}

// MarkRead is user-scoped and idempotent: re-reading a read row changes
// nothing, and a row belonging to another user reports ErrNotFound.
func (r *InAppRepo) MarkRead(ctx context.Context, userID string, id uuid.UUID) error {
	query := `
		UPDATE in_app_notifications
		SET is_read = true, read_at = COALESCE(read_at, $1)
		WHERE id = $2 AND user_id = $3
	`
	tag, err := r.pool.Exec(ctx, query, time.Now().UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark in-app notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *InAppRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE in_app_notifications
		SET is_read = true, read_at = COALESCE(read_at, $1)
		WHERE user_id = $2 AND NOT is_read
	`
	tag, err := r.pool.Exec(ctx, query, time.Now().UTC(), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all in-app notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *InAppRepo) Archive(ctx context.Context, userID string, id uuid.UUID) error {
	query := `
		UPDATE in_app_notifications SET is_archived = true
		WHERE id = $1 AND user_id = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to archive in-app notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *InAppRepo) UnreadCount(ctx context.Context, userID string) (int64, error) {
	query := `
		SELECT count(*) FROM in_app_notifications
		WHERE user_id = $1 AND NOT is_read AND NOT is_archived
		  AND (expires_at IS NULL OR expires_at > now())
	`
	var count int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread in-app notifications: %w", err)
	}
	return count, nil
}
