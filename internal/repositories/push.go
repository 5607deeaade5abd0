package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/justinndidit/eventPipeline/internal/models"
	"github.com/rs/zerolog"
)

type PushSubscriptionRepo struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

func NewPushSubscriptionRepo(pool *pgxpool.Pool, logger *zerolog.Logger) *PushSubscriptionRepo {
	return &PushSubscriptionRepo{pool: pool, logger: logger}
}

// Upsert registers a device. Re-registering an existing
// (user_id, device_token, platform) triple reactivates it and refreshes
// the keys instead of creating a second row.
func (r *PushSubscriptionRepo) Upsert(ctx context.Context, s *models.PushSubscription) error {
	query := `
		INSERT INTO push_subscriptions (
			id, user_id, platform, device_token, endpoint, p256dh_key,
			auth_key, topics, is_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true, $9)
		ON CONFLICT (user_id, device_token, platform) DO UPDATE SET
			endpoint = EXCLUDED.endpoint,
			p256dh_key = EXCLUDED.p256dh_key,
			auth_key = EXCLUDED.auth_key,
			topics = EXCLUDED.topics,
			is_active = true
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		s.ID, s.UserID, s.Platform, s.DeviceToken, s.Endpoint, s.P256dhKey,
		s.AuthKey, s.Topics, s.CreatedAt,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert push subscription: %w", err)
	}

	return nil
}

func (r *PushSubscriptionRepo) ActiveSubscriptions(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	query := `
		SELECT id, user_id, platform, device_token, endpoint, p256dh_key,
		       auth_key, topics, is_active, last_used_at, created_at
		FROM push_subscriptions
		WHERE user_id = $1 AND is_active
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.PushSubscription
	for rows.Next() {
		var s models.PushSubscription
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.Platform, &s.DeviceToken, &s.Endpoint,
			&s.P256dhKey, &s.AuthKey, &s.Topics, &s.IsActive, &s.LastUsedAt,
			&s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan push subscription: %w", err)
		}
		subs = append(subs, s)
	}

	return subs, rows.Err()
}

// Deactivate soft-deletes a device registration so delivery history stays
// attributable.
func (r *PushSubscriptionRepo) Deactivate(ctx context.Context, userID, deviceToken string) error {
	query := `
		UPDATE push_subscriptions SET is_active = false
		WHERE user_id = $1 AND device_token = $2 AND is_active
	`
	tag, err := r.pool.Exec(ctx, query, userID, deviceToken)
	if err != nil {
		return fmt.Errorf("failed to deactivate push subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PushSubscriptionRepo) TouchLastUsed(ctx context.Context, userID string, at time.Time) error {
	query := `UPDATE push_subscriptions SET last_used_at = $1 WHERE user_id = $2 AND is_active`
	if _, err := r.pool.Exec(ctx, query, at, userID); err != nil {
		return fmt.Errorf("failed to touch push subscriptions: %w", err)
	}
	return nil
}
