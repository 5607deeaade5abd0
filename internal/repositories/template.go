package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/justinndidit/eventPipeline/internal/models"
	"github.com/rs/zerolog"
)

// ErrDuplicate is returned when an insert hits a unique constraint.
var ErrDuplicate = errors.New("duplicate")

type TemplateRepo struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

func NewTemplateRepo(pool *pgxpool.Pool, logger *zerolog.Logger) *TemplateRepo {
	return &TemplateRepo{pool: pool, logger: logger}
}

func (r *TemplateRepo) Insert(ctx context.Context, t *models.Template) error {
	query := `
		INSERT INTO notification_templates (id, name, type, subject, content, html_content, variables, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.Name, t.Type, t.Subject, t.Content, t.HTMLContent,
		t.Variables, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert template: %w", err)
	}

	return nil
}

func (r *TemplateRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	query := `
		SELECT id, name, type, subject, content, html_content, variables, created_at, updated_at
		FROM notification_templates WHERE id = $1
	`

	var t models.Template
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Type, &t.Subject, &t.Content, &t.HTMLContent,
		&t.Variables, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return &t, nil
}

func (r *TemplateRepo) List(ctx context.Context, limit, offset int) ([]models.Template, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM notification_templates`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count templates: %w", err)
	}

	query := `
		SELECT id, name, type, subject, content, html_content, variables, created_at, updated_at
		FROM notification_templates
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	templates := make([]models.Template, 0, limit)
	for rows.Next() {
		var t models.Template
		if err := rows.Scan(
			&t.ID, &t.Name, &t.Type, &t.Subject, &t.Content, &t.HTMLContent,
			&t.Variables, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}

	return templates, total, rows.Err()
}
