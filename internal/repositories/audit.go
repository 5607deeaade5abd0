package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/justinndidit/eventPipeline/internal/models"
	"github.com/rs/zerolog"
)

// ErrConflict is returned when a guarded state transition is not allowed
// from the row's current state.
var ErrConflict = errors.New("conflict")

const auditColumns = `
	id, event_type, category, severity, status, action, user_id,
	organization_id, resource_type, resource_id, resource_name, metadata,
	tags, compliance_flags, retention_policy, source_event_id, timestamp,
	created_at`

// AuditFilter narrows event queries. Zero values mean "any".
type AuditFilter struct {
	UserID    string
	EventType string
	Category  string
	Severity  string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

type AuditRepo struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

func NewAuditRepo(pool *pgxpool.Pool, logger *zerolog.Logger) *AuditRepo {
	return &AuditRepo{pool: pool, logger: logger}
}

func scanAuditEvent(row pgx.Row) (*models.AuditEvent, error) {
	var e models.AuditEvent
	err := row.Scan(
		&e.ID, &e.EventType, &e.Category, &e.Severity, &e.Status, &e.Action,
		&e.UserID, &e.OrganizationID, &e.ResourceType, &e.ResourceID,
		&e.ResourceName, &e.Metadata, &e.Tags, &e.ComplianceFlags,
		&e.RetentionPolicy, &e.SourceEventID, &e.Timestamp, &e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit event: %w", err)
	}
	return &e, nil
}

// Insert appends one audit row. When the row carries a source event id the
// insert is idempotent: a bus redelivery of the same envelope hits the
// partial unique index and reports inserted=false instead of erroring.
func (r *AuditRepo) Insert(ctx context.Context, e *models.AuditEvent) (bool, error) {
	query := `
		INSERT INTO audit_events (
			id, event_type, category, severity, status, action, user_id,
			organization_id, resource_type, resource_id, resource_name,
			metadata, tags, compliance_flags, retention_policy,
			source_event_id, timestamp, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
		ON CONFLICT (source_event_id) WHERE source_event_id <> '' DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		e.ID, e.EventType, e.Category, e.Severity, e.Status, e.Action,
		e.UserID, e.OrganizationID, e.ResourceType, e.ResourceID,
		e.ResourceName, e.Metadata, e.Tags, e.ComplianceFlags,
		e.RetentionPolicy, e.SourceEventID, e.Timestamp, e.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert audit event: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *AuditRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditEvent, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_events WHERE id = $1`
	return scanAuditEvent(r.pool.QueryRow(ctx, query, id))
}

func (f *AuditFilter) whereClause() (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}

	if f.UserID != "" {
		add("user_id = ?", f.UserID)
	}
	if f.EventType != "" {
		add("event_type = ?", f.EventType)
	}
	if f.Category != "" {
		add("category = ?", f.Category)
	}
	if f.Severity != "" {
		add("severity = ?", f.Severity)
	}
	if f.StartTime != nil {
		add("timestamp >= ?", *f.StartTime)
	}
	if f.EndTime != nil {
		add("timestamp <= ?", *f.EndTime)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Query returns matching events newest-first plus the unpaginated total.
func (r *AuditRepo) Query(ctx context.Context, f AuditFilter) ([]models.AuditEvent, int, error) {
	where, args := f.whereClause()

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM audit_events`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit events: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM audit_events%s ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`,
		auditColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]models.AuditEvent, 0, f.Limit)
	for rows.Next() {
		e, err := scanAuditEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, *e)
	}

	return events, total, rows.Err()
}

// UserActivity aggregates one user's trail over a window into the summary
// shape.
func (r *AuditRepo) UserActivity(ctx context.Context, userID string, start, end time.Time) (*models.UserActivitySummary, error) {
	summary := &models.UserActivitySummary{
		UserID:     userID,
		BySeverity: make(map[string]int64),
		ByCategory: make(map[string]int64),
	}

	query := `
		SELECT severity, category, count(*), min(timestamp), max(timestamp)
		FROM audit_events
		WHERE user_id = $1 AND timestamp >= $2 AND timestamp <= $3
		GROUP BY severity, category
	`

	rows, err := r.pool.Query(ctx, query, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate user activity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var severity, category string
		var count int64
		var first, last time.Time
		if err := rows.Scan(&severity, &category, &count, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		summary.TotalEvents += count
		summary.BySeverity[severity] += count
		summary.ByCategory[category] += count
		if summary.FirstActivity == nil || first.Before(*summary.FirstActivity) {
			f := first
			summary.FirstActivity = &f
		}
		if summary.LastActivity == nil || last.After(*summary.LastActivity) {
			l := last
			summary.LastActivity = &l
		}
	}

	return summary, rows.Err()
}

// EventsForStandard returns the events carrying a compliance flag inside
// the reporting period, oldest first.
func (r *AuditRepo) EventsForStandard(ctx context.Context, standard string, start, end time.Time) ([]models.AuditEvent, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_events
		WHERE $1 = ANY(compliance_flags) AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC
	`

	rows, err := r.pool.Query(ctx, query, standard, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load compliance events: %w", err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		e, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}

	return events, rows.Err()
}

// Cleanup deletes rows older than the requested cutoff, but never rows
// still inside their retention policy window. Returns deleted and
// retained-by-policy counts.
func (r *AuditRepo) Cleanup(ctx context.Context, cutoff time.Time, now time.Time) (int64, int64, error) {
	retainQuery := `
		SELECT count(*) FROM audit_events
		WHERE timestamp < $1 AND timestamp >= $2 - CASE retention_policy
			WHEN '7_years' THEN interval '7 years'
			WHEN '3_years' THEN interval '3 years'
			ELSE interval '1 year'
		END
	`
	var retained int64
	if err := r.pool.QueryRow(ctx, retainQuery, cutoff, now).Scan(&retained); err != nil {
		return 0, 0, fmt.Errorf("failed to count retained audit events: %w", err)
	}

	deleteQuery := `
		DELETE FROM audit_events
		WHERE timestamp < $1 AND timestamp < $2 - CASE retention_policy
			WHEN '7_years' THEN interval '7 years'
			WHEN '3_years' THEN interval '3 years'
			ELSE interval '1 year'
		END
	`
	tag, err := r.pool.Exec(ctx, deleteQuery, cutoff, now)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to clean up audit events: %w", err)
	}

	r.logger.Info().
		Int64("deleted", tag.RowsAffected()).
		Int64("retained", retained).
		Time("cutoff", cutoff).
		Msg("Audit cleanup finished")

	return tag.RowsAffected(), retained, nil
}

// ── security events ───────────────────────────────────────────────────

func (r *AuditRepo) InsertSecurityEvent(ctx context.Context, e *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (id, title, description, severity, status, user_id, audit_event_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.Title, e.Description, e.Severity, e.Status, e.UserID,
		e.AuditEventID, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}

	return nil
}

func (r *AuditRepo) GetSecurityEvent(ctx context.Context, id uuid.UUID) (*models.SecurityEvent, error) {
	query := `
		SELECT id, title, description, severity, status, user_id, audit_event_id, created_at, updated_at
		FROM security_events WHERE id = $1
	`

	var e models.SecurityEvent
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.Title, &e.Description, &e.Severity, &e.Status, &e.UserID,
		&e.AuditEventID, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get security event: %w", err)
	}

	return &e, nil
}

func (r *AuditRepo) ListSecurityEvents(ctx context.Context, status string, since time.Time, limit, offset int) ([]models.SecurityEvent, int, error) {
	where := ` WHERE created_at >= $1`
	countArgs := []any{since}
	if status != "" {
		where += ` AND status = $2`
		countArgs = append(countArgs, status)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM security_events`+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count security events: %w", err)
	}

	query := `
		SELECT id, title, description, severity, status, user_id, audit_event_id, created_at, updated_at
		FROM security_events` + where + `
		ORDER BY created_at DESC
	`
	args := countArgs
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list security events: %w", err)
	}
	defer rows.Close()

	events := make([]models.SecurityEvent, 0, limit)
	for rows.Next() {
		var e models.SecurityEvent
		if err := rows.Scan(
			&e.ID, &e.Title, &e.Description, &e.Severity, &e.Status, &e.UserID,
			&e.AuditEventID, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, e)
	}

	return events, total, rows.Err()
}

// TransitionSecurityEvent moves an investigation to a new state. The state
// machine is checked against the current row inside the statement; an
// illegal move reports ErrConflict.
func (r *AuditRepo) TransitionSecurityEvent(ctx context.Context, id uuid.UUID, to string) (*models.SecurityEvent, error) {
	current, err := r.GetSecurityEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransitionSecurity(current.Status, to) {
		return nil, fmt.Errorf("%w: cannot move security event from %s to %s", ErrConflict, current.Status, to)
	}

	query := `
		UPDATE security_events SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
		RETURNING id, title, description, severity, status, user_id, audit_event_id, created_at, updated_at
	`

	var e models.SecurityEvent
	err = r.pool.QueryRow(ctx, query, to, id, current.Status).Scan(
		&e.ID, &e.Title, &e.Description, &e.Severity, &e.Status, &e.UserID,
		&e.AuditEventID, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to transition security event: %w", err)
	}

	return &e, nil
}
