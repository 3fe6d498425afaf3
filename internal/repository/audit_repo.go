package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MunnymanCommunications/gemdesign/internal/models"
)

// AuditRepository records entitlement-affecting mutations
// (entitlement_audit table) for the admin console history view.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Create inserts an audit entry.
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	query := `
		INSERT INTO entitlement.entitlement_audit (id, user_id, actor, action, detail)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, entry.ID, entry.UserID, entry.Actor, entry.Action, entry.Detail)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByUser returns the most recent entries affecting a user.
func (r *AuditRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, actor, action, detail, created_at
		FROM entitlement.entitlement_audit
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		e := &models.AuditEntry{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.Actor, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Record is a helper to log an action with detail fields.
func (r *AuditRepository) Record(ctx context.Context, userID, actor, action string, detail map[string]interface{}) error {
	return r.Create(ctx, &models.AuditEntry{
		UserID: userID,
		Actor:  actor,
		Action: action,
		Detail: detail,
	})
}
