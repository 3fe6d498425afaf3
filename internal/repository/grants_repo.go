package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MunnymanCommunications/gemdesign/internal/models"
)

var ErrNotFound = errors.New("not found")

// GrantsRepository stores operator-set tier overrides (admin_grants table).
type GrantsRepository struct {
	pool *pgxpool.Pool
}

func NewGrantsRepository(pool *pgxpool.Pool) *GrantsRepository {
	return &GrantsRepository{pool: pool}
}

// GetByUserID retrieves the admin grant for a user. A missing row is normal
// (most users have no grant) and returns ErrNotFound.
func (r *GrantsRepository) GetByUserID(ctx context.Context, userID string) (*models.AdminGrant, error) {
	query := `
		SELECT user_id, granted_tier, has_free_access, granted_by, note, created_at, updated_at
		FROM entitlement.admin_grants
		WHERE user_id = $1
	`
	return r.scanGrant(r.pool.QueryRow(ctx, query, userID))
}

// Upsert writes a grant keyed by user_id, replacing any existing override.
func (r *GrantsRepository) Upsert(ctx context.Context, g *models.AdminGrant) error {
	query := `
		INSERT INTO entitlement.admin_grants (user_id, granted_tier, has_free_access, granted_by, note)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			granted_tier = EXCLUDED.granted_tier,
			has_free_access = EXCLUDED.has_free_access,
			granted_by = EXCLUDED.granted_by,
			note = EXCLUDED.note,
			updated_at = now()
	`
	_, err := r.pool.Exec(ctx, query, g.UserID, g.GrantedTier, g.HasFreeAccess, g.GrantedBy, g.Note)
	if err != nil {
		return fmt.Errorf("upsert admin grant: %w", err)
	}
	return nil
}

// Delete removes a user's grant. Deleting a non-existent grant is a no-op.
func (r *GrantsRepository) Delete(ctx context.Context, userID string) error {
	query := `DELETE FROM entitlement.admin_grants WHERE user_id = $1`
	if _, err := r.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("delete admin grant: %w", err)
	}
	return nil
}

// List returns grants ordered by most recently updated.
func (r *GrantsRepository) List(ctx context.Context, limit int) ([]*models.AdminGrant, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	query := `
		SELECT user_id, granted_tier, has_free_access, granted_by, note, created_at, updated_at
		FROM entitlement.admin_grants
		ORDER BY updated_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list admin grants: %w", err)
	}
	defer rows.Close()

	var grants []*models.AdminGrant
	for rows.Next() {
		g := &models.AdminGrant{}
		err := rows.Scan(&g.UserID, &g.GrantedTier, &g.HasFreeAccess, &g.GrantedBy, &g.Note, &g.CreatedAt, &g.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan admin grant row: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (r *GrantsRepository) scanGrant(row pgx.Row) (*models.AdminGrant, error) {
	g := &models.AdminGrant{}
	err := row.Scan(&g.UserID, &g.GrantedTier, &g.HasFreeAccess, &g.GrantedBy, &g.Note, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan admin grant: %w", err)
	}
	return g, nil
}
