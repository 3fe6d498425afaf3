package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RolesRepository reads operational role assignments (user_roles table).
// Roles are managed by the identity service; this side only reads them.
type RolesRepository struct {
	pool *pgxpool.Pool
}

func NewRolesRepository(pool *pgxpool.Pool) *RolesRepository {
	return &RolesRepository{pool: pool}
}

// GetRoles returns the roles assigned to a user. No rows means no roles,
// not an error.
func (r *RolesRepository) GetRoles(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT role
		FROM entitlement.user_roles
		WHERE user_id = $1
		ORDER BY role
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query user roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
