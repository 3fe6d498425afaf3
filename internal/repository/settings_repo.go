package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MunnymanCommunications/gemdesign/internal/models"
)

// SettingsRepository stores the single admin_settings row holding processor
// price identifiers.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Get returns the settings row, or ErrNotFound when none has been created
// yet (fresh installation before the admin configures price IDs).
func (r *SettingsRepository) Get(ctx context.Context) (*models.AdminSettings, error) {
	query := `
		SELECT id, stripe_base_price_id, stripe_pro_price_id, stripe_enterprise_price_id, updated_at
		FROM entitlement.admin_settings
		ORDER BY updated_at DESC
		LIMIT 1
	`
	s := &models.AdminSettings{}
	err := r.pool.QueryRow(ctx, query).Scan(
		&s.ID, &s.StripeBasePriceID, &s.StripeProPriceID, &s.StripeEnterprisePriceID, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan admin settings: %w", err)
	}
	return s, nil
}

// Upsert replaces the settings row.
func (r *SettingsRepository) Upsert(ctx context.Context, s *models.AdminSettings) error {
	if s.ID == "" {
		if existing, err := r.Get(ctx); err == nil {
			s.ID = existing.ID
		} else {
			s.ID = uuid.New().String()
		}
	}
	query := `
		INSERT INTO entitlement.admin_settings (id, stripe_base_price_id, stripe_pro_price_id, stripe_enterprise_price_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			stripe_base_price_id = EXCLUDED.stripe_base_price_id,
			stripe_pro_price_id = EXCLUDED.stripe_pro_price_id,
			stripe_enterprise_price_id = EXCLUDED.stripe_enterprise_price_id,
			updated_at = now()
	`
	_, err := r.pool.Exec(ctx, query, s.ID, s.StripeBasePriceID, s.StripeProPriceID, s.StripeEnterprisePriceID)
	if err != nil {
		return fmt.Errorf("upsert admin settings: %w", err)
	}
	return nil
}
