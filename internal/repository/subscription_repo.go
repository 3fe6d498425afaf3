package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MunnymanCommunications/gemdesign/internal/models"
)

// SubscriptionRepository stores billing-owned subscription rows
// (user_subscriptions table). One row per user, enforced by a unique index
// on user_id; every write path is an upsert keyed on it.
type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

const subscriptionColumns = `
	id, user_id, tier, status, max_documents,
	stripe_customer_id, stripe_subscription_id, last_synced_at,
	created_at, updated_at
`

// GetByUserID retrieves the subscription row for a user, regardless of
// status. A missing row means the user never subscribed or the row lapsed
// and was removed; callers treat ErrNotFound as "no subscription".
func (r *SubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM entitlement.user_subscriptions
		WHERE user_id = $1
	`
	return r.scanSubscription(r.pool.QueryRow(ctx, query, userID))
}

// Upsert writes the subscription row from billing-service, keyed on
// user_id. Repeated webhook deliveries for the same user update in place
// rather than inserting duplicates.
func (r *SubscriptionRepository) Upsert(ctx context.Context, s *models.Subscription) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	query := `
		INSERT INTO entitlement.user_subscriptions (
			id, user_id, tier, status, max_documents,
			stripe_customer_id, stripe_subscription_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			max_documents = EXCLUDED.max_documents,
			stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, entitlement.user_subscriptions.stripe_customer_id),
			stripe_subscription_id = COALESCE(EXCLUDED.stripe_subscription_id, entitlement.user_subscriptions.stripe_subscription_id),
			updated_at = now()
	`
	_, err := r.pool.Exec(ctx, query,
		s.ID, s.UserID, s.Tier, s.Status, s.MaxDocuments,
		s.StripeCustomerID, s.StripeSubscriptionID,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// UpsertDefault synthesizes the free-tier row for a user with no
// subscription. DO NOTHING on conflict keeps it safe under concurrent
// refreshes: the first writer wins and later calls read the existing row.
func (r *SubscriptionRepository) UpsertDefault(ctx context.Context, userID string, maxDocuments int) (*models.Subscription, error) {
	insert := `
		INSERT INTO entitlement.user_subscriptions (id, user_id, tier, status, max_documents)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, insert,
		uuid.New().String(), userID, models.TierFree, models.StatusActive, maxDocuments,
	)
	if err != nil {
		return nil, fmt.Errorf("insert default subscription: %w", err)
	}
	return r.GetByUserID(ctx, userID)
}

// TouchSynced stamps the row after a successful refresh so the periodic
// sync can skip recently reconciled users.
func (r *SubscriptionRepository) TouchSynced(ctx context.Context, userID string) error {
	query := `UPDATE entitlement.user_subscriptions SET last_synced_at = now() WHERE user_id = $1`
	if _, err := r.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("touch last_synced_at: %w", err)
	}
	return nil
}

// ListStaleUserIDs returns users whose subscription has not been
// reconciled since the cutoff, oldest first. Never-synced rows sort first.
func (r *SubscriptionRepository) ListStaleUserIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT user_id
		FROM entitlement.user_subscriptions
		WHERE last_synced_at IS NULL OR last_synced_at < $1
		ORDER BY last_synced_at ASC NULLS FIRST
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale subscriptions: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale user_id: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

func (r *SubscriptionRepository) scanSubscription(row pgx.Row) (*models.Subscription, error) {
	s := &models.Subscription{}
	err := row.Scan(
		&s.ID, &s.UserID, &s.Tier, &s.Status, &s.MaxDocuments,
		&s.StripeCustomerID, &s.StripeSubscriptionID, &s.LastSyncedAt,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	return s, nil
}
