package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/MunnymanCommunications/gemdesign/internal/cache"
	"github.com/MunnymanCommunications/gemdesign/internal/client"
	"github.com/MunnymanCommunications/gemdesign/internal/models"
	"github.com/MunnymanCommunications/gemdesign/internal/repository"
)

// GrantsAdminStore extends the read-only grant access with the mutations
// the admin console needs.
type GrantsAdminStore interface {
	GrantsStore
	Upsert(ctx context.Context, g *models.AdminGrant) error
	Delete(ctx context.Context, userID string) error
	List(ctx context.Context, limit int) ([]*models.AdminGrant, error)
}

// ProcessorStatusClient reports whether the payment processor is usable.
type ProcessorStatusClient interface {
	ProcessorStatus(ctx context.Context) (*client.ProcessorStatusResponse, error)
}

// AdminService backs the admin console: tier overrides, processor price
// configuration, audit trail. Every mutation invalidates the affected
// user's cached entitlement so the change is visible on the next read.
type AdminService struct {
	grants   GrantsAdminStore
	settings SettingsStore
	audit    AuditStore
	billing  ProcessorStatusClient
	cache    cache.EntitlementCache
	log      zerolog.Logger
}

func NewAdminService(
	grants GrantsAdminStore,
	settings SettingsStore,
	audit AuditStore,
	billing ProcessorStatusClient,
	entCache cache.EntitlementCache,
	log zerolog.Logger,
) *AdminService {
	return &AdminService{
		grants:   grants,
		settings: settings,
		audit:    audit,
		billing:  billing,
		cache:    entCache,
		log:      log.With().Str("component", "admin").Logger(),
	}
}

// SetGrant writes an operator override for a user.
func (s *AdminService) SetGrant(ctx context.Context, userID, actor string, req *models.SetGrantRequest) (*models.AdminGrant, error) {
	if req.GrantedTier != nil && *req.GrantedTier != "" && !models.IsKnownTier(*req.GrantedTier) {
		return nil, fmt.Errorf("unknown tier %q", *req.GrantedTier)
	}

	grant := &models.AdminGrant{
		UserID:        userID,
		GrantedTier:   req.GrantedTier,
		HasFreeAccess: req.HasFreeAccess,
		GrantedBy:     actor,
		Note:          req.Note,
	}
	if err := s.grants.Upsert(ctx, grant); err != nil {
		return nil, err
	}

	s.invalidate(ctx, userID)
	s.recordAudit(ctx, userID, actor, "grant_set", map[string]interface{}{
		"granted_tier":    req.GrantedTier,
		"has_free_access": req.HasFreeAccess,
	})

	s.log.Info().Str("user_id", userID).Str("actor", actor).Msg("admin grant set")
	return s.grants.GetByUserID(ctx, userID)
}

// RemoveGrant deletes a user's override.
func (s *AdminService) RemoveGrant(ctx context.Context, userID, actor string) error {
	if err := s.grants.Delete(ctx, userID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	s.recordAudit(ctx, userID, actor, "grant_removed", nil)
	s.log.Info().Str("user_id", userID).Str("actor", actor).Msg("admin grant removed")
	return nil
}

// ListGrants returns current overrides for the admin console.
func (s *AdminService) ListGrants(ctx context.Context, limit int) ([]*models.AdminGrant, error) {
	return s.grants.List(ctx, limit)
}

// GetSettings returns the admin settings, or an empty row when none exists
// yet.
func (s *AdminService) GetSettings(ctx context.Context) (*models.AdminSettings, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &models.AdminSettings{}, nil
		}
		return nil, err
	}
	return settings, nil
}

// UpdateSettings replaces the processor price identifiers.
func (s *AdminService) UpdateSettings(ctx context.Context, actor string, req *models.UpdateSettingsRequest) (*models.AdminSettings, error) {
	settings := &models.AdminSettings{
		StripeBasePriceID:       req.StripeBasePriceID,
		StripeProPriceID:        req.StripeProPriceID,
		StripeEnterprisePriceID: req.StripeEnterprisePriceID,
	}
	if err := s.settings.Upsert(ctx, settings); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "", actor, "settings_updated", nil)
	s.log.Info().Str("actor", actor).Msg("admin settings updated")
	return s.settings.Get(ctx)
}

// ProcessorStatus checks processor configuration through billing-service,
// so a missing or invalid secret key shows up on the settings page instead
// of at checkout time.
func (s *AdminService) ProcessorStatus(ctx context.Context) (*client.ProcessorStatusResponse, error) {
	return s.billing.ProcessorStatus(ctx)
}

func (s *AdminService) invalidate(ctx context.Context, userID string) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to invalidate cached entitlement")
	}
}

func (s *AdminService) recordAudit(ctx context.Context, userID, actor, action string, detail map[string]interface{}) {
	if err := s.audit.Record(ctx, userID, actor, action, detail); err != nil {
		s.log.Warn().Err(err).Str("action", action).Msg("failed to record audit entry")
	}
}
