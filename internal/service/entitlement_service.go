package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/MunnymanCommunications/gemdesign/internal/cache"
	"github.com/MunnymanCommunications/gemdesign/internal/config"
	"github.com/MunnymanCommunications/gemdesign/internal/models"
	"github.com/MunnymanCommunications/gemdesign/internal/repository"
)

// Stores consumed by the entitlement service. Declared here so tests can
// substitute fakes; the pgx repositories satisfy them.

type RolesStore interface {
	GetRoles(ctx context.Context, userID string) ([]string, error)
}

type GrantsStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.AdminGrant, error)
}

type SubscriptionStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.Subscription, error)
	Upsert(ctx context.Context, s *models.Subscription) error
	UpsertDefault(ctx context.Context, userID string, maxDocuments int) (*models.Subscription, error)
	TouchSynced(ctx context.Context, userID string) error
	ListStaleUserIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

type DocumentsStore interface {
	CountByUser(ctx context.Context, userID string) (int, error)
	ListByUserAndKind(ctx context.Context, userID, kind string, limit int) ([]*models.Document, error)
}

type SettingsStore interface {
	Get(ctx context.Context) (*models.AdminSettings, error)
	Upsert(ctx context.Context, s *models.AdminSettings) error
}

type AuditStore interface {
	Record(ctx context.Context, userID, actor, action string, detail map[string]interface{}) error
}

// BillingReconciler is the billing collaborator contract this service
// relies on: idempotent, safe to retry.
type BillingReconciler interface {
	ReconcileWithProcessor(ctx context.Context, userID string) error
}

// EntitlementService owns entitlement resolution: it fetches the three
// inputs, runs Resolve, and maintains the per-user last-known-good cache.
// Every consumer (route guard, usage display, internal access checks) goes
// through it; nothing reimplements precedence locally.
type EntitlementService struct {
	cfg      *config.Config
	roles    RolesStore
	grants   GrantsStore
	subs     SubscriptionStore
	docs     DocumentsStore
	settings SettingsStore
	audit    AuditStore
	billing  BillingReconciler
	cache    cache.EntitlementCache
	group    singleflight.Group
	log      zerolog.Logger
	now      func() time.Time
}

// NewEntitlementService creates the entitlement service.
func NewEntitlementService(
	cfg *config.Config,
	roles RolesStore,
	grants GrantsStore,
	subs SubscriptionStore,
	docs DocumentsStore,
	settings SettingsStore,
	audit AuditStore,
	billing BillingReconciler,
	entCache cache.EntitlementCache,
	log zerolog.Logger,
) *EntitlementService {
	return &EntitlementService{
		cfg:      cfg,
		roles:    roles,
		grants:   grants,
		subs:     subs,
		docs:     docs,
		settings: settings,
		audit:    audit,
		billing:  billing,
		cache:    entCache,
		log:      log.With().Str("component", "entitlement").Logger(),
		now:      time.Now,
	}
}

// Refresh reconciles with the billing collaborator, re-reads all three
// inputs and recomputes the entitlement. Concurrent calls for the same user
// (page mount plus periodic timer firing together) are collapsed into one
// flight. On collaborator failure the last-known-good record is returned
// together with a CollaboratorUnavailableError; the cached record is never
// erased.
func (s *EntitlementService) Refresh(ctx context.Context, userID string) (*models.EntitlementRecord, error) {
	v, err, _ := s.group.Do(userID, func() (interface{}, error) {
		return s.refresh(ctx, userID)
	})
	record, _ := v.(*models.EntitlementRecord)
	return record, err
}

func (s *EntitlementService) refresh(ctx context.Context, userID string) (*models.EntitlementRecord, error) {
	// billingErr and storeErr degrade differently: with billing down the
	// record store still holds consistent (if possibly stale) inputs, so a
	// fresh resolve is better than the cache. With the store down the
	// inputs themselves are unreadable and the cached record wins.
	var billingErr, storeErr error

	if err := s.billing.ReconcileWithProcessor(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("billing reconcile failed")
		if models.IsCollaboratorUnavailable(err) {
			billingErr = err
		}
	}

	roles, err := s.roles.GetRoles(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to read roles")
		storeErr = &models.CollaboratorUnavailableError{Collaborator: "record store", Err: err}
		roles = nil
	}

	grantRow, err := s.grants.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to read admin grant")
		storeErr = &models.CollaboratorUnavailableError{Collaborator: "record store", Err: err}
		grantRow = nil
	}
	grant := models.NormalizeGrant(grantRow)

	sub, err := s.subs.GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to read subscription")
			storeErr = &models.CollaboratorUnavailableError{Collaborator: "record store", Err: err}
		}
		sub = nil
	}

	// A user with no subscription and no grant gets the free default
	// persisted, keyed on user_id so concurrent refreshes cannot create
	// duplicates. Skipped while degraded: synthesis still happens
	// in-memory below.
	if billingErr == nil && storeErr == nil && sub == nil && grant.Kind == models.NoGrant {
		quota, _ := s.cfg.Quotas.For(models.TierFree)
		created, err := s.subs.UpsertDefault(ctx, userID, quota)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to persist default subscription")
		} else {
			sub = created
		}
	}

	res := Resolve(ResolveInput{
		UserID:       userID,
		Roles:        roles,
		Grant:        grant,
		Subscription: sub,
		Now:          s.now(),
	}, s.cfg.Quotas)

	for _, warning := range res.Warnings {
		s.log.Warn().Str("user_id", userID).Msg(warning)
	}
	s.log.Debug().
		Str("user_id", userID).
		Str("branch", res.Branch).
		Str("tier", res.Record.Tier).
		Str("status", res.Record.Status).
		Str("source", res.Record.Source).
		Bool("degraded", billingErr != nil || storeErr != nil).
		Msg("resolved entitlement")

	if storeErr != nil {
		if cached, ok, _ := s.cache.Get(ctx, userID); ok {
			return cached, storeErr
		}
		return &res.Record, storeErr
	}

	if err := s.cache.Put(ctx, &res.Record); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to cache resolved entitlement")
	}
	if billingErr == nil && sub != nil {
		if err := s.subs.TouchSynced(ctx, userID); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to stamp last_synced_at")
		}
	}

	return &res.Record, billingErr
}

// GetEntitlement returns the current effective entitlement, serving the
// cached record while fresh and refreshing otherwise.
func (s *EntitlementService) GetEntitlement(ctx context.Context, userID string) (*models.EntitlementRecord, error) {
	if cached, ok, _ := s.cache.Get(ctx, userID); ok && !s.IsStale(cached) {
		return cached, nil
	}
	return s.Refresh(ctx, userID)
}

// IsStale reports whether a record is older than the freshness window.
func (s *EntitlementService) IsStale(record *models.EntitlementRecord) bool {
	return s.now().Sub(record.ComputedAt) > s.cfg.Cache.FreshFor
}

// Invalidate drops the cached record for a user, forcing the next read to
// recompute. Called after grant changes and subscription upserts.
func (s *EntitlementService) Invalidate(ctx context.Context, userID string) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to invalidate cached entitlement")
	}
}

// GetRoles exposes role assignments for the admin route guard.
func (s *EntitlementService) GetRoles(ctx context.Context, userID string) ([]string, error) {
	return s.roles.GetRoles(ctx, userID)
}

// IsPastDue reports whether the user's billing subscription is past due.
// Past-due users resolve to the free default but must see a payment notice
// rather than a silent downgrade.
func (s *EntitlementService) IsPastDue(ctx context.Context, userID string) (bool, error) {
	sub, err := s.subs.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read subscription: %w", err)
	}
	return sub.Status == models.StatusPastDue, nil
}

// Notices returns persistent user-facing notices. A past-due payment
// produces a non-dismissible notice directing the user to update billing.
func (s *EntitlementService) Notices(ctx context.Context, userID string) ([]models.Notice, error) {
	pastDue, err := s.IsPastDue(ctx, userID)
	if err != nil {
		return nil, err
	}
	var notices []models.Notice
	if pastDue {
		notices = append(notices, models.Notice{
			Type:        models.NoticePaymentFailed,
			Message:     "Your recent payment failed. Please update your billing information to restore your plan.",
			Dismissible: false,
		})
	}
	return notices, nil
}

// CheckAccess evaluates a route-guard predicate: active entitlement,
// optionally at a minimum tier. Resolution failure denies access: the gate
// fails closed for security-relevant checks.
func (s *EntitlementService) CheckAccess(ctx context.Context, userID, requiredTier string) *models.AccessResponse {
	record, err := s.GetEntitlement(ctx, userID)
	if err != nil || record == nil {
		return &models.AccessResponse{Allowed: false, Reason: "entitlement temporarily unavailable"}
	}
	if !record.IsActive {
		return &models.AccessResponse{Allowed: false, Tier: record.Tier, Reason: "no active entitlement"}
	}
	if requiredTier != "" && !record.HasTierAtLeast(requiredTier) {
		return &models.AccessResponse{
			Allowed: false,
			Tier:    record.Tier,
			Reason:  fmt.Sprintf("requires tier %s or higher", requiredTier),
		}
	}
	return &models.AccessResponse{Allowed: true, Tier: record.Tier}
}

// Usage returns document usage against the resolved quota.
func (s *EntitlementService) Usage(ctx context.Context, userID string) (*models.UsageResponse, error) {
	record, err := s.GetEntitlement(ctx, userID)
	if err != nil && record == nil {
		return nil, err
	}
	used, err := s.docs.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	resp := &models.UsageResponse{
		DocumentsUsed: used,
		MaxDocuments:  record.MaxDocuments,
		Unlimited:     record.Unlimited(),
	}
	if !resp.Unlimited {
		resp.Remaining = record.MaxDocuments - used
		if resp.Remaining < 0 {
			resp.Remaining = 0
		}
	}
	return resp, nil
}

// ListSecurityReports returns a user's satellite security reports.
func (s *EntitlementService) ListSecurityReports(ctx context.Context, userID string, limit int) ([]*models.Document, error) {
	return s.docs.ListByUserAndKind(ctx, userID, models.DocumentKindSecurityReport, limit)
}

// UpsertFromBilling applies a subscription update pushed by billing-service
// after a processor webhook. The tier is taken from the payload or mapped
// from the processor price ID through admin settings.
func (s *EntitlementService) UpsertFromBilling(ctx context.Context, req *models.UpsertSubscriptionRequest) (*models.Subscription, error) {
	tier := req.Tier
	if tier == "" && req.PriceID != "" {
		settings, err := s.settings.Get(ctx)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, &models.ConfigurationError{Field: "admin_settings", Reason: "processor price identifiers not configured"}
			}
			return nil, fmt.Errorf("read admin settings: %w", err)
		}
		tier = settings.TierForPriceID(req.PriceID)
		if tier == "" {
			return nil, &models.ConfigurationError{Field: "price_id", Reason: fmt.Sprintf("no tier mapping for price %q", req.PriceID)}
		}
	}
	if tier == "" {
		return nil, fmt.Errorf("either tier or price_id is required")
	}
	if !models.IsKnownTier(tier) {
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
	if !models.IsKnownStatus(req.Status) {
		// Stored as-is: resolution falls back to the free default for
		// unknown statuses instead of guessing.
		s.log.Warn().Str("user_id", req.UserID).Str("status", req.Status).Msg("subscription upsert with unknown status")
	}

	maxDocuments := req.MaxDocuments
	if maxDocuments == 0 {
		if quota, ok := s.cfg.Quotas.For(tier); ok {
			maxDocuments = quota
		}
	}

	sub := &models.Subscription{
		UserID:               req.UserID,
		Tier:                 tier,
		Status:               req.Status,
		MaxDocuments:         maxDocuments,
		StripeCustomerID:     req.StripeCustomerID,
		StripeSubscriptionID: req.StripeSubscriptionID,
	}
	if err := s.subs.Upsert(ctx, sub); err != nil {
		return nil, err
	}

	s.Invalidate(ctx, req.UserID)
	if err := s.audit.Record(ctx, req.UserID, "billing-service", "subscription_upsert", map[string]interface{}{
		"tier":   tier,
		"status": req.Status,
	}); err != nil {
		s.log.Warn().Err(err).Str("user_id", req.UserID).Msg("failed to record audit entry")
	}

	return s.subs.GetByUserID(ctx, req.UserID)
}

// ReconcileStale refreshes users whose subscription has not been
// reconciled within the staleness window. Driven by the periodic sync
// trigger; returns how many users were refreshed.
func (s *EntitlementService) ReconcileStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.Sync.StaleAfter)
	userIDs, err := s.subs.ListStaleUserIDs(ctx, cutoff, s.cfg.Sync.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale subscriptions: %w", err)
	}
	refreshed := 0
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		if _, err := s.Refresh(ctx, userID); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("periodic refresh failed")
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// Plans returns the public tier table with quotas and, when configured,
// processor price IDs.
func (s *EntitlementService) Plans(ctx context.Context) *models.PlansResponse {
	settings, err := s.settings.Get(ctx)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.Warn().Err(err).Msg("failed to read admin settings for plans")
	}

	priceFor := func(tier string) *string {
		if settings == nil {
			return nil
		}
		switch tier {
		case models.TierBase:
			return settings.StripeBasePriceID
		case models.TierPro:
			return settings.StripeProPriceID
		case models.TierEnterprise:
			return settings.StripeEnterprisePriceID
		}
		return nil
	}

	resp := &models.PlansResponse{}
	for _, tier := range []string{models.TierFree, models.TierBase, models.TierPro, models.TierEnterprise} {
		quota, _ := s.cfg.Quotas.For(tier)
		resp.Plans = append(resp.Plans, models.PlanInfo{
			Tier:         tier,
			MaxDocuments: quota,
			PriceID:      priceFor(tier),
		})
	}
	return resp
}
