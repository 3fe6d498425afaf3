package models

import "time"

// Subscription tiers, ordered lowest to highest
const (
	TierFree       = "free"
	TierBase       = "base"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// Subscription status constants (mirrors the payment processor lifecycle)
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusInactive = "inactive"
)

// Entitlement source constants
const (
	SourceAdminGrant = "admin_grant"
	SourceBilling    = "billing"
	SourceNone       = "none"
)

// Roles that bypass billing entirely
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
)

// MaxDocumentsUnlimited is the sentinel for an unbounded document quota.
const MaxDocumentsUnlimited = -1

// tierRank orders tiers for HasTierAtLeast comparisons.
var tierRank = map[string]int{
	TierFree:       0,
	TierBase:       1,
	TierPro:        2,
	TierEnterprise: 3,
}

// IsKnownTier reports whether t is one of the four defined tiers.
func IsKnownTier(t string) bool {
	_, ok := tierRank[t]
	return ok
}

// TierAtLeast reports whether tier is at or above required.
// Unknown tiers rank below every known tier.
func TierAtLeast(tier, required string) bool {
	tr, ok := tierRank[tier]
	if !ok {
		return false
	}
	rr, ok := tierRank[required]
	if !ok {
		return false
	}
	return tr >= rr
}

// IsActiveStatus reports whether a subscription status counts as usable.
// past_due and inactive do not grant access.
func IsActiveStatus(status string) bool {
	return status == StatusActive || status == StatusTrialing
}

// IsKnownStatus reports whether status is inside the defined enum.
func IsKnownStatus(status string) bool {
	switch status {
	case StatusActive, StatusTrialing, StatusPastDue, StatusInactive:
		return true
	}
	return false
}

// EntitlementRecord is the resolved, effective entitlement for one user at
// one instant. It is always recomputed from roles, grant and subscription,
// never mutated in place.
type EntitlementRecord struct {
	UserID       string    `json:"user_id"`
	Source       string    `json:"source"`
	Tier         string    `json:"tier"`
	Status       string    `json:"status"`
	MaxDocuments int       `json:"max_documents"`
	IsActive     bool      `json:"is_active"`
	ComputedAt   time.Time `json:"computed_at"`
}

// HasTierAtLeast reports whether the resolved tier meets the required one.
func (r *EntitlementRecord) HasTierAtLeast(required string) bool {
	return TierAtLeast(r.Tier, required)
}

// Unlimited reports whether the record carries the unbounded document quota.
func (r *EntitlementRecord) Unlimited() bool {
	return r.MaxDocuments == MaxDocumentsUnlimited
}

// AdminGrant is the operator-set override row, independent of billing.
// GrantedTier nil means no tier override; HasFreeAccess is the legacy flag
// that granted the base tier without a subscription.
type AdminGrant struct {
	UserID        string    `json:"user_id"`
	GrantedTier   *string   `json:"granted_tier"`
	HasFreeAccess bool      `json:"has_free_access"`
	GrantedBy     string    `json:"granted_by"`
	Note          string    `json:"note"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GrantKind discriminates the normalized grant state.
type GrantKind int

const (
	NoGrant GrantKind = iota
	FreeGrant
	PaidGrant
)

// GrantState is the normalized form of an AdminGrant row. It removes the
// ambiguity between "no grant", "granted free access" and "granted a paid
// tier" that the raw nullable column cannot express.
type GrantState struct {
	Kind GrantKind
	Tier string // set only for PaidGrant
}

// NormalizeGrant collapses a raw admin_grants row (possibly absent) into a
// GrantState. A granted_tier of free or base folds into FreeGrant together
// with the legacy has_free_access flag; only pro and enterprise count as
// paid overrides. An unrecognized tier stays tagged as PaidGrant so the
// resolver can emit a warning and fall through instead of promoting.
func NormalizeGrant(g *AdminGrant) GrantState {
	if g == nil {
		return GrantState{Kind: NoGrant}
	}
	if g.GrantedTier != nil && *g.GrantedTier != "" {
		switch *g.GrantedTier {
		case TierPro, TierEnterprise:
			return GrantState{Kind: PaidGrant, Tier: *g.GrantedTier}
		case TierFree, TierBase:
			return GrantState{Kind: FreeGrant}
		default:
			return GrantState{Kind: PaidGrant, Tier: *g.GrantedTier}
		}
	}
	if g.HasFreeAccess {
		return GrantState{Kind: FreeGrant}
	}
	return GrantState{Kind: NoGrant}
}

// Subscription is the billing-owned row for a user's paid plan. At most one
// row exists per user; all writes are upserts keyed on user_id.
type Subscription struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	Tier                 string     `json:"tier"`
	Status               string     `json:"status"`
	MaxDocuments         int        `json:"max_documents"`
	StripeCustomerID     *string    `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id,omitempty"`
	LastSyncedAt         *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// QuotaTable maps every tier to its document quota. It must be total over
// the four defined tiers; Validate runs once at startup so the resolver
// never has to handle a missing mapping at request time.
type QuotaTable map[string]int

// Validate returns a ConfigurationError if any defined tier has no quota
// mapping or a negative bounded quota.
func (q QuotaTable) Validate() error {
	for _, tier := range []string{TierFree, TierBase, TierPro, TierEnterprise} {
		quota, ok := q[tier]
		if !ok {
			return &ConfigurationError{Field: "quota." + tier, Reason: "no document quota mapping for tier"}
		}
		if quota < 0 && quota != MaxDocumentsUnlimited {
			return &ConfigurationError{Field: "quota." + tier, Reason: "quota must be non-negative or the unlimited sentinel"}
		}
	}
	return nil
}

// For returns the quota for a tier and whether the tier is mapped.
func (q QuotaTable) For(tier string) (int, bool) {
	quota, ok := q[tier]
	return quota, ok
}

// AdminSettings holds platform configuration managed from the admin
// console, currently the processor price identifiers used to map webhook
// payloads to tiers.
type AdminSettings struct {
	ID                      string    `json:"id"`
	StripeBasePriceID       *string   `json:"stripe_base_price_id"`
	StripeProPriceID        *string   `json:"stripe_pro_price_id"`
	StripeEnterprisePriceID *string   `json:"stripe_enterprise_price_id"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// TierForPriceID maps a processor price identifier to a tier, or "" when
// the price is not configured.
func (s *AdminSettings) TierForPriceID(priceID string) string {
	if s == nil || priceID == "" {
		return ""
	}
	switch {
	case s.StripeBasePriceID != nil && *s.StripeBasePriceID == priceID:
		return TierBase
	case s.StripeProPriceID != nil && *s.StripeProPriceID == priceID:
		return TierPro
	case s.StripeEnterprisePriceID != nil && *s.StripeEnterprisePriceID == priceID:
		return TierEnterprise
	default:
		return ""
	}
}

// Document kind constants
const (
	DocumentKindGenerated      = "generated"
	DocumentKindSecurityReport = "security_report"
)

// Document is a generated document or satellite security report owned by a
// user. This service only counts and lists them; creation and storage live
// in the document pipeline.
type Document struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	StoragePath string    `json:"storage_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditEntry records an entitlement-affecting mutation for the admin
// console's history view.
type AuditEntry struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Actor     string                 `json:"actor"`
	Action    string                 `json:"action"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
