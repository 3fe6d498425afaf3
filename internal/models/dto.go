package models

import "time"

// ==================== Entitlement DTOs ====================

// EntitlementResponse is returned by GET /api/v1/my/entitlement. It is the
// consumer-facing shape: the resolved record plus staleness and the last
// refresh error, if any. A stale record with an error set is the
// last-known-good value served while a collaborator is unreachable.
type EntitlementResponse struct {
	Tier         string    `json:"tier"`
	Status       string    `json:"status"`
	IsActive     bool      `json:"is_active"`
	MaxDocuments int       `json:"max_documents"`
	Source       string    `json:"source"`
	ComputedAt   time.Time `json:"computed_at"`
	Stale        bool      `json:"stale"`
	Error        string    `json:"error,omitempty"`
}

// AccessResponse is returned by the internal access-check endpoint used by
// gateway services as a route guard.
type AccessResponse struct {
	Allowed bool   `json:"allowed"`
	Tier    string `json:"tier"`
	Reason  string `json:"reason,omitempty"`
}

// ==================== Notice DTOs ====================

// Notice types surfaced to the user alongside (not instead of) the resolved
// entitlement.
const (
	NoticePaymentFailed = "payment_failed"
)

// Notice is a persistent user-facing message. Payment-failure notices are
// not dismissible: the user must not be silently downgraded without
// explanation.
type Notice struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}

// NoticesResponse is returned by GET /api/v1/my/notices.
type NoticesResponse struct {
	Notices []Notice `json:"notices"`
}

// ==================== Usage DTOs ====================

// UsageResponse is returned by GET /api/v1/my/usage.
type UsageResponse struct {
	DocumentsUsed int  `json:"documents_used"`
	MaxDocuments  int  `json:"max_documents"`
	Unlimited     bool `json:"unlimited"`
	Remaining     int  `json:"remaining"`
}

// ==================== Plan DTOs ====================

// PlanInfo describes one tier on the public plans page.
type PlanInfo struct {
	Tier         string  `json:"tier"`
	MaxDocuments int     `json:"max_documents"`
	PriceID      *string `json:"price_id,omitempty"`
}

// PlansResponse is returned by GET /api/v1/public/plans.
type PlansResponse struct {
	Plans []PlanInfo `json:"plans"`
}

// ==================== Admin DTOs ====================

// SetGrantRequest is the body of PUT /api/v1/admin/users/:user_id/grant.
type SetGrantRequest struct {
	GrantedTier   *string `json:"granted_tier"`
	HasFreeAccess bool    `json:"has_free_access"`
	Note          string  `json:"note"`
}

// UpdateSettingsRequest is the body of PUT /api/v1/admin/settings.
type UpdateSettingsRequest struct {
	StripeBasePriceID       *string `json:"stripe_base_price_id"`
	StripeProPriceID        *string `json:"stripe_pro_price_id"`
	StripeEnterprisePriceID *string `json:"stripe_enterprise_price_id"`
}

// ==================== Internal billing DTOs ====================

// UpsertSubscriptionRequest is posted by billing-service after it processes
// a processor webhook. Either tier or price_id must be set; price_id is
// mapped to a tier through admin settings.
type UpsertSubscriptionRequest struct {
	UserID               string  `json:"user_id" binding:"required"`
	Tier                 string  `json:"tier"`
	PriceID              string  `json:"price_id"`
	Status               string  `json:"status" binding:"required"`
	MaxDocuments         int     `json:"max_documents"`
	StripeCustomerID     *string `json:"stripe_customer_id"`
	StripeSubscriptionID *string `json:"stripe_subscription_id"`
}
