package service

import (
	"fmt"
	"time"

	"github.com/MunnymanCommunications/gemdesign/internal/models"
)

// Resolution branch labels, traced on every resolve.
const (
	BranchRoleOverride   = "role_override"
	BranchAdminGrantPaid = "admin_grant_paid"
	BranchAdminGrantFree = "admin_grant_free"
	BranchBilling        = "billing"
	BranchDefault        = "default"
)

// ResolveInput carries the three inputs of resolution plus the evaluation
// instant. Absent inputs are expressed as an empty role list, NoGrant and a
// nil subscription; none of them is an error.
type ResolveInput struct {
	UserID       string
	Roles        []string
	Grant        models.GrantState
	Subscription *models.Subscription
	Now          time.Time
}

// Resolution is the result of one resolve: the effective record, the branch
// that produced it, and warnings for malformed inputs that were skipped
// over rather than honored.
type Resolution struct {
	Record   models.EntitlementRecord
	Branch   string
	Warnings []string
}

// Resolve merges role assignments, the admin grant and the billing
// subscription into one effective entitlement. Fixed precedence, first
// match wins:
//
//  1. operational role (admin/moderator): top tier, unlimited quota; staff
//     must never be locked out by billing state
//  2. paid admin grant: the granted tier, active
//  3. free/base admin grant: base tier, active
//  4. billing subscription in active or trialing status
//  5. synthesized free default; free is a valid entitlement, not a denial
//
// past_due falls through step 4; the caller surfaces a payment notice
// separately. Malformed inputs (unknown grant tier, unknown subscription
// status or tier) produce a warning and fall through; resolution never
// promotes on bad data. Pure: no I/O, no clock reads, deterministic.
func Resolve(in ResolveInput, quotas models.QuotaTable) Resolution {
	var warnings []string

	// 1. Role override
	for _, role := range in.Roles {
		if role == models.RoleAdmin || role == models.RoleModerator {
			return Resolution{
				Branch: BranchRoleOverride,
				Record: models.EntitlementRecord{
					UserID:       in.UserID,
					Source:       models.SourceAdminGrant,
					Tier:         models.TierEnterprise,
					Status:       models.StatusActive,
					MaxDocuments: models.MaxDocumentsUnlimited,
					IsActive:     true,
					ComputedAt:   in.Now,
				},
			}
		}
	}

	// 2. Paid admin grant
	if in.Grant.Kind == models.PaidGrant {
		quota, ok := quotas.For(in.Grant.Tier)
		if ok && models.IsKnownTier(in.Grant.Tier) {
			return Resolution{
				Branch:   BranchAdminGrantPaid,
				Warnings: warnings,
				Record: models.EntitlementRecord{
					UserID:       in.UserID,
					Source:       models.SourceAdminGrant,
					Tier:         in.Grant.Tier,
					Status:       models.StatusActive,
					MaxDocuments: quota,
					IsActive:     true,
					ComputedAt:   in.Now,
				},
			}
		}
		warnings = append(warnings, fmt.Sprintf("admin grant references unknown tier %q, ignoring grant", in.Grant.Tier))
	}

	// 3. Free/base admin grant
	if in.Grant.Kind == models.FreeGrant {
		quota, _ := quotas.For(models.TierBase)
		return Resolution{
			Branch:   BranchAdminGrantFree,
			Warnings: warnings,
			Record: models.EntitlementRecord{
				UserID:       in.UserID,
				Source:       models.SourceAdminGrant,
				Tier:         models.TierBase,
				Status:       models.StatusActive,
				MaxDocuments: quota,
				IsActive:     true,
				ComputedAt:   in.Now,
			},
		}
	}

	// 4. Billing subscription
	if sub := in.Subscription; sub != nil {
		switch {
		case !models.IsKnownStatus(sub.Status):
			warnings = append(warnings, fmt.Sprintf("subscription has unknown status %q, falling back to default", sub.Status))
		case !models.IsActiveStatus(sub.Status):
			// past_due and inactive fall through to the free default.
			// past_due additionally surfaces a payment notice upstream.
		case !models.IsKnownTier(sub.Tier):
			warnings = append(warnings, fmt.Sprintf("subscription has unknown tier %q, falling back to default", sub.Tier))
		case sub.Tier == models.TierFree && sub.Status == models.StatusActive:
			// The synthesized default row resolves through the default
			// branch so its source stays "none".
		default:
			return Resolution{
				Branch:   BranchBilling,
				Warnings: warnings,
				Record: models.EntitlementRecord{
					UserID:       in.UserID,
					Source:       models.SourceBilling,
					Tier:         sub.Tier,
					Status:       sub.Status,
					MaxDocuments: sub.MaxDocuments,
					IsActive:     true,
					ComputedAt:   in.Now,
				},
			}
		}
	}

	// 5. Synthesized free default
	quota, _ := quotas.For(models.TierFree)
	return Resolution{
		Branch:   BranchDefault,
		Warnings: warnings,
		Record: models.EntitlementRecord{
			UserID:       in.UserID,
			Source:       models.SourceNone,
			Tier:         models.TierFree,
			Status:       models.StatusActive,
			MaxDocuments: quota,
			IsActive:     true,
			ComputedAt:   in.Now,
		},
	}
}
