package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MunnymanCommunications/gemdesign/internal/models"
)

var testQuotas = models.QuotaTable{
	models.TierFree:       2,
	models.TierBase:       10,
	models.TierPro:        50,
	models.TierEnterprise: models.MaxDocumentsUnlimited,
}

func strPtr(s string) *string { return &s }

func grantFor(tier string) models.GrantState {
	if tier == "" {
		return models.GrantState{Kind: models.NoGrant}
	}
	return models.NormalizeGrant(&models.AdminGrant{GrantedTier: strPtr(tier)})
}

func subFor(status string) *models.Subscription {
	if status == "" {
		return nil
	}
	return &models.Subscription{
		UserID:       "u1",
		Tier:         models.TierPro,
		Status:       status,
		MaxDocuments: 50,
	}
}

// TestResolvePrecedenceTotality enumerates every combination of role
// presence, grant and subscription status and checks that exactly one branch
// fires, in precedence order, and that the result never carries an unknown
// tier or status.
func TestResolvePrecedenceTotality(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	roleSets := map[string][]string{
		"no_role":   nil,
		"moderator": {models.RoleModerator},
		"admin":     {models.RoleAdmin},
	}
	grantTiers := []string{"", models.TierBase, models.TierPro, models.TierEnterprise}
	subStatuses := []string{"", models.StatusActive, models.StatusTrialing, models.StatusPastDue}

	total := 0
	for roleName, roles := range roleSets {
		for _, grantTier := range grantTiers {
			for _, subStatus := range subStatuses {
				total++
				name := fmt.Sprintf("%s/grant_%s/sub_%s", roleName, orNone(grantTier), orNone(subStatus))
				t.Run(name, func(t *testing.T) {
					res := Resolve(ResolveInput{
						UserID:       "u1",
						Roles:        roles,
						Grant:        grantFor(grantTier),
						Subscription: subFor(subStatus),
						Now:          now,
					}, testQuotas)

					rec := res.Record

					// Expected outcome follows precedence, first match wins.
					switch {
					case len(roles) > 0:
						assert.Equal(t, BranchRoleOverride, res.Branch)
						assert.Equal(t, models.SourceAdminGrant, rec.Source)
						assert.Equal(t, models.TierEnterprise, rec.Tier)
						assert.Equal(t, models.MaxDocumentsUnlimited, rec.MaxDocuments)
					case grantTier == models.TierPro || grantTier == models.TierEnterprise:
						assert.Equal(t, BranchAdminGrantPaid, res.Branch)
						assert.Equal(t, models.SourceAdminGrant, rec.Source)
						assert.Equal(t, grantTier, rec.Tier)
						quota, _ := testQuotas.For(grantTier)
						assert.Equal(t, quota, rec.MaxDocuments)
					case grantTier == models.TierBase:
						assert.Equal(t, BranchAdminGrantFree, res.Branch)
						assert.Equal(t, models.SourceAdminGrant, rec.Source)
						assert.Equal(t, models.TierBase, rec.Tier)
						assert.Equal(t, 10, rec.MaxDocuments)
					case subStatus == models.StatusActive || subStatus == models.StatusTrialing:
						assert.Equal(t, BranchBilling, res.Branch)
						assert.Equal(t, models.SourceBilling, rec.Source)
						assert.Equal(t, models.TierPro, rec.Tier)
						assert.Equal(t, subStatus, rec.Status)
						assert.Equal(t, 50, rec.MaxDocuments)
					default:
						assert.Equal(t, BranchDefault, res.Branch)
						assert.Equal(t, models.SourceNone, rec.Source)
						assert.Equal(t, models.TierFree, rec.Tier)
						assert.Equal(t, 2, rec.MaxDocuments)
					}

					// Invariants that hold on every branch.
					assert.True(t, models.IsKnownTier(rec.Tier), "tier must always be known")
					assert.True(t, models.IsKnownStatus(rec.Status), "status must always be known")
					assert.True(t, rec.IsActive, "well-formed inputs always yield an active record")
					assert.Equal(t, "u1", rec.UserID)
					assert.Equal(t, now, rec.ComputedAt)
					assert.Empty(t, res.Warnings)
				})
			}
		}
	}
	require.Equal(t, 48, total)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func TestResolveNewUserGetsFreeDefault(t *testing.T) {
	res := Resolve(ResolveInput{
		UserID: "new-user",
		Grant:  models.GrantState{Kind: models.NoGrant},
		Now:    time.Now(),
	}, testQuotas)

	assert.Equal(t, BranchDefault, res.Branch)
	assert.Equal(t, models.TierFree, res.Record.Tier)
	assert.Equal(t, models.StatusActive, res.Record.Status)
	assert.True(t, res.Record.IsActive)
	assert.Equal(t, 2, res.Record.MaxDocuments)
	assert.Equal(t, models.SourceNone, res.Record.Source)
}

func TestResolveGrantedProWithoutBilling(t *testing.T) {
	res := Resolve(ResolveInput{
		UserID: "u1",
		Grant:  grantFor(models.TierPro),
		Now:    time.Now(),
	}, testQuotas)

	assert.Equal(t, BranchAdminGrantPaid, res.Branch)
	assert.Equal(t, models.TierPro, res.Record.Tier)
	assert.Equal(t, models.SourceAdminGrant, res.Record.Source)
	assert.Equal(t, models.StatusActive, res.Record.Status)
	assert.Equal(t, 50, res.Record.MaxDocuments)
}

func TestResolveTrialingCountsAsActive(t *testing.T) {
	res := Resolve(ResolveInput{
		UserID:       "u1",
		Grant:        models.GrantState{Kind: models.NoGrant},
		Subscription: subFor(models.StatusTrialing),
		Now:          time.Now(),
	}, testQuotas)

	assert.Equal(t, BranchBilling, res.Branch)
	assert.Equal(t, models.TierPro, res.Record.Tier)
	assert.Equal(t, models.StatusTrialing, res.Record.Status)
	assert.True(t, res.Record.IsActive)
	assert.Equal(t, 50, res.Record.MaxDocuments)
}

// A moderator with a delinquent subscription keeps full access; staff are
// never locked out by billing state.
func TestResolveModeratorWithPastDueBilling(t *testing.T) {
	res := Resolve(ResolveInput{
		UserID:       "u1",
		Roles:        []string{models.RoleModerator},
		Grant:        models.GrantState{Kind: models.NoGrant},
		Subscription: subFor(models.StatusPastDue),
		Now:          time.Now(),
	}, testQuotas)

	assert.Equal(t, BranchRoleOverride, res.Branch)
	assert.Equal(t, models.TierEnterprise, res.Record.Tier)
	assert.True(t, res.Record.IsActive)
	assert.True(t, res.Record.Unlimited())
}

// An admin grant outranks an active billing subscription even when the
// subscription would resolve to a lower tier.
func TestResolveGrantOutranksBilling(t *testing.T) {
	res := Resolve(ResolveInput{
		UserID: "u1",
		Grant:  grantFor(models.TierEnterprise),
		Subscription: &models.Subscription{
			UserID:       "u1",
			Tier:         models.TierBase,
			Status:       models.StatusActive,
			MaxDocuments: 10,
		},
		Now: time.Now(),
	}, testQuotas)

	assert.Equal(t, BranchAdminGrantPaid, res.Branch)
	assert.Equal(t, models.TierEnterprise, res.Record.Tier)
	assert.Equal(t, models.SourceAdminGrant, res.Record.Source)
}

// past_due must not resolve as if it were active; the user drops to the
// free default and the payment notice is surfaced elsewhere.
func TestResolvePastDueFallsToDefault(t *testing.T) {
	res := Resolve(ResolveInput{
		UserID:       "u1",
		Grant:        models.GrantState{Kind: models.NoGrant},
		Subscription: subFor(models.StatusPastDue),
		Now:          time.Now(),
	}, testQuotas)

	assert.Equal(t, BranchDefault, res.Branch)
	assert.Equal(t, models.TierFree, res.Record.Tier)
	assert.Equal(t, models.SourceNone, res.Record.Source)
	assert.NotEqual(t, models.StatusPastDue, res.Record.Status)
}

// The persisted synthesized default (free + active) resolves through the
// default branch so its source stays "none" on every subsequent read.
func TestResolveSynthesizedDefaultKeepsSourceNone(t *testing.T) {
	res := Resolve(ResolveInput{
		UserID: "u1",
		Grant:  models.GrantState{Kind: models.NoGrant},
		Subscription: &models.Subscription{
			UserID:       "u1",
			Tier:         models.TierFree,
			Status:       models.StatusActive,
			MaxDocuments: 2,
		},
		Now: time.Now(),
	}, testQuotas)

	assert.Equal(t, BranchDefault, res.Branch)
	assert.Equal(t, models.SourceNone, res.Record.Source)
	assert.Equal(t, models.TierFree, res.Record.Tier)
}

func TestResolveUnknownGrantTierWarnsAndFallsThrough(t *testing.T) {
	res := Resolve(ResolveInput{
		UserID:       "u1",
		Grant:        models.GrantState{Kind: models.PaidGrant, Tier: "platinum"},
		Subscription: subFor(models.StatusActive),
		Now:          time.Now(),
	}, testQuotas)

	// Malformed grant never promotes; the billing subscription wins.
	assert.Equal(t, BranchBilling, res.Branch)
	assert.Equal(t, models.TierPro, res.Record.Tier)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "platinum")
}

func TestResolveUnknownSubscriptionStatusWarnsAndDefaults(t *testing.T) {
	res := Resolve(ResolveInput{
		UserID:       "u1",
		Grant:        models.GrantState{Kind: models.NoGrant},
		Subscription: subFor("suspended"),
		Now:          time.Now(),
	}, testQuotas)

	assert.Equal(t, BranchDefault, res.Branch)
	assert.Equal(t, models.TierFree, res.Record.Tier)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "suspended")
}

func TestResolveUnknownSubscriptionTierWarnsAndDefaults(t *testing.T) {
	res := Resolve(ResolveInput{
		UserID: "u1",
		Grant:  models.GrantState{Kind: models.NoGrant},
		Subscription: &models.Subscription{
			UserID:       "u1",
			Tier:         "gold",
			Status:       models.StatusActive,
			MaxDocuments: 50,
		},
		Now: time.Now(),
	}, testQuotas)

	assert.Equal(t, BranchDefault, res.Branch)
	assert.Equal(t, models.TierFree, res.Record.Tier)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "gold")
}

// Resolve is pure: same inputs, same output, and ComputedAt comes from the
// input instant rather than the wall clock.
func TestResolveIsDeterministic(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := ResolveInput{
		UserID:       "u1",
		Roles:        []string{models.RoleAdmin},
		Grant:        grantFor(models.TierPro),
		Subscription: subFor(models.StatusActive),
		Now:          now,
	}

	first := Resolve(in, testQuotas)
	second := Resolve(in, testQuotas)

	assert.Equal(t, first, second)
	assert.Equal(t, now, first.Record.ComputedAt)
}
