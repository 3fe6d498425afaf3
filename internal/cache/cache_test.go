package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MunnymanCommunications/gemdesign/internal/models"
)

func record(userID, tier string) *models.EntitlementRecord {
	return &models.EntitlementRecord{
		UserID:       userID,
		Tier:         tier,
		Status:       models.StatusActive,
		Source:       models.SourceBilling,
		MaxDocuments: 50,
		IsActive:     true,
		ComputedAt:   time.Now(),
	}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, record("u1", models.TierPro)))

	got, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.TierPro, got.Tier)
	assert.Equal(t, "u1", got.UserID)
}

func TestMemoryCacheInvalidate(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, record("u1", models.TierPro)))
	require.NoError(t, c.Invalidate(ctx, "u1"))

	_, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheRetention(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }
	require.NoError(t, c.Put(ctx, record("u1", models.TierPro)))

	// Inside the retention window the entry survives, stale or not.
	c.now = func() time.Time { return base.Add(59 * time.Minute) }
	_, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Past retention the entry is dropped.
	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, ok, err = c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheIsolatesEntries(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, record("u1", models.TierPro)))
	require.NoError(t, c.Put(ctx, record("u2", models.TierBase)))
	require.NoError(t, c.Invalidate(ctx, "u1"))

	_, ok, _ := c.Get(ctx, "u1")
	assert.False(t, ok)
	got, ok, _ := c.Get(ctx, "u2")
	require.True(t, ok)
	assert.Equal(t, models.TierBase, got.Tier)
}

// Put hands the cache a copy; mutating the caller's record afterwards must
// not leak into later reads.
func TestMemoryCacheCopiesRecords(t *testing.T) {
	c := NewMemoryCache(time.Hour)
	ctx := context.Background()

	rec := record("u1", models.TierPro)
	require.NoError(t, c.Put(ctx, rec))
	rec.Tier = models.TierEnterprise

	got, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.TierPro, got.Tier)
}
