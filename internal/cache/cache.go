// Package cache holds the last resolved entitlement per user so a
// collaborator outage degrades to serving the last-known-good record
// instead of a blank one. Entries are retained well past freshness; the
// service decides staleness from the record's ComputedAt.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/MunnymanCommunications/gemdesign/internal/models"
)

// EntitlementCache stores resolved records keyed by user ID.
type EntitlementCache interface {
	Get(ctx context.Context, userID string) (*models.EntitlementRecord, bool, error)
	Put(ctx context.Context, record *models.EntitlementRecord) error
	Invalidate(ctx context.Context, userID string) error
}

type memoryEntry struct {
	record   models.EntitlementRecord
	storedAt time.Time
}

// MemoryCache is the in-process fallback used when Redis is not
// configured (single-instance deployments, tests).
type MemoryCache struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	retainFor time.Duration
	now       func() time.Time
}

func NewMemoryCache(retainFor time.Duration) *MemoryCache {
	if retainFor <= 0 {
		retainFor = 24 * time.Hour
	}
	return &MemoryCache{
		entries:   make(map[string]memoryEntry),
		retainFor: retainFor,
		now:       time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, userID string) (*models.EntitlementRecord, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.now().Sub(entry.storedAt) > c.retainFor {
		c.mu.Lock()
		delete(c.entries, userID)
		c.mu.Unlock()
		return nil, false, nil
	}
	record := entry.record
	return &record, true, nil
}

func (c *MemoryCache) Put(_ context.Context, record *models.EntitlementRecord) error {
	c.mu.Lock()
	c.entries[record.UserID] = memoryEntry{record: *record, storedAt: c.now()}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
	return nil
}
