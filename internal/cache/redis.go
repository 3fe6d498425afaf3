package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MunnymanCommunications/gemdesign/internal/models"
)

// RedisCache shares resolved entitlements across service instances. The key
// TTL is the retention window, not the freshness window: a stale entry is
// still the last-known-good fallback during a collaborator outage.
type RedisCache struct {
	rdb   *redis.Client
	keyNS string
	ttl   time.Duration
}

func NewRedisCache(rdb *redis.Client, keyPrefix string, retainFor time.Duration) *RedisCache {
	if keyPrefix == "" {
		keyPrefix = "entitlement:resolved:"
	}
	if retainFor <= 0 {
		retainFor = 24 * time.Hour
	}
	return &RedisCache{rdb: rdb, keyNS: keyPrefix, ttl: retainFor}
}

func (c *RedisCache) key(userID string) string { return c.keyNS + userID }

func (c *RedisCache) Get(ctx context.Context, userID string) (*models.EntitlementRecord, bool, error) {
	val, err := c.rdb.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &models.CollaboratorUnavailableError{Collaborator: "redis", Err: err}
	}
	var record models.EntitlementRecord
	if err := json.Unmarshal(val, &record); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached entitlement: %w", err)
	}
	return &record, true, nil
}

func (c *RedisCache) Put(ctx context.Context, record *models.EntitlementRecord) error {
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal entitlement: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(record.UserID), b, c.ttl).Err(); err != nil {
		return &models.CollaboratorUnavailableError{Collaborator: "redis", Err: err}
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.rdb.Del(ctx, c.key(userID)).Err(); err != nil {
		return &models.CollaboratorUnavailableError{Collaborator: "redis", Err: err}
	}
	return nil
}
