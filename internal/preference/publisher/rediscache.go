package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"dinemate/internal/platform/redis"
	"dinemate/internal/preference/models"
	id "dinemate/pkg/domain"
)

// RedisProfileCache shares published profiles across replicas with a TTL so
// an unhealthy publisher cannot pin a stale profile forever.
type RedisProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProfileCache wraps a Redis client as a ProfileCache.
func NewRedisProfileCache(client *redis.Client, ttl time.Duration) *RedisProfileCache {
	return &RedisProfileCache{client: client, ttl: ttl}
}

func profileKey(groupID id.GroupID) string {
	return "dinemate:profile:" + groupID.String()
}

func (c *RedisProfileCache) Get(ctx context.Context, groupID id.GroupID) (*models.GroupProfile, error) {
	raw, err := c.client.Get(ctx, profileKey(groupID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profile cache get: %w", err)
	}

	var profile models.GroupProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		// A corrupt entry is treated as a miss; the next Set overwrites it.
		return nil, nil
	}
	return &profile, nil
}

func (c *RedisProfileCache) Set(ctx context.Context, profile *models.GroupProfile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("profile cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, profileKey(profile.GroupID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("profile cache set: %w", err)
	}
	return nil
}

func (c *RedisProfileCache) Delete(ctx context.Context, groupID id.GroupID) error {
	if err := c.client.Del(ctx, profileKey(groupID)).Err(); err != nil {
		return fmt.Errorf("profile cache delete: %w", err)
	}
	return nil
}
