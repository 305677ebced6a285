package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores resolved principals by user id.
type Cache interface {
	Get(ctx context.Context, userID int64) (*Principal, bool, error)
	Set(ctx context.Context, p *Principal) error
	Invalidate(ctx context.Context, userID int64) error
	InvalidateAll(ctx context.Context) error
}

type memoryEntry struct {
	principal *Principal
	expires   time.Time
}

// MemoryCache is a process-local cache used when redis is disabled.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[int64]memoryEntry
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MemoryCache{ttl: ttl, entries: make(map[int64]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, userID int64) (*Principal, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expires) {
		return nil, false, nil
	}
	return e.principal, true, nil
}

func (c *MemoryCache) Set(_ context.Context, p *Principal) error {
	if p == nil {
		return nil
	}
	c.mu.Lock()
	c.entries[p.UserID] = memoryEntry{principal: p, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, userID int64) error {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[int64]memoryEntry)
	c.mu.Unlock()
	return nil
}

// RedisCache shares principals between API replicas so a role edit on one
// instance is visible on all of them after invalidation.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, appName string, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, prefix: appName + ":principal:", ttl: ttl}
}

func (c *RedisCache) key(userID int64) string {
	return fmt.Sprintf("%s%d", c.prefix, userID)
}

func (c *RedisCache) Get(ctx context.Context, userID int64) (*Principal, bool, error) {
	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var p Principal
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false, fmt.Errorf("decode cached principal: %w", err)
	}
	return &p, true, nil
}

func (c *RedisCache) Set(ctx context.Context, p *Principal) error {
	if p == nil {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(p.UserID), raw, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, userID int64) error {
	return c.client.Del(ctx, c.key(userID)).Err()
}

func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
