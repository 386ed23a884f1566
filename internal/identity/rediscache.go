package identity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FergusFettes/openai-cd2-proxy/internal/identity/internal/domain"
)

// redisCmdable abstracts the minimal surface needed from a Redis client,
// so tests can substitute a fake without pulling in a real connection.
type redisCmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// readThroughCache wraps a KeyStore with an optional Redis read-through
// layer: lookups hit Redis first, fall back to the relational store on a
// miss, and populate Redis with the result (including negative results,
// to avoid re-querying for unknown tokens on the hot path).
type readThroughCache struct {
	store KeyStore
	redis redisCmdable
	ttl   time.Duration
}

func newReadThroughCache(store KeyStore, client redisCmdable, ttl time.Duration) *readThroughCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &readThroughCache{store: store, redis: client, ttl: ttl}
}

const cacheMissSentinel = "__miss__"

func (c *readThroughCache) FindByToken(ctx context.Context, token string) (*domain.APIKey, error) {
	cacheKey := "identity:token:" + token

	if raw, err := c.redis.Get(ctx, cacheKey).Result(); err == nil {
		if raw == cacheMissSentinel {
			return nil, nil
		}
		var key domain.APIKey
		if err := json.Unmarshal([]byte(raw), &key); err == nil {
			return &key, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		// Redis unavailable: fall through to the source of truth rather
		// than failing the request.
	}

	key, err := c.store.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if key == nil {
		c.redis.Set(ctx, cacheKey, cacheMissSentinel, c.ttl)
		return nil, nil
	}

	if encoded, err := json.Marshal(key); err == nil {
		c.redis.Set(ctx, cacheKey, encoded, c.ttl)
	}
	return key, nil
}

func (c *readThroughCache) Create(ctx context.Context, key *domain.APIKey) error {
	return c.store.Create(ctx, key)
}

// Rotate and Delete pass straight through: the cache is keyed by token,
// not by name, so a rotated or deleted key's stale Redis entry (if any)
// simply expires via TTL. FindByToken always re-verifies cache hits
// against nothing further, but the TTL bounds how long a revoked token
// could still authenticate from cache alone, which is an accepted
// tradeoff of read-through caching.
func (c *readThroughCache) Rotate(ctx context.Context, name, newToken string) error {
	return c.store.Rotate(ctx, name, newToken)
}

func (c *readThroughCache) Delete(ctx context.Context, name string) error {
	return c.store.Delete(ctx, name)
}

func (c *readThroughCache) List(ctx context.Context) ([]domain.APIKey, error) {
	return c.store.List(ctx)
}

func (c *readThroughCache) AllTokens(ctx context.Context) ([]string, error) {
	return c.store.AllTokens(ctx)
}
