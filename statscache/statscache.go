// Package statscache fronts the /stats endpoint with a short-TTL Redis
// cache so a polling fleet of devices can't force a reclaim-and-recount
// pass on every single poll.
package statscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKey = "pogoaccountserver:stats"

// Cache wraps a redis.Client with a narrow get/set surface for one cached
// value: the last computed Stats snapshot.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a Cache against addr (host:port), with the given TTL.
func New(addr, password string, db int, ttl time.Duration) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Cache{client: client, ttl: ttl}
}

// Get unmarshals the cached snapshot into dst, reporting whether one was
// present. A Redis error is treated as a cache miss, not propagated —
// the store remains the source of truth.
func (c *Cache) Get(ctx context.Context, dst any) bool {
	raw, err := c.client.Get(ctx, cacheKey).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// Set stores v for the cache's configured TTL. Failures are swallowed;
// a cache write failure should never fail the request it's serving.
func (c *Cache) Set(ctx context.Context, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, cacheKey, raw, c.ttl).Err()
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
