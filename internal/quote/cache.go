package quote

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a Redis read-through cache for raw document bytes. A nil receiver
// or client disables caching.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(id string) string { return "quote:doc:" + id }

// Get returns the cached document bytes, reporting whether the key existed.
func (c *Cache) Get(ctx context.Context, id string) ([]byte, bool, error) {
	if c == nil || c.client == nil || id == "" {
		return nil, false, nil
	}
	data, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Set stores the document bytes with the configured TTL.
func (c *Cache) Set(ctx context.Context, id string, document []byte) error {
	if c == nil || c.client == nil || id == "" || c.ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, cacheKey(id), document, c.ttl).Err()
}
