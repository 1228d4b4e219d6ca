package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// CachedProvider layers a read-through product cache over another Provider.
type CachedProvider struct {
	Next  Provider
	Cache *Cache
}

// Product implements Provider with cache lookaside semantics. Cache failures
// fall through to the underlying provider.
func (p CachedProvider) Product(ctx context.Context, id uuid.UUID) (Product, error) {
	key := fmt.Sprintf("catalog:product:%s", id)
	var cached Product
	if ok, err := p.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	product, err := p.Next.Product(ctx, id)
	if err != nil {
		return Product{}, err
	}
	_ = p.Cache.SetJSON(ctx, key, product)
	return product, nil
}
