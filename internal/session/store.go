package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists small per-cart selections (such as the chosen shipping
// method) across the mode-switching totalization passes.
type Store interface {
	Get(ctx context.Context, key, fallback string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Redis is the production Store.
type Redis struct {
	R   *redis.Client
	TTL time.Duration
}

func (s Redis) ttl() time.Duration {
	if s.TTL <= 0 {
		return 24 * time.Hour
	}
	return s.TTL
}

// Get returns the stored value, or fallback when the key is absent.
func (s Redis) Get(ctx context.Context, key, fallback string) (string, error) {
	if s.R == nil {
		return fallback, errors.New("session: redis client not configured")
	}
	value, err := s.R.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fallback, nil
		}
		return fallback, err
	}
	return value, nil
}

// Set stores the value under key with the configured TTL.
func (s Redis) Set(ctx context.Context, key, value string) error {
	if s.R == nil {
		return errors.New("session: redis client not configured")
	}
	return s.R.Set(ctx, key, value, s.ttl()).Err()
}
