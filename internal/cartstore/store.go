package cartstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/subcart/internal/cart"
)

// ErrNotFound indicates no cart is stored under the requested identifier.
var ErrNotFound = errors.New("cartstore: cart not found")

// Store persists carts between requests. Carts are session-scoped working
// state, so the redis implementation with a TTL is the production choice.
type Store interface {
	Get(ctx context.Context, id string) (*cart.Cart, error)
	Save(ctx context.Context, c *cart.Cart) error
	Delete(ctx context.Context, id string) error
}

// Redis stores carts as JSON blobs with a sliding TTL.
type Redis struct {
	R   *redis.Client
	TTL time.Duration
}

func cartKey(id string) string {
	return "cart:" + id
}

func (s Redis) ttl() time.Duration {
	if s.TTL <= 0 {
		return 30 * 24 * time.Hour
	}
	return s.TTL
}

// Get loads and decodes the cart stored under id.
func (s Redis) Get(ctx context.Context, id string) (*cart.Cart, error) {
	if s.R == nil {
		return nil, errors.New("cartstore: redis client not configured")
	}
	payload, err := s.R.Get(ctx, cartKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("cartstore get %s: %w", id, err)
	}
	var c cart.Cart
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("cartstore decode %s: %w", id, err)
	}
	if c.Items == nil {
		c.Items = map[string]*cart.LineItem{}
	}
	return &c, nil
}

// Save encodes and stores the cart, refreshing its TTL.
func (s Redis) Save(ctx context.Context, c *cart.Cart) error {
	if s.R == nil {
		return errors.New("cartstore: redis client not configured")
	}
	if c == nil || c.ID == "" {
		return errors.New("cartstore: cart id is required")
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("cartstore encode %s: %w", c.ID, err)
	}
	if err := s.R.Set(ctx, cartKey(c.ID), payload, s.ttl()).Err(); err != nil {
		return fmt.Errorf("cartstore save %s: %w", c.ID, err)
	}
	return nil
}

// Delete removes the stored cart. Missing carts are not an error.
func (s Redis) Delete(ctx context.Context, id string) error {
	if s.R == nil {
		return errors.New("cartstore: redis client not configured")
	}
	if err := s.R.Del(ctx, cartKey(id)).Err(); err != nil {
		return fmt.Errorf("cartstore delete %s: %w", id, err)
	}
	return nil
}
