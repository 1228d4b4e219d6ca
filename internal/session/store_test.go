package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/subcart/internal/session"
)

func newStore(t *testing.T) session.Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return session.Redis{R: client, TTL: time.Minute}
}

func TestGetReturnsFallbackWhenAbsent(t *testing.T) {
	store := newStore(t)

	value, err := store.Get(context.Background(), "cart:abc:shipping_method", "standard")
	require.NoError(t, err)
	require.Equal(t, "standard", value)
}

func TestSetThenGet(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "cart:abc:shipping_method", "express"))

	value, err := store.Get(ctx, "cart:abc:shipping_method", "standard")
	require.NoError(t, err)
	require.Equal(t, "express", value)
}

func TestGetWithoutClientReturnsFallback(t *testing.T) {
	store := session.Redis{}

	value, err := store.Get(context.Background(), "anything", "fallback")
	require.Error(t, err)
	require.Equal(t, "fallback", value)
}
