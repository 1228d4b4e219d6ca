package cartstore_test

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/subcart/internal/cart"
	"github.com/noah-isme/subcart/internal/cartstore"
)

func newStore(t *testing.T) cartstore.Redis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cartstore.Redis{R: client}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	c := cart.New("cart-1")
	require.NoError(t, c.AddItem(&cart.LineItem{
		Key: "plan", ProductID: uuid.New(), Qty: 2, UnitPrice: 2500,
		IsSubscription: true, Interval: 1, Period: cart.PeriodMonth,
	}))
	c.ShippingMethod = "express"

	require.NoError(t, store.Save(ctx, c))

	loaded, err := store.Get(ctx, "cart-1")
	require.NoError(t, err)
	require.Equal(t, c.ID, loaded.ID)
	require.Len(t, loaded.Items, 1)
	require.Equal(t, int64(2500), loaded.Items["plan"].UnitPrice)
	require.Equal(t, "express", loaded.ShippingMethod)
}

func TestGetMissingCart(t *testing.T) {
	store := newStore(t)
	_, err := store.Get(context.Background(), "absent")
	require.ErrorIs(t, err, cartstore.ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	c := cart.New("cart-1")
	require.NoError(t, store.Save(ctx, c))
	require.NoError(t, store.Delete(ctx, "cart-1"))
	require.NoError(t, store.Delete(ctx, "cart-1"))

	_, err := store.Get(ctx, "cart-1")
	require.ErrorIs(t, err, cartstore.ErrNotFound)
}

func TestSaveRequiresID(t *testing.T) {
	store := newStore(t)
	require.Error(t, store.Save(context.Background(), cart.New("")))
}
