package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/subcart/internal/cart"
	"github.com/noah-isme/subcart/internal/cartstore"
	"github.com/noah-isme/subcart/internal/pricing"
	"github.com/noah-isme/subcart/internal/shipping"
	"github.com/noah-isme/subcart/internal/totals"
)

func TestCartTotalizeTaskPayload(t *testing.T) {
	task, err := NewCartTotalizeTask("cart-1")
	require.NoError(t, err)
	require.Equal(t, TypeCartTotalize, task.Type())

	var payload CartTotalizePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "cart-1", payload.CartID)
}

func TestEnqueuerWithoutClientIsNoop(t *testing.T) {
	e := Enqueuer{}
	require.NoError(t, e.EnqueueTotalize(context.Background(), "cart-1"))
	require.NoError(t, e.EnqueueExpire(context.Background(), "cart-1", time.Minute))
}

func newWorker(t *testing.T) (*Worker, cartstore.Redis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := cartstore.Redis{R: client}
	svc := shipping.Service{Rater: shipping.TableRater{Base: 500}}
	engines := totals.Factory{
		Pricing:  pricing.Engine{Resolver: pricing.Resolver{}, Shipping: svc},
		Shipping: svc,
	}
	return &Worker{Carts: store, Engines: engines}, store
}

func TestHandleTotalizeUpdatesStoredCart(t *testing.T) {
	w, store := newWorker(t)
	ctx := context.Background()

	c := cart.New("cart-1")
	require.NoError(t, c.AddItem(&cart.LineItem{
		Key: "plan", ProductID: uuid.New(), Qty: 1, UnitPrice: 2500,
		IsSubscription: true, Interval: 1, Period: cart.PeriodMonth,
	}))
	require.NoError(t, store.Save(ctx, c))

	task, err := NewCartTotalizeTask("cart-1")
	require.NoError(t, err)
	require.NoError(t, w.HandleTotalize(ctx, task))

	updated, err := store.Get(ctx, "cart-1")
	require.NoError(t, err)
	require.Equal(t, int64(2500), updated.Total)
	require.Len(t, updated.RecurringSnapshots, 1)
}

func TestHandleTotalizeMissingCartSkips(t *testing.T) {
	w, _ := newWorker(t)
	task, err := NewCartTotalizeTask("absent")
	require.NoError(t, err)
	require.NoError(t, w.HandleTotalize(context.Background(), task))
}

func TestHandleTotalizeRejectsBadPayload(t *testing.T) {
	w, _ := newWorker(t)
	task := asynq.NewTask(TypeCartTotalize, []byte("{"))
	err := w.HandleTotalize(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleExpireDeletesCart(t *testing.T) {
	w, store := newWorker(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, cart.New("cart-1")))

	task, err := NewCartExpireTask("cart-1", 0)
	require.NoError(t, err)
	require.NoError(t, w.HandleExpire(ctx, task))

	_, err = store.Get(ctx, "cart-1")
	require.ErrorIs(t, err, cartstore.ErrNotFound)
}
