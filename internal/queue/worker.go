package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/subcart/internal/cartstore"
	"github.com/noah-isme/subcart/internal/lock"
	"github.com/noah-isme/subcart/internal/obs"
	"github.com/noah-isme/subcart/internal/totals"
)

// Worker handles background cart tasks: it loads the stored cart, runs a full
// totalization pass and saves the result back.
type Worker struct {
	Carts cartstore.Store
	// Engines builds a fresh totalization engine per task; tasks for
	// different carts run concurrently and must not share engine state.
	Engines totals.Factory
	// Locker serializes totalization per cart across worker instances.
	// Optional; nil skips locking.
	Locker *lock.Locker
	// LockTTL bounds how long a cart stays locked; zero uses the locker
	// default.
	LockTTL time.Duration
	Logger  *zerolog.Logger
}

// Register attaches the worker's handlers to the mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeCartTotalize, w.HandleTotalize)
	mux.HandleFunc(TypeCartExpire, w.HandleExpire)
}

// HandleTotalize processes a cart:totalize task.
func (w *Worker) HandleTotalize(ctx context.Context, task *asynq.Task) error {
	var payload CartTotalizePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode totalize payload: %w: %w", err, asynq.SkipRetry)
	}
	if w.Locker != nil {
		return w.Locker.WithLock(ctx, "lock:cart:"+payload.CartID, w.LockTTL, func(ctx context.Context) error {
			return w.totalize(ctx, payload.CartID)
		})
	}
	return w.totalize(ctx, payload.CartID)
}

func (w *Worker) totalize(ctx context.Context, cartID string) error {
	c, err := w.Carts.Get(ctx, cartID)
	if err != nil {
		if errors.Is(err, cartstore.ErrNotFound) {
			// Cart expired between enqueue and processing; nothing to do.
			w.observe(TypeCartTotalize, "skipped")
			return nil
		}
		w.observe(TypeCartTotalize, "error")
		return err
	}
	if _, err := w.Engines.NewEngine().CalculateTotals(ctx, c); err != nil {
		w.observe(TypeCartTotalize, "error")
		return fmt.Errorf("totalize cart %s: %w", cartID, err)
	}
	if err := w.Carts.Save(ctx, c); err != nil {
		w.observe(TypeCartTotalize, "error")
		return err
	}
	if w.Logger != nil {
		w.Logger.Info().Str("cart_id", cartID).Int64("total", c.Total).Msg("cart totalized")
	}
	w.observe(TypeCartTotalize, "success")
	return nil
}

// HandleExpire processes a cart:expire task.
func (w *Worker) HandleExpire(ctx context.Context, task *asynq.Task) error {
	var payload CartExpirePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode expire payload: %w: %w", err, asynq.SkipRetry)
	}
	if err := w.Carts.Delete(ctx, payload.CartID); err != nil {
		w.observe(TypeCartExpire, "error")
		return err
	}
	w.observe(TypeCartExpire, "success")
	return nil
}

func (w *Worker) observe(taskType, result string) {
	if obs.QueueTasksTotal != nil {
		obs.QueueTasksTotal.WithLabelValues(taskType, result).Inc()
	}
}
