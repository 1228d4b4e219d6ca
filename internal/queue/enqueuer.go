package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Enqueuer submits background tasks. A nil Client turns every enqueue into a
// no-op so the API can run without a worker in development.
type Enqueuer struct {
	Client *asynq.Client
	Logger *zerolog.Logger
}

// EnqueueTotalize schedules an asynchronous totals recompute for the cart.
func (e Enqueuer) EnqueueTotalize(ctx context.Context, cartID string) error {
	if e.Client == nil {
		return nil
	}
	if cartID == "" {
		return errors.New("queue: cart id is required")
	}
	task, err := NewCartTotalizeTask(cartID)
	if err != nil {
		return err
	}
	info, err := e.Client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", TypeCartTotalize, err)
	}
	if e.Logger != nil {
		e.Logger.Debug().Str("task_id", info.ID).Str("cart_id", cartID).Msg("totalize enqueued")
	}
	return nil
}

// EnqueueExpire schedules cart expiry after the given delay.
func (e Enqueuer) EnqueueExpire(ctx context.Context, cartID string, after time.Duration) error {
	if e.Client == nil {
		return nil
	}
	if cartID == "" {
		return errors.New("queue: cart id is required")
	}
	task, err := NewCartExpireTask(cartID, after)
	if err != nil {
		return err
	}
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", TypeCartExpire, err)
	}
	return nil
}
