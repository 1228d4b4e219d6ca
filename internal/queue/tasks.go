package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names routed through asynq.
const (
	TypeCartTotalize = "cart:totalize"
	TypeCartExpire   = "cart:expire"
)

// CartTotalizePayload asks the worker to recompute a stored cart's totals.
type CartTotalizePayload struct {
	CartID string `json:"cartId"`
}

// CartExpirePayload asks the worker to drop an abandoned cart.
type CartExpirePayload struct {
	CartID string `json:"cartId"`
}

// NewCartTotalizeTask builds the totalization task for a cart.
func NewCartTotalizeTask(cartID string) (*asynq.Task, error) {
	payload, err := json.Marshal(CartTotalizePayload{CartID: cartID})
	if err != nil {
		return nil, fmt.Errorf("queue: encode totalize payload: %w", err)
	}
	return asynq.NewTask(TypeCartTotalize, payload,
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}

// NewCartExpireTask builds a delayed expiry task for a cart.
func NewCartExpireTask(cartID string, after time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(CartExpirePayload{CartID: cartID})
	if err != nil {
		return nil, fmt.Errorf("queue: encode expire payload: %w", err)
	}
	return asynq.NewTask(TypeCartExpire, payload,
		asynq.MaxRetry(3),
		asynq.ProcessIn(after),
	), nil
}
