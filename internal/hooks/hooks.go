package hooks

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/subcart/internal/cart"
)

// Stage names an extension point in the totalization pipeline. Stages are
// called directly by the aggregator in fixed order; this is an ordered
// pipeline of named hooks, not a general pub/sub system.
type Stage string

// Extension points fired around a totalization pass.
const (
	StageBeforeTotals      Stage = "before_totals"
	StageTotalsCalculated  Stage = "totals_calculated"
	StagePackagesAssembled Stage = "packages_assembled"
)

// Handler reacts to a stage. Handlers run in registration order.
type Handler func(ctx context.Context, c *cart.Cart) error

// Pipeline holds the registered handlers per stage.
type Pipeline struct {
	handlers map[Stage][]Handler
}

// Register appends a handler to the stage's ordered chain.
func (p *Pipeline) Register(stage Stage, h Handler) {
	if h == nil {
		return
	}
	if p.handlers == nil {
		p.handlers = map[Stage][]Handler{}
	}
	p.handlers[stage] = append(p.handlers[stage], h)
}

// Fire invokes every handler registered for the stage in order. Handler
// errors are joined; all handlers run regardless of earlier failures.
func (p *Pipeline) Fire(ctx context.Context, stage Stage, c *cart.Cart) error {
	if p == nil || p.handlers == nil {
		return nil
	}
	var joined error
	for _, h := range p.handlers[stage] {
		if err := h(ctx, c); err != nil {
			joined = errors.Join(joined, fmt.Errorf("hooks: %s: %w", stage, err))
		}
	}
	return joined
}
