package totals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/subcart/internal/cart"
	"github.com/noah-isme/subcart/internal/catalog"
	"github.com/noah-isme/subcart/internal/hooks"
	"github.com/noah-isme/subcart/internal/money"
	"github.com/noah-isme/subcart/internal/obs"
	"github.com/noah-isme/subcart/internal/pricing"
	"github.com/noah-isme/subcart/internal/schedule"
	"github.com/noah-isme/subcart/internal/session"
	"github.com/noah-isme/subcart/internal/shipping"
)

// Result is the terminal output of a totalization run: the initial-payment
// total plus one snapshot per distinct billing schedule.
type Result struct {
	Total     money.Money
	Snapshots map[string]*cart.RecurringSnapshot
}

// Factory holds the shareable collaborators and stamps out one Engine per
// totalization. Engines carry per-pass mutable state (the mode register and
// last published result) and must never be shared between carts totalizing
// concurrently; the factory is what request handlers and workers hold on to.
type Factory struct {
	Pricing  pricing.Engine
	Shipping shipping.Service
	Catalog  catalog.Provider
	Sessions session.Store
	Hooks    *hooks.Pipeline
	Logger   *zerolog.Logger
	Now      func() time.Time
}

// NewEngine returns a fresh engine with its mode register at None.
func (f Factory) NewEngine() *Engine {
	return &Engine{
		Pricing:  f.Pricing,
		Shipping: f.Shipping,
		Catalog:  f.Catalog,
		Sessions: f.Sessions,
		Hooks:    f.Hooks,
		Logger:   f.Logger,
		Now:      f.Now,
	}
}

// Engine drives the full totalization pass sequence over a cart:
// InitialPass -> Grouping -> PerGroupPass(xN) -> Reconciliation. The engine
// owns its calculation-mode register; the mode is never process-global, so
// independent carts can totalize concurrently on separate engines.
type Engine struct {
	Pricing  pricing.Engine
	Shipping shipping.Service
	Catalog  catalog.Provider
	Sessions session.Store
	Hooks    *hooks.Pipeline
	Logger   *zerolog.Logger
	Now      func() time.Time

	mode cart.CalcMode
	last Result
}

// Mode returns the active calculation mode. Outside a pass it is always
// cart.ModeNone.
func (e *Engine) Mode() cart.CalcMode {
	if e.mode == "" {
		return cart.ModeNone
	}
	return e.mode
}

func (e *Engine) setMode(m cart.CalcMode) {
	e.mode = m
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// CalculateTotals runs one full totalization over the cart and publishes the
// final total plus the recurring snapshot set onto it.
//
// Entering while a pass is already active (mode != None) is a no-op that
// returns the in-flight result, preventing infinite recalculation loops when
// nested triggers fire. The mode register is restored to None on every exit
// path; on failure the previous snapshot mapping is left untouched and the
// last published total (zero if none) accompanies the error.
func (e *Engine) CalculateTotals(ctx context.Context, c *cart.Cart) (Result, error) {
	if c == nil {
		return Result{}, errors.New("totals: cart is required")
	}
	if e.Mode() != cart.ModeNone {
		return e.last, nil
	}
	start := e.now()
	defer e.setMode(cart.ModeNone)

	e.restoreShippingMethod(ctx, c)
	e.fire(ctx, hooks.StageBeforeTotals, c)

	// InitialPass: undifferentiated totals with the resolver in None mode.
	if err := e.Pricing.Calculate(ctx, c, cart.ModeNone); err != nil {
		return e.fail(start, err)
	}

	// Grouping: recurring snapshots only exist for subscription carts.
	groups := schedule.Group(c)
	if len(groups) > 0 {
		e.setMode(cart.ModeRecurringTotal)
		next := make(map[string]*cart.RecurringSnapshot, len(groups))
		for _, key := range schedule.SortedGroupKeys(groups) {
			snapshot, err := e.buildSnapshot(ctx, c, groups[key], key)
			if err != nil {
				return e.fail(start, fmt.Errorf("totals: group %s: %w", key, err))
			}
			next[key] = snapshot
		}
		// Swap is atomic: the old mapping survives any per-group failure.
		c.RecurringSnapshots = next
		e.setMode(cart.ModeNone)

		// Reconciliation: recompute shared shipping at the cart level.
		e.Shipping.Reset(c)
		packages, total, tax, err := e.Shipping.Calculate(ctx, c, cart.ModeNone)
		if err != nil {
			return e.fail(start, err)
		}
		c.Packages = packages
		c.ShippingTotal = total
		c.ShippingTaxTotal = tax
	}

	if err := e.zeroFeesForFreeTrial(ctx, c); err != nil {
		return e.fail(start, err)
	}

	// DiscountTotal is a fixed pre-tax discount: it shrank the tax basis in
	// the pricing pass and reduces the payable contents here.
	final := money.Clamp(c.ContentsTotal - c.DiscountTotal + c.TaxTotal + c.ShippingTaxTotal + c.ShippingTotal + c.FeeTotal)
	if c.AfterTaxDiscount > 0 {
		final = money.Clamp(final - c.AfterTaxDiscount)
	}
	if !e.Shipping.Policy.ChargeShippingUpFront(c) {
		final = money.Clamp(final - c.ShippingTaxTotal - c.ShippingTotal)
		c.ShippingTotal = 0
		c.ShippingTaxTotal = 0
		c.Packages = nil
	}
	c.Total = final

	e.last = Result{Total: final, Snapshots: c.RecurringSnapshots}
	e.fire(ctx, hooks.StageTotalsCalculated, c)
	e.observe(start, "success", len(groups))
	return e.last, nil
}

// buildSnapshot runs one per-group pass: an isolated deep copy of the base
// cart restricted to the group's items, totalled in RecurringTotal mode.
func (e *Engine) buildSnapshot(ctx context.Context, base *cart.Cart, groupKeys []string, scheduleKey string) (*cart.RecurringSnapshot, error) {
	if len(groupKeys) == 0 {
		return nil, errors.New("empty schedule group")
	}
	clone := base.Clone()
	clone.Retain(groupKeys)
	clone.ClearFees()
	clone.DiscountTotal = 0
	clone.AfterTaxDiscount = 0

	first := clone.Items[groupKeys[0]]
	if e.Catalog != nil {
		if _, err := e.Catalog.Product(ctx, first.ProductID); err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return nil, fmt.Errorf("item %s: %w", first.Key, cart.ErrUnknownProduct)
			}
			return nil, err
		}
	}

	start := e.now()
	snapshot := &cart.RecurringSnapshot{
		Key:             scheduleKey,
		StartDate:       start,
		TrialEndDate:    schedule.TrialEnd(first, start),
		NextPaymentDate: schedule.NextPayment(first, start),
		EndDate:         schedule.EndDate(first, start),
	}

	e.Shipping.Reset(clone)
	if err := e.Pricing.Calculate(ctx, clone, cart.ModeRecurringTotal); err != nil {
		return nil, err
	}
	e.fire(ctx, hooks.StagePackagesAssembled, clone)

	clone.Total = money.Clamp(clone.ContentsTotal + clone.TaxTotal + clone.ShippingTaxTotal + clone.ShippingTotal + clone.FeeTotal)

	// Session-only state is not part of the snapshot's public data.
	clone.ShippingMethod = ""
	clone.RecurringSnapshots = nil
	snapshot.Cart = clone
	return snapshot, nil
}

// zeroFeesForFreeTrial clears every fee when nothing is due until the first
// recurring cycle: a zero sign-up-fee sum and a cart made entirely of
// free-trial subscriptions.
func (e *Engine) zeroFeesForFreeTrial(ctx context.Context, c *cart.Cart) error {
	if !c.AllItemsHaveFreeTrial() {
		return nil
	}
	var feeSum money.Money
	for _, key := range c.SortedKeys() {
		item := c.Items[key]
		if !item.IsSubscription {
			continue
		}
		fee, err := e.Pricing.Resolver.SignUpFee(ctx, item)
		if err != nil {
			return err
		}
		feeSum += fee * money.Money(item.Qty)
	}
	if feeSum != 0 {
		return nil
	}
	for i := range c.Fees {
		c.Fees[i].Amount = 0
		c.Fees[i].Tax = 0
	}
	c.FeeTotal = 0
	return nil
}

func (e *Engine) restoreShippingMethod(ctx context.Context, c *cart.Cart) {
	if e.Sessions == nil || c.ShippingMethod != "" {
		return
	}
	method, err := e.Sessions.Get(ctx, ShippingMethodKey(c.ID), "")
	if err != nil {
		if e.Logger != nil {
			e.Logger.Warn().Err(err).Str("cart_id", c.ID).Msg("restore shipping method")
		}
		return
	}
	c.ShippingMethod = method
}

// ShippingMethodKey is the session key holding a cart's chosen method.
func ShippingMethodKey(cartID string) string {
	return "cart:" + cartID + ":shipping_method"
}

func (e *Engine) fire(ctx context.Context, stage hooks.Stage, c *cart.Cart) {
	if err := e.Hooks.Fire(ctx, stage, c); err != nil && e.Logger != nil {
		e.Logger.Warn().Err(err).Str("stage", string(stage)).Msg("totalization hook")
	}
}

func (e *Engine) fail(start time.Time, err error) (Result, error) {
	e.setMode(cart.ModeNone)
	e.observe(start, "error", 0)
	if e.Logger != nil {
		e.Logger.Error().Err(err).Msg("totalization failed")
	}
	return e.last, err
}

func (e *Engine) observe(start time.Time, result string, groups int) {
	if obs.TotalizationTotal != nil {
		obs.TotalizationTotal.WithLabelValues(result).Inc()
	}
	if obs.TotalizationDuration != nil {
		obs.TotalizationDuration.WithLabelValues(result).Observe(obs.DurationMillis(time.Since(start)))
	}
	if result == "success" && obs.RecurringGroups != nil {
		obs.RecurringGroups.Observe(float64(groups))
	}
}
