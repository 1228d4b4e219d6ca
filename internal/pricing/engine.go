package pricing

import (
	"context"
	"errors"

	"github.com/noah-isme/subcart/internal/cart"
	"github.com/noah-isme/subcart/internal/money"
)

// Money is re-exported for callers that only need arithmetic types.
type Money = money.Money

// ShippingCalculator computes shipping packages and costs for a cart under a
// calculation mode. Implemented by the shipping service; nil disables
// shipping entirely.
type ShippingCalculator interface {
	Calculate(ctx context.Context, c *cart.Cart, mode cart.CalcMode) ([]cart.Package, Money, Money, error)
}

// Engine is the arithmetic pass over a cart: it resolves per-line prices for
// the active mode and fills in every aggregate field. It holds no state
// between passes.
type Engine struct {
	Resolver Resolver
	TaxBps   int
	Shipping ShippingCalculator
}

// Calculate runs one totalization pass over the cart in the given mode,
// writing contents, tax, shipping, and fee aggregates. Line totals are the
// only item fields mutated.
func (e Engine) Calculate(ctx context.Context, c *cart.Cart, mode cart.CalcMode) error {
	if c == nil {
		return errors.New("pricing: cart is required")
	}
	c.ResetAggregates()

	for _, key := range c.SortedKeys() {
		item := c.Items[key]
		price, err := e.Resolver.Resolve(ctx, item, mode)
		if err != nil {
			return err
		}
		item.LineTotal = price * Money(item.Qty)
		c.ContentsTotal += item.LineTotal
	}

	if c.DiscountTotal > c.ContentsTotal {
		c.DiscountTotal = c.ContentsTotal
	}
	taxable := money.Clamp(c.ContentsTotal - c.DiscountTotal)
	c.TaxTotal = money.Percent(taxable, e.TaxBps)

	for _, fee := range c.Fees {
		c.FeeTotal += fee.Amount + fee.Tax
	}

	if e.Shipping != nil {
		packages, total, tax, err := e.Shipping.Calculate(ctx, c, mode)
		if err != nil {
			return err
		}
		c.Packages = packages
		c.ShippingTotal = total
		c.ShippingTaxTotal = tax
	}
	return nil
}
