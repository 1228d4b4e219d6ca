package shipping

import (
	"context"
	"errors"

	"github.com/noah-isme/subcart/internal/cart"
	"github.com/noah-isme/subcart/internal/money"
)

// Service assembles, filters and rates shipping packages for a totalization
// pass. It implements the pricing engine's ShippingCalculator.
type Service struct {
	Policy Policy
	Rater  Rater
	TaxBps int
}

// Calculate builds the shipping packages for the cart under the given mode
// and returns them with the rated total and shipping tax.
func (s Service) Calculate(ctx context.Context, c *cart.Cart, mode cart.CalcMode) ([]cart.Package, money.Money, money.Money, error) {
	if s.Rater == nil {
		return nil, 0, 0, errors.New("shipping: rater not configured")
	}
	needsFromContent := false
	for _, item := range c.Items {
		if item.NeedsShipping {
			needsFromContent = true
			break
		}
	}
	if !s.Policy.NeedsShippingNow(c, needsFromContent, mode) {
		return nil, 0, 0, nil
	}

	packages := s.Policy.FilterPackages(c, assemble(c), mode)
	var total money.Money
	for i := range packages {
		cost, err := s.Rater.Rate(ctx, packages[i], c.ShippingMethod)
		if err != nil {
			return nil, 0, 0, err
		}
		packages[i].Cost = cost
		total += cost
	}
	return packages, total, money.Percent(total, s.TaxBps), nil
}

// Reset clears rated shipping state before a recompute.
func (Service) Reset(c *cart.Cart) {
	c.Packages = nil
	c.ShippingTotal = 0
	c.ShippingTaxTotal = 0
}

// assemble collects every shipping-needing line into a single package. Mode
// specific exclusions are applied afterwards by the policy filter.
func assemble(c *cart.Cart) []cart.Package {
	pkg := cart.Package{Lines: map[string]money.Money{}}
	for _, key := range c.SortedKeys() {
		item := c.Items[key]
		if !item.NeedsShipping {
			continue
		}
		pkg.Lines[key] = item.LineTotal
		pkg.Contents += item.LineTotal
	}
	if len(pkg.Lines) == 0 {
		return nil
	}
	return []cart.Package{pkg}
}
