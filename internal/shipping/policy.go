package shipping

import (
	"github.com/noah-isme/subcart/internal/cart"
	"github.com/noah-isme/subcart/internal/money"
)

// Policy decides when shipping is charged and which package lines survive a
// given calculation mode.
type Policy struct{}

// ChargeShippingUpFront reports whether shipping cost belongs on the initial
// order. Shipping is deferred to the first recurring cycle only when every
// subscription item has a free trial and no non-subscription item
// independently requires shipping.
func (Policy) ChargeShippingUpFront(c *cart.Cart) bool {
	if !c.ContainsSubscription() {
		return true
	}
	for _, item := range c.Items {
		if item.IsSubscription {
			if !item.HasTrial() {
				return true
			}
			continue
		}
		if item.NeedsShipping {
			return true
		}
	}
	return false
}

// NeedsShippingNow composes up-front eligibility with recurring shipping
// need. Under ModeNone the initial pass suppresses shipping unless up-front
// charging applies or a shipping-needing subscription exists; under
// ModeRecurringTotal need is driven purely by whether any item needs
// recurring shipping.
func (p Policy) NeedsShippingNow(c *cart.Cart, needsShippingFromContent bool, mode cart.CalcMode) bool {
	if mode == cart.ModeRecurringTotal {
		return subscriptionNeedsRecurringShipping(c)
	}
	if !needsShippingFromContent {
		return false
	}
	return p.ChargeShippingUpFront(c) || subscriptionNeedsRecurringShipping(c)
}

// FilterPackages strips package lines that must not incur cost under the
// active mode: free-trial items on the initial order, one-time-shipping items
// on every recurring cycle. Stripped line totals are deducted from the
// package contents and emptied packages are dropped.
func (Policy) FilterPackages(c *cart.Cart, packages []cart.Package, mode cart.CalcMode) []cart.Package {
	var kept []cart.Package
	for _, pkg := range packages {
		filtered := pkg.Clone()
		for key, lineTotal := range pkg.Lines {
			item, ok := c.Items[key]
			if !ok {
				delete(filtered.Lines, key)
				filtered.Contents = money.Clamp(filtered.Contents - lineTotal)
				continue
			}
			var strip bool
			switch mode {
			case cart.ModeRecurringTotal:
				strip = item.OneTimeShipping
			default:
				strip = item.HasTrial()
			}
			if strip {
				delete(filtered.Lines, key)
				filtered.Contents = money.Clamp(filtered.Contents - lineTotal)
			}
		}
		if len(filtered.Lines) == 0 {
			continue
		}
		kept = append(kept, filtered)
	}
	return kept
}

func subscriptionNeedsRecurringShipping(c *cart.Cart) bool {
	for _, item := range c.Items {
		if item.IsSubscription && item.NeedsShipping && !item.OneTimeShipping {
			return true
		}
	}
	return false
}
