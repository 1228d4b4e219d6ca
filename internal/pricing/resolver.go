package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/subcart/internal/cart"
	"github.com/noah-isme/subcart/internal/catalog"
	"github.com/noah-isme/subcart/internal/money"
)

// Resolver maps a line item and the active calculation mode to the unit price
// used in totals. Resolution is side-effect free and idempotent for identical
// inputs.
type Resolver struct {
	Catalog catalog.Provider
}

// Resolve returns the unit price for the item under the given mode.
//
// Non-subscription items price at their catalog price in every mode except
// RecurringTotal, where they contribute nothing. Subscription items price at
// sign-up fee alone while trialing under ModeNone, recurring price plus
// sign-up fee otherwise; every other mode yields the recurring price with the
// sign-up fee excluded, since that one-time charge is captured by the None
// pass.
func (r Resolver) Resolve(ctx context.Context, item *cart.LineItem, mode cart.CalcMode) (money.Money, error) {
	if !item.IsSubscription {
		if mode == cart.ModeRecurringTotal {
			return 0, nil
		}
		return item.UnitPrice, nil
	}
	if mode != cart.ModeNone {
		return item.UnitPrice, nil
	}
	fee, err := r.SignUpFee(ctx, item)
	if err != nil {
		return 0, err
	}
	if item.HasTrial() {
		return fee, nil
	}
	return item.UnitPrice + fee, nil
}

// SignUpFee applies the override precedence rule: an explicit item override
// wins over the catalog-derived default.
func (r Resolver) SignUpFee(ctx context.Context, item *cart.LineItem) (money.Money, error) {
	if item.SignUpFee != nil {
		return *item.SignUpFee, nil
	}
	if r.Catalog == nil {
		return 0, nil
	}
	product, err := r.Catalog.Product(ctx, item.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return 0, fmt.Errorf("resolve sign-up fee for %s: %w", item.Key, cart.ErrUnknownProduct)
		}
		return 0, err
	}
	return product.SignUpFee, nil
}
