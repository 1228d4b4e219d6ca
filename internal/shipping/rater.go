package shipping

import (
	"context"

	"github.com/noah-isme/subcart/internal/cart"
	"github.com/noah-isme/subcart/internal/money"
)

// Rater computes the shipping cost for an assembled package.
type Rater interface {
	Rate(ctx context.Context, pkg cart.Package, method string) (money.Money, error)
}

// TableRater rates packages from a flat table: a per-method base charge plus
// a per-line charge, free above an optional contents threshold.
type TableRater struct {
	Base    money.Money
	PerLine money.Money
	// FreeOver waives the charge when package contents reach the threshold.
	// Zero disables the waiver.
	FreeOver money.Money
	// Methods maps a chosen shipping method to its base charge. Unknown or
	// empty methods fall back to Base.
	Methods map[string]money.Money
}

// Rate implements Rater.
func (r TableRater) Rate(_ context.Context, pkg cart.Package, method string) (money.Money, error) {
	if len(pkg.Lines) == 0 {
		return 0, nil
	}
	if r.FreeOver > 0 && pkg.Contents >= r.FreeOver {
		return 0, nil
	}
	base := r.Base
	if method != "" {
		if override, ok := r.Methods[method]; ok {
			base = override
		}
	}
	return base + r.PerLine*money.Money(len(pkg.Lines)), nil
}
