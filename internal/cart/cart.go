package cart

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/subcart/internal/money"
)

// ErrUnknownProduct indicates a retained item references a product the
// catalog cannot resolve. Fatal to the current totalization pass.
var ErrUnknownProduct = errors.New("cart: unknown product")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("cart: invalid input")

// Period is a billing period unit.
type Period string

// Billing period units understood by the schedule grouper.
const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// CalcMode selects the price interpretation for a totalization pass.
type CalcMode string

// Calculation modes. Exactly one is active per pass; every component that
// sets a mode must restore ModeNone before returning control.
const (
	ModeNone           CalcMode = "none"
	ModeCombinedTotal  CalcMode = "combined_total"
	ModeSignUpFeeTotal CalcMode = "sign_up_fee_total"
	ModeRecurringTotal CalcMode = "recurring_total"
	ModeFreeTrialTotal CalcMode = "free_trial_total"
)

// LineItem is one cart row. It is created when an item enters the cart and
// mutated only by price resolution during a calculation pass.
type LineItem struct {
	Key            string      `json:"key"`
	ProductID      uuid.UUID   `json:"productId"`
	Qty            int         `json:"qty"`
	UnitPrice      money.Money `json:"unitPrice"`
	LineTotal      money.Money `json:"lineTotal"`
	IsSubscription bool        `json:"isSubscription"`

	// SignUpFee overrides the catalog sign-up fee when non-nil.
	SignUpFee *money.Money `json:"signUpFee,omitempty"`

	TrialLength int    `json:"trialLength"`
	TrialPeriod Period `json:"trialPeriod,omitempty"`
	Interval    int    `json:"interval"`
	Period      Period `json:"period,omitempty"`

	// Length is the number of billing periods; 0 means unlimited.
	Length int `json:"length"`

	// SyncDate is the first-renewal timestamp for synchronized billing.
	// The zero value means the item bills relative to purchase.
	SyncDate time.Time `json:"syncDate,omitempty"`

	OneTimeShipping bool `json:"oneTimeShipping"`
	NeedsShipping   bool `json:"needsShipping"`
}

// HasTrial reports whether the item carries a free trial.
func (li *LineItem) HasTrial() bool {
	return li.TrialLength > 0
}

// Synchronized reports whether the item renews on a fixed calendar date.
func (li *LineItem) Synchronized() bool {
	return !li.SyncDate.IsZero()
}

// Fee is a one-time charge attached to the cart.
type Fee struct {
	ID     string      `json:"id"`
	Amount money.Money `json:"amount"`
	Tax    money.Money `json:"tax"`
}

// Package groups shippable items for rating. Lines maps item key to the line
// total carried for rate calculation; Contents is the sum of Lines.
type Package struct {
	Lines    map[string]money.Money `json:"lines"`
	Contents money.Money            `json:"contents"`
	Cost     money.Money            `json:"cost"`
}

// RecurringSnapshot is the immutable result of one per-schedule-group pass.
// A zero NextPaymentDate encodes "no further payment" (single-payment
// subscription). Snapshots are replaced wholesale on every totalization run.
type RecurringSnapshot struct {
	Key             string    `json:"key"`
	StartDate       time.Time `json:"startDate"`
	TrialEndDate    time.Time `json:"trialEndDate,omitempty"`
	NextPaymentDate time.Time `json:"nextPaymentDate,omitempty"`
	EndDate         time.Time `json:"endDate,omitempty"`
	Cart            *Cart     `json:"cart"`
}

// Cart holds line items plus the aggregate fields produced by a totalization
// pass. Aggregates are derived outputs and must not be read before a pass
// completes.
type Cart struct {
	ID    string               `json:"id"`
	Items map[string]*LineItem `json:"items"`

	ContentsTotal    money.Money `json:"contentsTotal"`
	TaxTotal         money.Money `json:"taxTotal"`
	ShippingTotal    money.Money `json:"shippingTotal"`
	ShippingTaxTotal money.Money `json:"shippingTaxTotal"`
	FeeTotal         money.Money `json:"feeTotal"`
	DiscountTotal    money.Money `json:"discountTotal"`

	// AfterTaxDiscount is a legacy discount subtracted from the final total
	// after tax. Zero for carts created by this engine.
	AfterTaxDiscount money.Money `json:"afterTaxDiscount,omitempty"`

	Total money.Money `json:"total"`

	Fees     []Fee     `json:"fees,omitempty"`
	Packages []Package `json:"packages,omitempty"`

	// ShippingMethod is the session-chosen method. Transient: stripped from
	// recurring snapshots.
	ShippingMethod string `json:"shippingMethod,omitempty"`

	RecurringSnapshots map[string]*RecurringSnapshot `json:"recurringSnapshots,omitempty"`
}

// New constructs an empty cart with the provided identifier.
func New(id string) *Cart {
	return &Cart{ID: id, Items: map[string]*LineItem{}}
}

// AddItem inserts a line item keyed by its item key.
func (c *Cart) AddItem(item *LineItem) error {
	if item == nil || item.Key == "" {
		return ErrInvalidInput
	}
	if item.Qty <= 0 {
		return ErrInvalidInput
	}
	if c.Items == nil {
		c.Items = map[string]*LineItem{}
	}
	c.Items[item.Key] = item
	return nil
}

// SortedKeys returns item keys in lexical order for stable iteration.
func (c *Cart) SortedKeys() []string {
	keys := make([]string, 0, len(c.Items))
	for k := range c.Items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ContainsSubscription reports whether any line item is a subscription.
func (c *Cart) ContainsSubscription() bool {
	for _, item := range c.Items {
		if item.IsSubscription {
			return true
		}
	}
	return false
}

// AllItemsHaveFreeTrial reports whether the cart is non-empty and every item
// is a subscription with a free trial.
func (c *Cart) AllItemsHaveFreeTrial() bool {
	if len(c.Items) == 0 {
		return false
	}
	for _, item := range c.Items {
		if !item.IsSubscription || !item.HasTrial() {
			return false
		}
	}
	return true
}

// SignUpFeeSum totals the explicit sign-up fee overrides of subscription
// items. Items without an override contribute zero; catalog defaults are
// resolved by the price resolver, not here.
func (c *Cart) SignUpFeeSum() money.Money {
	var sum money.Money
	for _, item := range c.Items {
		if item.IsSubscription && item.SignUpFee != nil {
			sum += *item.SignUpFee * money.Money(item.Qty)
		}
	}
	return sum
}

// ResetAggregates clears all derived totals before a calculation pass.
func (c *Cart) ResetAggregates() {
	c.ContentsTotal = 0
	c.TaxTotal = 0
	c.ShippingTotal = 0
	c.ShippingTaxTotal = 0
	c.FeeTotal = 0
	c.Total = 0
	c.Packages = nil
}

// Clone returns a deep copy of the cart. Line items, fees and packages are
// copied by value so mutations to the clone never alias the source. The
// recurring snapshot mapping is reset, not copied: clones are working copies
// for a single group pass.
func (c *Cart) Clone() *Cart {
	clone := &Cart{
		ID:               c.ID,
		Items:            make(map[string]*LineItem, len(c.Items)),
		ContentsTotal:    c.ContentsTotal,
		TaxTotal:         c.TaxTotal,
		ShippingTotal:    c.ShippingTotal,
		ShippingTaxTotal: c.ShippingTaxTotal,
		FeeTotal:         c.FeeTotal,
		DiscountTotal:    c.DiscountTotal,
		AfterTaxDiscount: c.AfterTaxDiscount,
		Total:            c.Total,
		ShippingMethod:   c.ShippingMethod,
	}
	for key, item := range c.Items {
		copied := *item
		if item.SignUpFee != nil {
			fee := *item.SignUpFee
			copied.SignUpFee = &fee
		}
		clone.Items[key] = &copied
	}
	if len(c.Fees) > 0 {
		clone.Fees = make([]Fee, len(c.Fees))
		copy(clone.Fees, c.Fees)
	}
	for _, pkg := range c.Packages {
		clone.Packages = append(clone.Packages, pkg.Clone())
	}
	return clone
}

// Clone deep-copies a package.
func (p Package) Clone() Package {
	lines := make(map[string]money.Money, len(p.Lines))
	for k, v := range p.Lines {
		lines[k] = v
	}
	return Package{Lines: lines, Contents: p.Contents, Cost: p.Cost}
}

// Retain drops every line item whose key is not in keep.
func (c *Cart) Retain(keep []string) {
	allowed := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		allowed[k] = struct{}{}
	}
	for key := range c.Items {
		if _, ok := allowed[key]; !ok {
			delete(c.Items, key)
		}
	}
}

// ClearFees removes accrued fees. Fees do not automatically recur.
func (c *Cart) ClearFees() {
	c.Fees = nil
	c.FeeTotal = 0
}
