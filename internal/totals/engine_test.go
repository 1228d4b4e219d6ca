package totals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/subcart/internal/cart"
	"github.com/noah-isme/subcart/internal/catalog"
	"github.com/noah-isme/subcart/internal/hooks"
	"github.com/noah-isme/subcart/internal/money"
	"github.com/noah-isme/subcart/internal/pricing"
	"github.com/noah-isme/subcart/internal/shipping"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newEngine(taxBps int) *Engine {
	svc := shipping.Service{
		Rater:  shipping.TableRater{Base: 500},
		TaxBps: taxBps,
	}
	return &Engine{
		Pricing:  pricing.Engine{Resolver: pricing.Resolver{}, TaxBps: taxBps, Shipping: svc},
		Shipping: svc,
		Now:      func() time.Time { return testNow },
	}
}

func feePtr(v money.Money) *money.Money { return &v }

func monthlySub(key string, price money.Money) *cart.LineItem {
	return &cart.LineItem{
		Key:            key,
		ProductID:      uuid.New(),
		Qty:            1,
		UnitPrice:      price,
		IsSubscription: true,
		Interval:       1,
		Period:         cart.PeriodMonth,
		SignUpFee:      feePtr(0),
	}
}

func TestCalculateTotalsSimpleCart(t *testing.T) {
	e := newEngine(0)
	c := cart.New("c1")
	if err := c.AddItem(&cart.LineItem{Key: "book", ProductID: uuid.New(), Qty: 2, UnitPrice: 1500}); err != nil {
		t.Fatal(err)
	}

	res, err := e.CalculateTotals(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 3000 {
		t.Fatalf("expected total 3000, got %d", res.Total)
	}
	if len(c.RecurringSnapshots) != 0 {
		t.Fatalf("expected no recurring snapshots for a one-time cart, got %d", len(c.RecurringSnapshots))
	}
}

func TestModeRestoredAfterPass(t *testing.T) {
	e := newEngine(0)
	c := cart.New("c1")
	if err := c.AddItem(monthlySub("sub", 2500)); err != nil {
		t.Fatal(err)
	}

	if _, err := e.CalculateTotals(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	if e.Mode() != cart.ModeNone {
		t.Fatalf("expected mode restored to none, got %s", e.Mode())
	}
}

func TestModeRestoredAfterFailure(t *testing.T) {
	e := newEngine(0)
	e.Catalog = catalog.NewMemory() // empty: every lookup misses
	c := cart.New("c1")
	if err := c.AddItem(monthlySub("sub", 2500)); err != nil {
		t.Fatal(err)
	}

	_, err := e.CalculateTotals(context.Background(), c)
	if !errors.Is(err, cart.ErrUnknownProduct) {
		t.Fatalf("expected unknown product error, got %v", err)
	}
	if e.Mode() != cart.ModeNone {
		t.Fatalf("expected mode restored to none after failure, got %s", e.Mode())
	}
}

func TestFailureRetainsPriorSnapshots(t *testing.T) {
	e := newEngine(0)
	c := cart.New("c1")
	if err := c.AddItem(monthlySub("sub", 2500)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CalculateTotals(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	if len(c.RecurringSnapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(c.RecurringSnapshots))
	}

	e.Catalog = catalog.NewMemory()
	if _, err := e.CalculateTotals(context.Background(), c); err == nil {
		t.Fatal("expected failure with empty catalog")
	}
	if len(c.RecurringSnapshots) != 1 {
		t.Fatalf("expected prior snapshots retained after failure, got %d", len(c.RecurringSnapshots))
	}
}

func TestSignUpFeeDuringTrial(t *testing.T) {
	e := newEngine(0)
	c := cart.New("c1")
	item := monthlySub("sub", 2500)
	item.SignUpFee = feePtr(1000)
	item.TrialLength = 7
	item.TrialPeriod = cart.PeriodDay
	if err := c.AddItem(item); err != nil {
		t.Fatal(err)
	}

	res, err := e.CalculateTotals(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1000 {
		t.Fatalf("expected initial total 1000 (sign-up fee only), got %d", res.Total)
	}
	snap, ok := c.RecurringSnapshots["monthly_after_a_7_day_trial"]
	if !ok {
		t.Fatalf("expected snapshot for trial schedule, have %v", snapshotKeys(c))
	}
	if snap.Cart.Total != 2500 {
		t.Fatalf("expected recurring total 2500, got %d", snap.Cart.Total)
	}
	if !snap.TrialEndDate.Equal(testNow.AddDate(0, 0, 7)) {
		t.Fatalf("unexpected trial end %v", snap.TrialEndDate)
	}
}

func TestFreeTrialZeroesFees(t *testing.T) {
	e := newEngine(0)
	c := cart.New("c1")
	item := monthlySub("sub", 2500)
	item.TrialLength = 1
	item.TrialPeriod = cart.PeriodMonth
	if err := c.AddItem(item); err != nil {
		t.Fatal(err)
	}
	c.Fees = []cart.Fee{{ID: "setup", Amount: 500, Tax: 50}}

	res, err := e.CalculateTotals(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 0 {
		t.Fatalf("expected zero initial total for pure free-trial cart, got %d", res.Total)
	}
	if c.FeeTotal != 0 || c.Fees[0].Amount != 0 || c.Fees[0].Tax != 0 {
		t.Fatalf("expected fees zeroed, got feeTotal=%d fee=%+v", c.FeeTotal, c.Fees[0])
	}
}

func TestFeesKeptWhenSignUpFeeCharged(t *testing.T) {
	e := newEngine(0)
	c := cart.New("c1")
	item := monthlySub("sub", 2500)
	item.SignUpFee = feePtr(1000)
	item.TrialLength = 1
	item.TrialPeriod = cart.PeriodMonth
	if err := c.AddItem(item); err != nil {
		t.Fatal(err)
	}
	c.Fees = []cart.Fee{{ID: "setup", Amount: 500, Tax: 0}}

	res, err := e.CalculateTotals(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if c.Fees[0].Amount != 500 {
		t.Fatalf("expected fee untouched when a sign-up fee is charged, got %d", c.Fees[0].Amount)
	}
	if res.Total != 1500 {
		t.Fatalf("expected total 1500 (fee + sign-up fee), got %d", res.Total)
	}
}

func TestShippingDeferredForTrialingSubscription(t *testing.T) {
	e := newEngine(0)
	c := cart.New("c1")
	item := monthlySub("box", 2000)
	item.TrialLength = 14
	item.TrialPeriod = cart.PeriodDay
	item.NeedsShipping = true
	if err := c.AddItem(item); err != nil {
		t.Fatal(err)
	}

	res, err := e.CalculateTotals(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if c.ShippingTotal != 0 || len(c.Packages) != 0 {
		t.Fatalf("expected no up-front shipping, got total=%d packages=%d", c.ShippingTotal, len(c.Packages))
	}
	if res.Total != 0 {
		t.Fatalf("expected zero initial total, got %d", res.Total)
	}
	snap := c.RecurringSnapshots["monthly_after_a_14_day_trial"]
	if snap == nil {
		t.Fatalf("missing snapshot, have %v", snapshotKeys(c))
	}
	if snap.Cart.ShippingTotal != 500 {
		t.Fatalf("expected recurring shipping 500, got %d", snap.Cart.ShippingTotal)
	}
	if snap.Cart.Total != 2500 {
		t.Fatalf("expected recurring total 2500, got %d", snap.Cart.Total)
	}
}

func TestUpFrontShippingForPlainSubscription(t *testing.T) {
	e := newEngine(0)
	c := cart.New("c1")
	item := monthlySub("box", 2000)
	item.NeedsShipping = true
	if err := c.AddItem(item); err != nil {
		t.Fatal(err)
	}

	res, err := e.CalculateTotals(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if c.ShippingTotal != 500 {
		t.Fatalf("expected up-front shipping 500, got %d", c.ShippingTotal)
	}
	if res.Total != 2500 {
		t.Fatalf("expected total 2500, got %d", res.Total)
	}
}

func TestGroupIsolation(t *testing.T) {
	e := newEngine(0)
	c := cart.New("c1")
	if err := c.AddItem(monthlySub("plan_a", 1000)); err != nil {
		t.Fatal(err)
	}
	yearly := monthlySub("plan_b", 5000)
	yearly.Period = cart.PeriodYear
	if err := c.AddItem(yearly); err != nil {
		t.Fatal(err)
	}

	if _, err := e.CalculateTotals(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	if len(c.RecurringSnapshots) != 2 {
		t.Fatalf("expected 2 snapshots, got %v", snapshotKeys(c))
	}
	monthly := c.RecurringSnapshots["monthly"]
	annual := c.RecurringSnapshots["yearly"]
	if monthly == nil || annual == nil {
		t.Fatalf("missing schedule snapshot, have %v", snapshotKeys(c))
	}
	if len(monthly.Cart.Items) != 1 || monthly.Cart.Items["plan_a"] == nil {
		t.Fatalf("monthly snapshot carries wrong items: %v", monthly.Cart.Items)
	}
	if len(annual.Cart.Items) != 1 || annual.Cart.Items["plan_b"] == nil {
		t.Fatalf("yearly snapshot carries wrong items: %v", annual.Cart.Items)
	}
	if monthly.Cart.Total != 1000 || annual.Cart.Total != 5000 {
		t.Fatalf("unexpected snapshot totals: monthly=%d yearly=%d", monthly.Cart.Total, annual.Cart.Total)
	}

	// Snapshot carts are deep copies: mutating one leaks nowhere.
	monthly.Cart.Items["plan_a"].UnitPrice = 9999
	if c.Items["plan_a"].UnitPrice != 1000 {
		t.Fatal("snapshot mutation reached the base cart")
	}
}

func TestCalculateTotalsIdempotent(t *testing.T) {
	e := newEngine(1100)
	c := cart.New("c1")
	if err := c.AddItem(&cart.LineItem{Key: "book", ProductID: uuid.New(), Qty: 1, UnitPrice: 1999}); err != nil {
		t.Fatal(err)
	}
	if err := c.AddItem(monthlySub("plan", 2500)); err != nil {
		t.Fatal(err)
	}

	first, err := e.CalculateTotals(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.CalculateTotals(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if first.Total != second.Total {
		t.Fatalf("totals drifted across runs: %d vs %d", first.Total, second.Total)
	}
	if len(first.Snapshots) != len(second.Snapshots) {
		t.Fatalf("snapshot count drifted: %d vs %d", len(first.Snapshots), len(second.Snapshots))
	}
	for key, snap := range first.Snapshots {
		again := second.Snapshots[key]
		if again == nil || again.Cart.Total != snap.Cart.Total {
			t.Fatalf("snapshot %s drifted across runs", key)
		}
	}
}

func TestTaxRoundsHalfUp(t *testing.T) {
	e := newEngine(750) // 7.5%
	c := cart.New("c1")
	if err := c.AddItem(&cart.LineItem{Key: "odd", ProductID: uuid.New(), Qty: 1, UnitPrice: 333}); err != nil {
		t.Fatal(err)
	}

	res, err := e.CalculateTotals(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	// 333 * 7.5% = 24.975, half-up to 25.
	if c.TaxTotal != 25 {
		t.Fatalf("expected tax 25, got %d", c.TaxTotal)
	}
	if res.Total != 358 {
		t.Fatalf("expected total 358, got %d", res.Total)
	}
}

func TestReentrantCalculationIsNoop(t *testing.T) {
	e := newEngine(0)
	pipeline := &hooks.Pipeline{}
	e.Hooks = pipeline

	var nested int
	pipeline.Register(hooks.StagePackagesAssembled, func(ctx context.Context, clone *cart.Cart) error {
		nested++
		if nested > 1 {
			return errors.New("recursed")
		}
		// Fires mid-pass: a nested call must not start another pass.
		_, err := e.CalculateTotals(ctx, clone)
		return err
	})

	c := cart.New("c1")
	if err := c.AddItem(monthlySub("plan", 2500)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CalculateTotals(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	if nested != 1 {
		t.Fatalf("expected exactly one hook invocation, got %d", nested)
	}
	snap := c.RecurringSnapshots["monthly"]
	if snap == nil || snap.Cart.Total != 2500 {
		t.Fatalf("nested call corrupted the pass: %v", snapshotKeys(c))
	}
}

func TestPreTaxDiscountReducesTotal(t *testing.T) {
	e := newEngine(1000) // 10%
	c := cart.New("c1")
	if err := c.AddItem(&cart.LineItem{Key: "book", ProductID: uuid.New(), Qty: 1, UnitPrice: 1000}); err != nil {
		t.Fatal(err)
	}
	c.DiscountTotal = 500

	res, err := e.CalculateTotals(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	// Tax applies to the discounted basis: 10% of 500.
	if c.TaxTotal != 50 {
		t.Fatalf("expected tax 50 on discounted basis, got %d", c.TaxTotal)
	}
	if res.Total != 550 {
		t.Fatalf("expected total 550 (500 net + 50 tax), got %d", res.Total)
	}
}

func TestPreTaxDiscountClampsToContents(t *testing.T) {
	e := newEngine(1000)
	c := cart.New("c1")
	if err := c.AddItem(&cart.LineItem{Key: "book", ProductID: uuid.New(), Qty: 1, UnitPrice: 1000}); err != nil {
		t.Fatal(err)
	}
	c.DiscountTotal = 2500

	res, err := e.CalculateTotals(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if c.DiscountTotal != 1000 {
		t.Fatalf("expected discount clamped to contents 1000, got %d", c.DiscountTotal)
	}
	if res.Total != 0 {
		t.Fatalf("expected zero total for fully discounted cart, got %d", res.Total)
	}
}

func TestFactoryIsolatesConcurrentCarts(t *testing.T) {
	base := newEngine(0)
	pipeline := &hooks.Pipeline{}
	factory := Factory{
		Pricing:  base.Pricing,
		Shipping: base.Shipping,
		Hooks:    pipeline,
		Now:      func() time.Time { return testNow },
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	pipeline.Register(hooks.StagePackagesAssembled, func(ctx context.Context, clone *cart.Cart) error {
		if clone.ID == "cart-a" {
			close(entered)
			<-release
		}
		return nil
	})

	cartA := cart.New("cart-a")
	if err := cartA.AddItem(monthlySub("plan", 2500)); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := factory.NewEngine().CalculateTotals(context.Background(), cartA)
		done <- err
	}()
	<-entered

	// Cart A's pass is parked mid-group. A second cart on its own engine
	// must run a full pass of its own, not inherit the parked pass's state.
	cartB := cart.New("cart-b")
	if err := cartB.AddItem(&cart.LineItem{Key: "book", ProductID: uuid.New(), Qty: 1, UnitPrice: 1000}); err != nil {
		t.Fatal(err)
	}
	res, err := factory.NewEngine().CalculateTotals(context.Background(), cartB)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1000 || cartB.ContentsTotal != 1000 {
		t.Fatalf("expected cart B totalized independently (1000/1000), got total=%d contents=%d", res.Total, cartB.ContentsTotal)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if cartA.RecurringSnapshots["monthly"] == nil {
		t.Fatalf("cart A pass corrupted: %v", snapshotKeys(cartA))
	}
}

func TestAfterTaxDiscountClampsAtZero(t *testing.T) {
	e := newEngine(0)
	c := cart.New("c1")
	if err := c.AddItem(&cart.LineItem{Key: "book", ProductID: uuid.New(), Qty: 1, UnitPrice: 1000}); err != nil {
		t.Fatal(err)
	}
	c.AfterTaxDiscount = 5000

	res, err := e.CalculateTotals(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 0 {
		t.Fatalf("expected clamped total 0, got %d", res.Total)
	}
}

func snapshotKeys(c *cart.Cart) []string {
	keys := make([]string, 0, len(c.RecurringSnapshots))
	for k := range c.RecurringSnapshots {
		keys = append(keys, k)
	}
	return keys
}
