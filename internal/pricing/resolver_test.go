package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/noah-isme/subcart/internal/cart"
	"github.com/noah-isme/subcart/internal/catalog"
	"github.com/noah-isme/subcart/internal/money"
)

func feePtr(v money.Money) *money.Money { return &v }

func TestResolveOneTimeItem(t *testing.T) {
	r := Resolver{}
	item := &cart.LineItem{Key: "book", Qty: 1, UnitPrice: 1500}

	price, err := r.Resolve(context.Background(), item, cart.ModeNone)
	if err != nil {
		t.Fatal(err)
	}
	if price != 1500 {
		t.Fatalf("expected 1500, got %d", price)
	}

	price, err = r.Resolve(context.Background(), item, cart.ModeRecurringTotal)
	if err != nil {
		t.Fatal(err)
	}
	if price != 0 {
		t.Fatalf("one-time items contribute nothing to recurring totals, got %d", price)
	}
}

func TestResolveSubscriptionByMode(t *testing.T) {
	r := Resolver{}
	item := &cart.LineItem{
		Key: "plan", Qty: 1, UnitPrice: 2500, IsSubscription: true,
		SignUpFee: feePtr(1000),
	}

	price, err := r.Resolve(context.Background(), item, cart.ModeNone)
	if err != nil {
		t.Fatal(err)
	}
	if price != 3500 {
		t.Fatalf("expected recurring price plus sign-up fee 3500, got %d", price)
	}

	for _, mode := range []cart.CalcMode{cart.ModeRecurringTotal, cart.ModeCombinedTotal, cart.ModeSignUpFeeTotal, cart.ModeFreeTrialTotal} {
		price, err = r.Resolve(context.Background(), item, mode)
		if err != nil {
			t.Fatal(err)
		}
		if price != 2500 {
			t.Fatalf("mode %s: expected bare recurring price 2500, got %d", mode, price)
		}
	}
}

func TestResolveTrialingSubscriptionChargesFeeOnly(t *testing.T) {
	r := Resolver{}
	item := &cart.LineItem{
		Key: "plan", Qty: 1, UnitPrice: 2500, IsSubscription: true,
		SignUpFee:   feePtr(1000),
		TrialLength: 7, TrialPeriod: cart.PeriodDay,
	}

	price, err := r.Resolve(context.Background(), item, cart.ModeNone)
	if err != nil {
		t.Fatal(err)
	}
	if price != 1000 {
		t.Fatalf("trialing item charges only the sign-up fee, got %d", price)
	}
}

func TestSignUpFeeOverridePrecedence(t *testing.T) {
	productID := uuid.New()
	cat := catalog.NewMemory(catalog.Product{ID: productID, SignUpFee: 700})
	r := Resolver{Catalog: cat}

	item := &cart.LineItem{Key: "plan", ProductID: productID, Qty: 1, IsSubscription: true}
	fee, err := r.SignUpFee(context.Background(), item)
	if err != nil {
		t.Fatal(err)
	}
	if fee != 700 {
		t.Fatalf("expected catalog default 700, got %d", fee)
	}

	item.SignUpFee = feePtr(300)
	fee, err = r.SignUpFee(context.Background(), item)
	if err != nil {
		t.Fatal(err)
	}
	if fee != 300 {
		t.Fatalf("expected override 300 to win, got %d", fee)
	}
}

func TestSignUpFeeUnknownProduct(t *testing.T) {
	r := Resolver{Catalog: catalog.NewMemory()}
	item := &cart.LineItem{Key: "plan", ProductID: uuid.New(), Qty: 1, IsSubscription: true}

	_, err := r.SignUpFee(context.Background(), item)
	if !errors.Is(err, cart.ErrUnknownProduct) {
		t.Fatalf("expected unknown product error, got %v", err)
	}
}

func TestEngineCalculatesAggregates(t *testing.T) {
	e := Engine{Resolver: Resolver{}, TaxBps: 1000}
	c := cart.New("c1")
	if err := c.AddItem(&cart.LineItem{Key: "a", Qty: 2, UnitPrice: 1000}); err != nil {
		t.Fatal(err)
	}
	if err := c.AddItem(&cart.LineItem{Key: "b", Qty: 1, UnitPrice: 500}); err != nil {
		t.Fatal(err)
	}
	c.Fees = []cart.Fee{{ID: "handling", Amount: 200, Tax: 20}}

	if err := e.Calculate(context.Background(), c, cart.ModeNone); err != nil {
		t.Fatal(err)
	}
	if c.ContentsTotal != 2500 {
		t.Fatalf("expected contents 2500, got %d", c.ContentsTotal)
	}
	if c.TaxTotal != 250 {
		t.Fatalf("expected tax 250, got %d", c.TaxTotal)
	}
	if c.FeeTotal != 220 {
		t.Fatalf("expected fee total 220, got %d", c.FeeTotal)
	}
	if c.Items["a"].LineTotal != 2000 {
		t.Fatalf("expected line total 2000, got %d", c.Items["a"].LineTotal)
	}
}

func TestEngineClampsDiscountToContents(t *testing.T) {
	e := Engine{Resolver: Resolver{}, TaxBps: 1000}
	c := cart.New("c1")
	if err := c.AddItem(&cart.LineItem{Key: "a", Qty: 1, UnitPrice: 1000}); err != nil {
		t.Fatal(err)
	}
	c.DiscountTotal = 9999

	if err := e.Calculate(context.Background(), c, cart.ModeNone); err != nil {
		t.Fatal(err)
	}
	if c.DiscountTotal != 1000 {
		t.Fatalf("expected discount clamped to contents, got %d", c.DiscountTotal)
	}
	if c.TaxTotal != 0 {
		t.Fatalf("fully discounted cart carries no tax, got %d", c.TaxTotal)
	}
}
