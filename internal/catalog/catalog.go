package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/subcart/internal/cart"
	"github.com/noah-isme/subcart/internal/money"
)

// ErrNotFound indicates the requested product could not be located.
var ErrNotFound = errors.New("catalog: product not found")

// Product carries the pricing and subscription metadata the totalization
// engine reads. Non-subscription products leave the recurring fields zero.
type Product struct {
	ID             uuid.UUID   `json:"id"`
	Title          string      `json:"title"`
	Price          money.Money `json:"price"`
	IsSubscription bool        `json:"isSubscription"`

	SignUpFee   money.Money `json:"signUpFee"`
	TrialLength int         `json:"trialLength"`
	TrialPeriod cart.Period `json:"trialPeriod,omitempty"`
	Interval    int         `json:"interval"`
	Period      cart.Period `json:"period,omitempty"`
	Length      int         `json:"length"`

	// SyncDay pins renewals to a calendar day: day of month for monthly and
	// yearly schedules, ISO weekday (1 = Monday) for weekly. 0 disables
	// synchronized billing. SyncMonth further pins yearly schedules.
	SyncDay   int `json:"syncDay"`
	SyncMonth int `json:"syncMonth"`

	NeedsShipping   bool `json:"needsShipping"`
	OneTimeShipping bool `json:"oneTimeShipping"`
}

// Provider resolves product metadata for the engine.
type Provider interface {
	Product(ctx context.Context, id uuid.UUID) (Product, error)
}

// FirstRenewal returns the first synchronized renewal on or after ref, or the
// zero time when the product does not bill on a fixed calendar day.
func FirstRenewal(p Product, ref time.Time) time.Time {
	if p.SyncDay <= 0 {
		return time.Time{}
	}
	switch p.Period {
	case cart.PeriodWeek:
		day := time.Weekday(p.SyncDay % 7)
		next := ref
		for next.Weekday() != day {
			next = next.AddDate(0, 0, 1)
		}
		return startOfDay(next)
	case cart.PeriodMonth:
		next := time.Date(ref.Year(), ref.Month(), clampDay(ref.Year(), ref.Month(), p.SyncDay), 0, 0, 0, 0, ref.Location())
		if next.Before(startOfDay(ref)) {
			month := ref.AddDate(0, 1, 0)
			next = time.Date(month.Year(), month.Month(), clampDay(month.Year(), month.Month(), p.SyncDay), 0, 0, 0, 0, ref.Location())
		}
		return next
	case cart.PeriodYear:
		month := time.Month(p.SyncMonth)
		if month < time.January || month > time.December {
			month = time.January
		}
		next := time.Date(ref.Year(), month, clampDay(ref.Year(), month, p.SyncDay), 0, 0, 0, 0, ref.Location())
		if next.Before(startOfDay(ref)) {
			next = next.AddDate(1, 0, 0)
		}
		return next
	default:
		return time.Time{}
	}
}

// NewLineItem builds a cart line item from a product at the provided instant.
// The sign-up fee is left to catalog resolution; callers may set an explicit
// override afterwards.
func NewLineItem(p Product, key string, qty int, now time.Time) *cart.LineItem {
	if key == "" {
		key = fmt.Sprintf("%s:%s", p.ID, uuid.NewString()[:8])
	}
	return &cart.LineItem{
		Key:             key,
		ProductID:       p.ID,
		Qty:             qty,
		UnitPrice:       p.Price,
		IsSubscription:  p.IsSubscription,
		TrialLength:     p.TrialLength,
		TrialPeriod:     p.TrialPeriod,
		Interval:        p.Interval,
		Period:          p.Period,
		Length:          p.Length,
		SyncDate:        FirstRenewal(p, now),
		NeedsShipping:   p.NeedsShipping,
		OneTimeShipping: p.OneTimeShipping,
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func clampDay(year int, month time.Month, day int) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	if day < 1 {
		return 1
	}
	return day
}
