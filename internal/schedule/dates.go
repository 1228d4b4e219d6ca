package schedule

import (
	"time"

	"github.com/noah-isme/subcart/internal/cart"
)

// AddPeriods advances t by n billing periods.
func AddPeriods(t time.Time, period cart.Period, n int) time.Time {
	if n <= 0 {
		return t
	}
	switch period {
	case cart.PeriodDay:
		return t.AddDate(0, 0, n)
	case cart.PeriodWeek:
		return t.AddDate(0, 0, 7*n)
	case cart.PeriodMonth:
		return t.AddDate(0, n, 0)
	case cart.PeriodYear:
		return t.AddDate(n, 0, 0)
	default:
		return t
	}
}

// TrialEnd returns when the item's free trial expires, or the zero time when
// the item has no trial.
func TrialEnd(item *cart.LineItem, start time.Time) time.Time {
	if !item.HasTrial() {
		return time.Time{}
	}
	return AddPeriods(start, item.TrialPeriod, item.TrialLength)
}

// NextPayment computes the first recurring charge date for an item purchased
// at start. Synchronized items renew on their fixed calendar date; trialing
// items charge when the trial ends; a single-payment subscription (length 1,
// no trial) has no further payment, encoded as the zero time.
func NextPayment(item *cart.LineItem, start time.Time) time.Time {
	if item.Synchronized() {
		return item.SyncDate
	}
	if item.HasTrial() {
		return TrialEnd(item, start)
	}
	if item.Length == 1 {
		return time.Time{}
	}
	return AddPeriods(start, item.Period, item.Interval)
}

// EndDate computes when the subscription expires. Unlimited subscriptions
// (length 0) never expire, encoded as the zero time. Limited subscriptions
// run length billing cycles from the end of any trial.
func EndDate(item *cart.LineItem, start time.Time) time.Time {
	if item.Length <= 0 {
		return time.Time{}
	}
	base := start
	if item.HasTrial() {
		base = TrialEnd(item, start)
	}
	return AddPeriods(base, item.Period, item.Length*maxInt(item.Interval, 1))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
