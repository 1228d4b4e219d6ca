package schedule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/subcart/internal/cart"
)

// Key derives the billing-schedule identity of a subscription item. Items
// with identical interval, period, length, trial terms and renewal date
// collapse into the same key and are billed together.
//
// The key grammar, in fixed order:
//
//	[YYYY_MM_DD_]<cadence>[_for_<length>_<period>[s]][_after_a_<n>_<period>_trial]
func Key(item *cart.LineItem) string {
	var b strings.Builder
	if item.Synchronized() {
		b.WriteString(item.SyncDate.Format("2006_01_02"))
		b.WriteString("_")
	}
	b.WriteString(cadence(item.Interval, item.Period))
	if item.Length > 0 {
		b.WriteString(fmt.Sprintf("_for_%d_%s", item.Length, pluralize(item.Period, item.Length)))
	}
	if item.TrialLength > 0 {
		b.WriteString(fmt.Sprintf("_after_a_%d_%s_trial", item.TrialLength, item.TrialPeriod))
	}
	return b.String()
}

// Group partitions the cart's subscription items by schedule key. Item keys
// within each group are sorted so re-running grouping on an unchanged cart
// yields identical output. Non-subscription items are never grouped.
func Group(c *cart.Cart) map[string][]string {
	groups := map[string][]string{}
	for key, item := range c.Items {
		if !item.IsSubscription {
			continue
		}
		sk := Key(item)
		groups[sk] = append(groups[sk], key)
	}
	for sk := range groups {
		sort.Strings(groups[sk])
	}
	return groups
}

// SortedGroupKeys returns schedule keys in lexical order.
func SortedGroupKeys(groups map[string][]string) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cadence(interval int, period cart.Period) string {
	if interval <= 1 {
		if period == cart.PeriodDay {
			return "daily"
		}
		return string(period) + "ly"
	}
	switch interval {
	case 2:
		return fmt.Sprintf("every_2nd_%s", period)
	case 3:
		return fmt.Sprintf("every_3rd_%s", period)
	default:
		return fmt.Sprintf("every_%dth_%s", interval, period)
	}
}

func pluralize(period cart.Period, n int) string {
	if n > 1 {
		return string(period) + "s"
	}
	return string(period)
}
