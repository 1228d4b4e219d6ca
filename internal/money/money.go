package money

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// Clamp floors a value at zero. Externally surfaced totals are never negative.
func Clamp(m Money) Money {
	if m < 0 {
		return 0
	}
	return m
}

// Percent applies a basis-point rate to an amount, rounding half up to the
// nearest minor unit.
func Percent(m Money, bps int) Money {
	if m <= 0 || bps <= 0 {
		return 0
	}
	return decimal.NewFromInt(m).
		Mul(decimal.NewFromInt(int64(bps))).
		Div(decimal.NewFromInt(10000)).
		Round(0).
		IntPart()
}

// Sum adds the provided amounts.
func Sum(values ...Money) Money {
	var total Money
	for _, v := range values {
		total += v
	}
	return total
}
