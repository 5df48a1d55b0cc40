// Package format renders money, percentages and large figures for humans.
package format

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var suffixes = []string{"", "K", "M", "B", "T"}

var thousand = decimal.NewFromInt(1000)

// USD formats an amount as US dollars, e.g. "$1,234.56" or "-$0.50".
func USD(amount decimal.Decimal) string {
	cur := money.GetCurrency(money.USD)
	cents := amount.Round(int32(cur.Fraction)).Shift(int32(cur.Fraction))
	return cur.Formatter().Format(cents.IntPart())
}

// Percent formats a fraction as a percentage with two decimals: 0.25 is
// "25.00%".
func Percent(fraction decimal.Decimal) string {
	return fraction.Shift(2).StringFixed(2) + "%"
}

// Human rounds n to three significant digits and abbreviates it with a
// K, M, B or T suffix: 2_430_000_000_000 is "2.43T", 1500 is "1.5K".
func Human(n decimal.Decimal) string {
	if n.IsZero() {
		return "0"
	}
	n = significant(n, 3)
	magnitude := 0
	for n.Abs().GreaterThanOrEqual(thousand) && magnitude < len(suffixes)-1 {
		n = n.Div(thousand)
		magnitude++
	}
	return n.String() + suffixes[magnitude]
}

// significant rounds n to digits significant figures.
func significant(n decimal.Decimal, digits int32) decimal.Decimal {
	// number of digits before the decimal point, or minus the leading zeros after it
	intDigits := int32(len(n.Abs().Truncate(0).String()))
	if n.Abs().LessThan(decimal.NewFromInt(1)) {
		intDigits = 0
		for s := n.Abs(); s.LessThan(decimal.NewFromFloat(0.1)); s = s.Shift(1) {
			intDigits--
		}
	}
	return n.Round(digits - intDigits)
}
