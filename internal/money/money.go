// Package money holds the fixed-point helpers shared by the billing core.
// Every derived amount is rounded exactly once, to two places, half away from zero.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// ErrInvalidAmount indicates an unparsable monetary value.
var ErrInvalidAmount = errors.New("money: invalid amount")

var (
	hundred  = decimal.NewFromInt(100)
	maxWhole = decimal.NewFromInt(math.MaxInt64)
)

// Round2 rounds to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Sum adds the provided values without rounding.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Mul multiplies quantity by price without rounding.
func Mul(quantity, price decimal.Decimal) decimal.Decimal {
	return quantity.Mul(price)
}

// LineTotal returns quantity x price rounded to cents.
func LineTotal(quantity, price decimal.Decimal) decimal.Decimal {
	return Round2(quantity.Mul(price))
}

// Percent returns base x rate / 100 rounded to cents.
func Percent(base, rate decimal.Decimal) decimal.Decimal {
	return Round2(base.Mul(rate).Div(hundred))
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	return Min(Max(v, lo), hi)
}

// IsNegative reports whether d < 0.
func IsNegative(d decimal.Decimal) bool {
	return d.Sign() < 0
}

// HasCents reports whether d carries at most two fractional digits.
func HasCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// Parse reads a decimal amount such as "12.50".
func Parse(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return d, nil
}

// Format renders d for humans as "USD 1,304.00". Unknown currency
// codes fall back to "<amount> <code>". Only the whole units go through the
// locale printer, as an int64; cents are appended exactly. Amounts beyond
// int64 whole units are printed without grouping.
func Format(d decimal.Decimal, code string) string {
	rounded := Round2(d)
	unit, err := currency.ParseISO(code)
	if err != nil {
		return strings.TrimSpace(rounded.StringFixed(2) + " " + code)
	}
	abs := rounded.Abs()
	whole := abs.Truncate(0)
	if whole.GreaterThan(maxWhole) {
		return fmt.Sprintf("%s %s", unit, rounded.StringFixed(2))
	}
	cents := abs.Sub(whole).Mul(hundred).IntPart()
	sign := ""
	if rounded.Sign() < 0 {
		sign = "-"
	}
	p := message.NewPrinter(language.English)
	return p.Sprintf("%s %s%v.%02d", unit, sign, number.Decimal(whole.IntPart()), cents)
}
