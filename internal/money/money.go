// Package money fixes the currency arithmetic rules used by the ledger:
// every amount is truncated to two decimal places before it is compared
// with a balance or written anywhere.
package money

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/EricDistort/QuberX/pkg/errors"
)

// Scale is the number of decimal places kept for currency values.
const Scale int32 = 2

// Max is the largest amount a NUMERIC(18,2) column holds.
var Max = decimal.RequireFromString("9999999999999999.99")

// Normalize truncates an amount to Scale places.
func Normalize(amount decimal.Decimal) decimal.Decimal {
	return amount.Truncate(Scale)
}

// Positive normalizes amount and rejects anything that is not strictly
// positive after truncation or does not fit in a balance column.
func Positive(amount decimal.Decimal) (decimal.Decimal, error) {
	n := Normalize(amount)
	if !n.IsPositive() || n.GreaterThan(Max) {
		return decimal.Zero, pkgerrors.ErrInvalidAmount
	}
	return n, nil
}

// Parse reads a decimal string and applies Positive.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, pkgerrors.ErrInvalidAmount
	}
	return Positive(d)
}

// Split divides amount by share (a fraction in [0,1]). The first part is
// truncated and the second is the exact remainder, so first+second == amount.
func Split(amount, share decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	first := Normalize(amount.Mul(share))
	return first, amount.Sub(first)
}

// Fraction returns amount*rate truncated to Scale.
func Fraction(amount, rate decimal.Decimal) decimal.Decimal {
	return Normalize(amount.Mul(rate))
}
