// Package num holds the decimal arithmetic shared by the generator and the
// reconciliation ledger.
package num

import "github.com/shopspring/decimal"

// RoundSignificant rounds d to the given number of significant figures using
// banker's rounding.
func RoundSignificant(d decimal.Decimal, figures int32) decimal.Decimal {
	if d.IsZero() {
		return d
	}
	places := figures - 1 - (int32(d.NumDigits()) - 1 + d.Exponent())
	return d.RoundBank(places)
}

// ApproxEqual reports whether a and b agree within tol after both are
// rounded to the given number of significant figures.
func ApproxEqual(a, b, tol decimal.Decimal, figures int32) bool {
	diff := RoundSignificant(a, figures).Sub(RoundSignificant(b, figures)).Abs()
	return diff.LessThanOrEqual(tol)
}
