// Package core holds the domain model shared by importers, rules and views.
//
// Monetary values are decimal.Decimal end-to-end and are persisted as integer
// cents. Parsing accepts the Brazilian statement format ("1.234,56") as well
// as the plain dot format ("1234.56").
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimalBR converts a Brazilian-formatted amount to a decimal.
//
// Thousands separators ("." ) are removed and the decimal comma becomes a
// dot. Signs are preserved: statements use negative values for payments and
// estornos. Examples:
//
//	ParseDecimalBR("1.234,56") -> 1234.56
//	ParseDecimalBR("-287,00")  -> -287
//	ParseDecimalBR("113.93")   -> 113.93
func ParseDecimalBR(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrValorInvalido
	}
	s = strings.ReplaceAll(s, " ", "")
	if strings.Contains(s, ",") {
		// comma is the decimal separator, dots are thousands
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrValorInvalido
	}
	return d, nil
}

// Cents returns the value rounded half-up to 2 places, in integer cents.
func Cents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// FromCents converts integer cents back to a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FormatBRL renders an amount the way the templates display it: "R$ 1234,56".
func FormatBRL(d decimal.Decimal) string {
	return "R$ " + strings.Replace(d.StringFixed(2), ".", ",", 1)
}
