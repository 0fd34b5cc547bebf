// Package core provides money parsing and handling utilities.
//
// Amounts are held as integer cents so that installment splits never drift;
// decimal strings from requests are parsed with shopspring/decimal.
package core

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimalToCents converts a decimal string to cents with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Returns ErrInvalidAmount for invalid formats, negative values, or zero amounts.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil
//	ParseDecimalToCents("12.344") -> 1234, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := d.Round(2).Shift(2)
	if !cents.IsInteger() || cents.GreaterThan(decimal.NewFromInt(maxCents)) {
		return 0, ErrInvalidAmount
	}
	if cents.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// maxCents bounds amounts well below int64 overflow for sums of a group.
const maxCents = 1 << 53

// ParseMoney parses a positive decimal amount.
func ParseMoney(s string) (Money, error) {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: cents}, nil
}

// NewMoney builds an amount from whole units and cents, e.g. NewMoney(33, 34) is 33.34.
func NewMoney(units, cents int64) Money {
	return Money{Cents: units*100 + cents}
}

// Decimal returns the amount as a decimal with two places.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats the amount with a dot and two decimals ("33.34").
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Euros returns the value as a float64 for display purposes only.
func (m Money) Euros() float64 {
	return m.Decimal().InexactFloat64()
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

// Split divides the amount into n installments of whole cents. The residual
// cents go to the first installment, so the parts always sum to m exactly:
// 100.00 / 3 -> 33.34, 33.33, 33.33.
func (m Money) Split(n int) ([]Money, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidInstallmentCount, n)
	}
	if m.Cents < int64(n) {
		return nil, fmt.Errorf("%w: %s cannot be split into %d installments", ErrInvalidAmount, m, n)
	}
	base := m.Cents / int64(n)
	rem := m.Cents % int64(n)
	parts := make([]Money, n)
	for i := range parts {
		parts[i] = Money{Cents: base}
	}
	parts[0].Cents += rem
	return parts, nil
}

// Sum adds up a list of amounts.
func Sum(values ...Money) Money {
	var total Money
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// MarshalJSON encodes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a decimal string ("12,50" included).
// Values are rounded half-up to cents; positivity is checked by Validate.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*m = Money{}
		return nil
	}
	s := strings.Trim(string(b), `"`)
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	cents := d.Round(2).Shift(2)
	if !cents.IsInteger() || cents.Abs().GreaterThan(decimal.NewFromInt(maxCents)) {
		return fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}
	*m = Money{Cents: cents.IntPart()}
	return nil
}
