// Package money implements fixed-point currency arithmetic on integer minor
// units (cents). All monetary values in the engine are integer minor units —
// never float64 for money.
//
// Multiplication by a rational uses 128-bit intermediate math (math/bits) so
// that pool × principal products cannot overflow int64. Decimal strings at the
// API boundary are converted with shopspring/decimal; the engine itself only
// ever sees whole minor units.
package money

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/shopspring/decimal"
)

var (
	// ErrNegativeAmount is returned when an operation would produce a
	// negative amount where negative is disallowed.
	ErrNegativeAmount = errors.New("money: negative amount")

	// ErrCurrencyMismatch is returned when two amounts in different
	// currencies are combined.
	ErrCurrencyMismatch = errors.New("money: currency mismatch")

	// ErrFractionalMinorUnit is returned when a decimal string carries
	// precision below one minor unit (e.g. tenths of a cent).
	ErrFractionalMinorUnit = errors.New("money: amount has fractional minor units")

	// ErrInvalidRational is returned for a non-positive denominator or a
	// negative numerator in MulRat.
	ErrInvalidRational = errors.New("money: invalid rational multiplier")
)

// minorUnitScale is the number of decimal digits per major unit. The platform
// settles everything in two-decimal currencies.
const minorUnitScale = 2

// BasisPointDenominator converts basis points to a rational: 850 bps = 8.5%.
const BasisPointDenominator = 10000

// Money is an amount in integer minor units of one currency.
// The zero value is "0 units of no currency" and compares equal to any zero
// amount via IsZero, but arithmetic requires matching currency codes.
type Money struct {
	Units    int64  `json:"units"`
	Currency string `json:"currency"`
}

// New returns an amount of n minor units in the given currency.
// Negative amounts are representable (Sub results pass through New) but every
// constructor used by the engine validates non-negativity at the boundary.
func New(units int64, currency string) Money {
	return Money{Units: units, Currency: currency}
}

// Zero returns the zero amount in the given currency.
func Zero(currency string) Money {
	return Money{Currency: currency}
}

// Parse converts a decimal string ("150000.00") to minor units.
// Precision below one minor unit is rejected, not rounded.
func Parse(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	units := d.Shift(minorUnitScale)
	if !units.IsInteger() {
		return Money{}, fmt.Errorf("%w: %s", ErrFractionalMinorUnit, s)
	}
	if units.IsNegative() {
		return Money{}, fmt.Errorf("%w: %s", ErrNegativeAmount, s)
	}
	return Money{Units: units.IntPart(), Currency: currency}, nil
}

// String formats the amount as a decimal with the currency code appended,
// e.g. "1200.00 USD". For logs and error messages only.
func (m Money) String() string {
	return decimal.New(m.Units, -minorUnitScale).StringFixed(minorUnitScale) + " " + m.Currency
}

// Decimal returns the amount in major units as an exact decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Units, -minorUnitScale)
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Units == 0 }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.Units < 0 }

// sameCurrency returns an error unless both amounts share a currency.
// A zero amount with an empty currency code is compatible with anything.
func (m Money) sameCurrency(other Money) error {
	if m.Currency == other.Currency {
		return nil
	}
	if m.Currency == "" && m.Units == 0 || other.Currency == "" && other.Units == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
}

// currencyOf picks the non-empty currency code of the pair.
func (m Money) currencyOf(other Money) string {
	if m.Currency != "" {
		return m.Currency
	}
	return other.Currency
}

// Add returns m + other.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Units: m.Units + other.Units, Currency: m.currencyOf(other)}, nil
}

// Sub returns m - other, failing with ErrNegativeAmount if the result would
// drop below zero.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	if other.Units > m.Units {
		return Money{}, fmt.Errorf("%w: %s - %s", ErrNegativeAmount, m, other)
	}
	return Money{Units: m.Units - other.Units, Currency: m.currencyOf(other)}, nil
}

// Cmp compares two amounts: -1 if m < other, 0 if equal, +1 if m > other.
// Callers must ensure matching currencies; Cmp compares units only.
func (m Money) Cmp(other Money) int {
	switch {
	case m.Units < other.Units:
		return -1
	case m.Units > other.Units:
		return 1
	default:
		return 0
	}
}

// Equal reports whether both amounts have the same units and currency.
func (m Money) Equal(other Money) bool {
	return m.Units == other.Units && m.sameCurrency(other) == nil
}

// MulRat returns floor(m × num ÷ den) together with the discarded remainder
// numerator (the result is exactly quotient + rem/den minor units). The caller
// decides what to do with the remainder; nothing is silently rounded.
//
// The intermediate product is computed in 128 bits so m.Units × num cannot
// overflow.
func (m Money) MulRat(num, den int64) (Money, int64, error) {
	if den <= 0 || num < 0 {
		return Money{}, 0, fmt.Errorf("%w: %d/%d", ErrInvalidRational, num, den)
	}
	if m.Units < 0 {
		return Money{}, 0, fmt.Errorf("%w: %s", ErrNegativeAmount, m)
	}
	hi, lo := bits.Mul64(uint64(m.Units), uint64(num))
	if hi >= uint64(den) {
		// Quotient would not fit in 64 bits.
		return Money{}, 0, fmt.Errorf("money: overflow multiplying %s by %d/%d", m, num, den)
	}
	quo, rem := bits.Div64(hi, lo, uint64(den))
	if quo > uint64(1)<<62 {
		return Money{}, 0, fmt.Errorf("money: overflow multiplying %s by %d/%d", m, num, den)
	}
	return Money{Units: int64(quo), Currency: m.Currency}, int64(rem), nil
}

// MulBasisPoints returns floor(m × bps / 10000) and the discarded remainder
// numerator. Used for revenue-share percentages and target multipliers.
func (m Money) MulBasisPoints(bps int64) (Money, int64, error) {
	return m.MulRat(bps, BasisPointDenominator)
}
