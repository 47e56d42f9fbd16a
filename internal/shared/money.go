package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts cross the wire as exact-precision strings holding integer minor
// currency units. Floats never appear anywhere in the money path.

// ErrAmountNotInteger indicates a fractional minor-unit amount.
var ErrAmountNotInteger = errors.New("shared: amount must be integer minor units")

// ParseAmount parses a non-negative minor-unit amount string.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := ParseSignedAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("shared: amount %q must not be negative", s)
	}
	return d, nil
}

// ParseSignedAmount parses a minor-unit amount string that may be negative,
// e.g. a declared variance.
func ParseSignedAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, errors.New("shared: amount required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("shared: invalid amount %q: %w", s, err)
	}
	if !d.IsInteger() {
		return decimal.Zero, ErrAmountNotInteger
	}
	return d, nil
}

// FormatAmount renders a minor-unit amount for the wire.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(0)
}
