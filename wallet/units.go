package wallet

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// USDCDecimals is the token's fixed decimal precision. Amounts exposed to
// tools and clients are human-readable decimal strings; conversion to and
// from minor units always uses this scale.
const USDCDecimals = 6

// ParseUnits converts a human-readable amount ("0.10") to minor units
// (100000 at 6 decimals).
func ParseUnits(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative: %s", amount)
	}

	shifted := d.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	return shifted.BigInt(), nil
}

// FormatUnits converts minor units back to the human-readable form.
func FormatUnits(raw *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(raw, -decimals).String()
}

// AmountCovers reports whether paid >= expected, comparing numerically so
// "0.100" and "0.10" are equivalent.
func AmountCovers(paid, expected string) (bool, error) {
	p, err := decimal.NewFromString(paid)
	if err != nil {
		return false, fmt.Errorf("invalid paid amount %q: %w", paid, err)
	}
	e, err := decimal.NewFromString(expected)
	if err != nil {
		return false, fmt.Errorf("invalid expected amount %q: %w", expected, err)
	}
	return p.GreaterThanOrEqual(e), nil
}
