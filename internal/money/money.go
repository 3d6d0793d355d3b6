package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount must be a whole number of units")
)

var (
	hundred  = decimal.NewFromInt(100)
	maxUnits = decimal.NewFromInt(1 << 53)
)

// ParseUnits parses a whole-unit amount such as "1500" or "1500.00".
func ParseUnits(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if !value.IsInteger() {
		return 0, ErrTooManyDecimals
	}
	if value.Abs().GreaterThan(maxUnits) {
		return 0, ErrInvalidAmount
	}
	return value.IntPart(), nil
}

// FloorUnits parses an amount and drops any fractional part, so "1500.75"
// becomes 1500.
func FloorUnits(input string) (int64, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if value.Abs().GreaterThan(maxUnits) {
		return 0, ErrInvalidAmount
	}
	return Floor(value), nil
}

// Floor reports an exact amount in whole units, rounding toward negative infinity.
func Floor(value decimal.Decimal) int64 {
	return value.Floor().IntPart()
}

// Percent returns amount * rate / 100 without rounding.
func Percent(amount int64, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(amount).Mul(rate).Div(hundred)
}

// FormatRate renders a percentage rate with up to four decimals and no trailing zeros.
func FormatRate(rate decimal.Decimal) string {
	return rate.Round(4).String()
}

// ParseRate parses a strictly positive percentage rate.
func ParseRate(input string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil || !value.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return value, nil
}
