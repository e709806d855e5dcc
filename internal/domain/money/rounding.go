package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RoundingPolicy decides how a fractional-cent dollar amount becomes cents.
type RoundingPolicy int

const (
	// HalfUp rounds half away from zero.
	HalfUp RoundingPolicy = iota
	// HalfEven rounds half to the even cent.
	HalfEven
	// Down truncates toward zero. Garnishment withholding always uses it.
	Down
)

func (p RoundingPolicy) Round(d decimal.Decimal) Money {
	var rounded decimal.Decimal
	switch p {
	case HalfEven:
		rounded = d.RoundBank(2)
	case Down:
		rounded = d.Truncate(2)
	default:
		rounded = d.Round(2)
	}
	return Money(rounded.Shift(2).IntPart())
}

func (p RoundingPolicy) String() string {
	switch p {
	case HalfEven:
		return "half_even"
	case Down:
		return "down"
	default:
		return "half_up"
	}
}

func ParseRoundingPolicy(raw string) (RoundingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "half_up":
		return HalfUp, nil
	case "half_even", "bankers":
		return HalfEven, nil
	case "down", "truncate":
		return Down, nil
	default:
		return HalfUp, fmt.Errorf("unknown rounding policy %q", raw)
	}
}

// Rate parses a decimal rate such as "0.062". It panics on malformed input and
// is meant for compiled-in tables.
func Rate(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}
