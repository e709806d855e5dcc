package money

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in integer cents.
type Money int64

var hundred = decimal.NewFromInt(100)

func Cents(c int64) Money {
	return Money(c)
}

func Dollars(d int64) Money {
	return Money(d * 100)
}

// Parse reads a decimal dollar string such as "1234.56". More than two
// fractional digits is rejected rather than rounded.
func Parse(raw string) (Money, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	cents := d.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("invalid amount %q: more than two decimal places", raw)
	}
	return Money(cents.IntPart()), nil
}

func MustParse(raw string) Money {
	m, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return m
}

// FromDecimal converts a dollar amount to cents under the given policy.
func FromDecimal(d decimal.Decimal, policy RoundingPolicy) Money {
	return policy.Round(d)
}

func (m Money) Int64() int64 {
	return int64(m)
}

// Decimal returns the amount in dollars.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) IsZero() bool {
	return m == 0
}

func (m Money) IsNegative() bool {
	return m < 0
}

// MulRate multiplies by a rate and rounds the result to cents.
func (m Money) MulRate(rate decimal.Decimal, policy RoundingPolicy) Money {
	return policy.Round(m.Decimal().Mul(rate))
}

// Div splits the amount into n parts rounded to cents.
func (m Money) Div(n int64, policy RoundingPolicy) Money {
	if n == 0 {
		return 0
	}
	return policy.Round(m.Decimal().Div(decimal.NewFromInt(n)))
}

// NonNegative floors the amount at zero.
func (m Money) NonNegative() Money {
	if m < 0 {
		return 0
	}
	return m
}

func Min(a, b Money) Money {
	if a < b {
		return a
	}
	return b
}

func Max(a, b Money) Money {
	if a > b {
		return a
	}
	return b
}

func Sum(values ...Money) Money {
	var total Money
	for _, v := range values {
		total += v
	}
	return total
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts a quoted decimal string or a bare JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*m = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
