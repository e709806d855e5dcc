package taxrules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"paycore/internal/domain/money"
)

// Bracket is one marginal band. UpTo is the inclusive upper bound of the band;
// zero marks the unbounded top bracket.
type Bracket struct {
	UpTo money.Money     `json:"upTo"`
	Rate decimal.Decimal `json:"rate"`
}

func (b Bracket) Unbounded() bool {
	return b.UpTo == 0
}

// Schedule is an ascending list of brackets ending in an unbounded bracket.
type Schedule []Bracket

// Tax applies the cumulative bracket function: each band taxes only the
// income that falls inside it. The result is not rounded.
func (s Schedule) Tax(income money.Money) decimal.Decimal {
	total := decimal.Zero
	if income <= 0 {
		return total
	}
	remaining := income
	var previous money.Money
	for _, b := range s {
		width := remaining
		if !b.Unbounded() {
			width = money.Min(remaining, b.UpTo-previous)
		}
		if width > 0 {
			total = total.Add(width.Decimal().Mul(b.Rate))
			remaining -= width
		}
		if remaining <= 0 || b.Unbounded() {
			break
		}
		previous = b.UpTo
	}
	return total
}

// Halved returns the schedule with every bound halved, used for the W-4
// multiple-jobs withholding tables.
func (s Schedule) Halved() Schedule {
	out := make(Schedule, len(s))
	for i, b := range s {
		out[i] = b
		if !b.Unbounded() {
			out[i].UpTo = b.UpTo.Div(2, money.HalfUp)
		}
	}
	return out
}

func (s Schedule) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: no brackets", ErrInvalidSchedule)
	}
	var previous money.Money
	for i, b := range s {
		if b.Rate.IsNegative() {
			return fmt.Errorf("%w: bracket %d has negative rate", ErrInvalidSchedule, i)
		}
		last := i == len(s)-1
		if b.Unbounded() {
			if !last {
				return fmt.Errorf("%w: unbounded bracket %d is not last", ErrInvalidSchedule, i)
			}
			continue
		}
		if last {
			return fmt.Errorf("%w: top bracket must be unbounded", ErrInvalidSchedule)
		}
		if b.UpTo <= previous {
			return fmt.Errorf("%w: bracket %d bound %s is not ascending", ErrInvalidSchedule, i, b.UpTo)
		}
		previous = b.UpTo
	}
	return nil
}
