package earnings

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"paycore/internal/domain/money"
	"paycore/internal/domain/taxrules"
)

type PayType string

const (
	PayHourly   PayType = "hourly"
	PaySalaried PayType = "salaried"
)

type Type string

const (
	Regular       Type = "regular"
	Overtime      Type = "overtime"
	DoubleTime    Type = "double_time"
	Holiday       Type = "holiday"
	PTO           Type = "pto"
	Sick          Type = "sick"
	Bonus         Type = "bonus"
	Commission    Type = "commission"
	Tips          Type = "tips"
	Reimbursement Type = "reimbursement"
	Other         Type = "other"
)

// hourlyOrder fixes the line order so output never depends on map iteration.
var hourlyOrder = []Type{Regular, Overtime, DoubleTime, Holiday, PTO, Sick}

// StandardAnnualHours converts a salary to its hourly equivalent for premium
// hours worked by non-exempt salaried staff.
var StandardAnnualHours = decimal.NewFromInt(2080)

var (
	ErrInvalidPayType     = errors.New("invalid pay type")
	ErrInvalidEarningType = errors.New("invalid earning type")
	ErrNegativeInput      = errors.New("earnings inputs must not be negative")
	ErrMissingPayRate     = errors.New("pay rate is required")
)

// Multiplier returns the premium multiplier for an hours-based earning type.
func (t Type) Multiplier() (decimal.Decimal, bool) {
	switch t {
	case Regular, PTO, Sick:
		return decimal.NewFromInt(1), true
	case Overtime, Holiday:
		return decimal.RequireFromString("1.5"), true
	case DoubleTime:
		return decimal.NewFromInt(2), true
	case Bonus, Commission, Tips, Reimbursement, Other:
		return decimal.Decimal{}, false
	default:
		return decimal.Decimal{}, false
	}
}

// Supplemental reports whether the type is paid as a direct amount.
func (t Type) Supplemental() bool {
	switch t {
	case Bonus, Commission, Tips, Reimbursement, Other:
		return true
	default:
		return false
	}
}

// Taxable is false only for reimbursements, which are paid through payroll
// but are not wages.
func (t Type) Taxable() bool {
	return t != Reimbursement
}

type SupplementalPay struct {
	Type        Type        `json:"type"`
	Amount      money.Money `json:"amount"`
	Description string      `json:"description,omitempty"`
}

// Input carries the raw earnings for one employee and period. PayRate is the
// hourly rate for hourly staff and the annual salary for salaried staff.
type Input struct {
	PayType      PayType                  `json:"payType"`
	PayRate      decimal.Decimal          `json:"payRate"`
	Hours        map[Type]decimal.Decimal `json:"hoursByType,omitempty"`
	Supplemental []SupplementalPay        `json:"supplementalPay,omitempty"`
}

type Line struct {
	Type        Type            `json:"type"`
	Hours       decimal.Decimal `json:"hours"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      money.Money     `json:"amount"`
	Taxable     bool            `json:"taxable"`
	Description string          `json:"description,omitempty"`
}

type Result struct {
	Lines []Line `json:"lines"`
	// Gross is the sum of every line.
	Gross money.Money `json:"gross"`
	// TaxableGross excludes non-taxable lines.
	TaxableGross money.Money `json:"taxableGross"`
}

type Calculator struct {
	Rounding money.RoundingPolicy
}

func NewCalculator(rounding money.RoundingPolicy) Calculator {
	return Calculator{Rounding: rounding}
}

// Calculate itemizes gross pay. Each hours line is rounded to cents on its
// own before summing. Zero gross is a valid result.
func (c Calculator) Calculate(in Input, frequency taxrules.Frequency) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	periods := frequency.PeriodsPerYear()
	if periods == 0 {
		return Result{}, fmt.Errorf("unsupported pay frequency %q", frequency)
	}

	var lines []Line
	switch in.PayType {
	case PayHourly:
		for _, t := range hourlyOrder {
			hours := in.Hours[t]
			if hours.IsZero() {
				continue
			}
			multiplier, _ := t.Multiplier()
			rate := in.PayRate.Mul(multiplier)
			lines = append(lines, Line{
				Type:    t,
				Hours:   hours,
				Rate:    rate,
				Amount:  c.Rounding.Round(hours.Mul(rate)),
				Taxable: true,
			})
		}
	case PaySalaried:
		salary := c.Rounding.Round(in.PayRate.Div(decimal.NewFromInt(periods)))
		lines = append(lines, Line{Type: Regular, Rate: in.PayRate, Amount: salary, Taxable: true})
		hourly := in.PayRate.Div(StandardAnnualHours)
		for _, t := range []Type{Overtime, DoubleTime} {
			hours := in.Hours[t]
			if hours.IsZero() {
				continue
			}
			multiplier, _ := t.Multiplier()
			rate := hourly.Mul(multiplier)
			lines = append(lines, Line{
				Type:    t,
				Hours:   hours,
				Rate:    rate.Round(4),
				Amount:  c.Rounding.Round(hours.Mul(rate)),
				Taxable: true,
			})
		}
	}

	for _, s := range in.Supplemental {
		lines = append(lines, Line{
			Type:        s.Type,
			Amount:      s.Amount,
			Taxable:     s.Type.Taxable(),
			Description: s.Description,
		})
	}

	res := Result{Lines: lines}
	for _, line := range lines {
		res.Gross += line.Amount
		if line.Taxable {
			res.TaxableGross += line.Amount
		}
	}
	return res, nil
}

func (in Input) Validate() error {
	switch in.PayType {
	case PayHourly, PaySalaried:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPayType, in.PayType)
	}
	if in.PayRate.IsNegative() {
		return fmt.Errorf("%w: pay rate", ErrNegativeInput)
	}
	var totalHours decimal.Decimal
	for t, hours := range in.Hours {
		if _, ok := t.Multiplier(); !ok {
			return fmt.Errorf("%w: %q is not paid by the hour", ErrInvalidEarningType, t)
		}
		if hours.IsNegative() {
			return fmt.Errorf("%w: %s hours", ErrNegativeInput, t)
		}
		totalHours = totalHours.Add(hours)
	}
	if in.PayType == PayHourly && in.PayRate.IsZero() && totalHours.IsPositive() {
		return ErrMissingPayRate
	}
	if in.PayType == PaySalaried && in.PayRate.IsZero() {
		return ErrMissingPayRate
	}
	for _, s := range in.Supplemental {
		if !s.Type.Supplemental() {
			return fmt.Errorf("%w: %q is not a supplemental type", ErrInvalidEarningType, s.Type)
		}
		if s.Amount.IsNegative() {
			return fmt.Errorf("%w: %s amount", ErrNegativeInput, s.Type)
		}
	}
	return nil
}
