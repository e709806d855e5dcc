package deductions

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"paycore/internal/domain/money"
	"paycore/internal/domain/wagebase"
)

type Timing string

const (
	PreTax  Timing = "pretax"
	PostTax Timing = "posttax"
)

// Exemption names a taxable-wage base that a pre-tax deduction reduces.
type Exemption string

const (
	ExemptFederal      Exemption = "federal"
	ExemptState        Exemption = "state"
	ExemptFICA         Exemption = "fica"
	ExemptUnemployment Exemption = "unemployment"
)

type ExemptionSet []Exemption

func (s ExemptionSet) Has(e Exemption) bool {
	for _, x := range s {
		if x == e {
			return true
		}
	}
	return false
}

type AmountKind string

const (
	AmountFixed   AmountKind = "fixed"
	AmountPercent AmountKind = "percent"
)

var (
	ErrInvalidDeduction = errors.New("invalid deduction")
)

// Deduction is one active payroll deduction. CapRef names an annual limit
// shared by every deduction with the same reference, such as "402g" for
// pre-tax and Roth 401(k). AnnualLimit overrides the rule set limit.
type Deduction struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	Category    string          `json:"category"`
	Timing      Timing          `json:"timing"`
	Exemptions  ExemptionSet    `json:"exemptions,omitempty"`
	Kind        AmountKind      `json:"kind"`
	Amount      money.Money     `json:"amount"`
	Percent     decimal.Decimal `json:"percent"`
	CapRef      string          `json:"capRef,omitempty"`
	AnnualLimit money.Money     `json:"annualLimit"`
	// Mandatory deductions reduce disposable earnings for garnishment.
	Mandatory bool `json:"mandatory"`
	Order     int  `json:"order"`
}

func (d Deduction) Validate() error {
	switch d.Timing {
	case PreTax, PostTax:
	default:
		return fmt.Errorf("%w: %s has unknown timing %q", ErrInvalidDeduction, d.ID, d.Timing)
	}
	switch d.Kind {
	case AmountFixed:
		if d.Amount.IsNegative() {
			return fmt.Errorf("%w: %s amount is negative", ErrInvalidDeduction, d.ID)
		}
	case AmountPercent:
		if d.Percent.IsNegative() || d.Percent.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: %s percent must be between 0 and 1", ErrInvalidDeduction, d.ID)
		}
	default:
		return fmt.Errorf("%w: %s has unknown amount kind %q", ErrInvalidDeduction, d.ID, d.Kind)
	}
	for _, e := range d.Exemptions {
		switch e {
		case ExemptFederal, ExemptState, ExemptFICA, ExemptUnemployment:
		default:
			return fmt.Errorf("%w: %s has unknown exemption %q", ErrInvalidDeduction, d.ID, e)
		}
	}
	if d.Timing == PostTax && len(d.Exemptions) > 0 {
		return fmt.Errorf("%w: post-tax deduction %s cannot reduce taxable wages", ErrInvalidDeduction, d.ID)
	}
	if d.AnnualLimit.IsNegative() {
		return fmt.Errorf("%w: %s annual limit is negative", ErrInvalidDeduction, d.ID)
	}
	return nil
}

// CapExceededWarning is a computed outcome: the deduction was truncated to
// what remained of its annual limit.
type CapExceededWarning struct {
	DeductionID string      `json:"deductionId"`
	CapRef      string      `json:"capRef"`
	Requested   money.Money `json:"requested"`
	Applied     money.Money `json:"applied"`
}

func (w CapExceededWarning) Code() string {
	return "deduction_cap_exceeded"
}

func (w CapExceededWarning) Message() string {
	return fmt.Sprintf("deduction %s truncated from %s to %s by annual limit %s", w.DeductionID, w.Requested, w.Applied, w.CapRef)
}

type Applied struct {
	DeductionID string       `json:"deductionId"`
	Code        string       `json:"code"`
	Category    string       `json:"category"`
	Timing      Timing       `json:"timing"`
	Exemptions  ExemptionSet `json:"exemptions,omitempty"`
	Requested   money.Money  `json:"requested"`
	Amount      money.Money  `json:"amount"`
	CapRef      string       `json:"capRef,omitempty"`
	Mandatory   bool         `json:"mandatory"`
}

// Reductions are the amounts removed from each taxable-wage base.
type Reductions struct {
	Federal      money.Money `json:"federal"`
	State        money.Money `json:"state"`
	FICA         money.Money `json:"fica"`
	Unemployment money.Money `json:"unemployment"`
}

type Pass struct {
	Applied    []Applied            `json:"applied"`
	Warnings   []CapExceededWarning `json:"warnings,omitempty"`
	Reductions Reductions           `json:"reductions"`
	Total      money.Money          `json:"total"`
	Mandatory  money.Money          `json:"mandatory"`
	// Deferrals is cap usage this period keyed by CapRef, including every
	// earlier pass.
	Deferrals map[string]money.Money `json:"deferrals,omitempty"`
}

type Engine struct {
	tracker  *wagebase.Tracker
	rounding money.RoundingPolicy
}

func NewEngine(tracker *wagebase.Tracker, rounding money.RoundingPolicy) *Engine {
	return &Engine{tracker: tracker, rounding: rounding}
}

// PreTax applies pre-tax deductions. Each reduces only the wage bases in its
// exemption set.
func (e *Engine) PreTax(ds []Deduction, gross money.Money, ytd wagebase.YTD) (Pass, error) {
	return e.apply(PreTax, ds, gross, ytd, nil)
}

// PostTax applies post-tax deductions after taxes. Cap usage continues from
// the pre-tax pass.
func (e *Engine) PostTax(ds []Deduction, gross money.Money, ytd wagebase.YTD, prior Pass) (Pass, error) {
	return e.apply(PostTax, ds, gross, ytd, prior.Deferrals)
}

func (e *Engine) apply(timing Timing, ds []Deduction, gross money.Money, ytd wagebase.YTD, used map[string]money.Money) (Pass, error) {
	pass := Pass{Deferrals: make(map[string]money.Money, len(used))}
	for k, v := range used {
		pass.Deferrals[k] = v
	}

	for _, d := range Ordered(ds) {
		if err := d.Validate(); err != nil {
			return Pass{}, err
		}
		if d.Timing != timing {
			continue
		}
		requested := d.Amount
		if d.Kind == AmountPercent {
			requested = gross.NonNegative().MulRate(d.Percent, e.rounding)
		}

		amount := requested
		if d.CapRef != "" {
			usedSoFar := ytd.Deferral(d.CapRef) + pass.Deferrals[d.CapRef]
			allowed, err := e.allowed(d, ytd.TaxYear, usedSoFar, requested)
			if err != nil {
				return Pass{}, err
			}
			if allowed < requested {
				pass.Warnings = append(pass.Warnings, CapExceededWarning{
					DeductionID: d.ID,
					CapRef:      d.CapRef,
					Requested:   requested,
					Applied:     allowed,
				})
			}
			amount = allowed
			if amount > 0 {
				pass.Deferrals[d.CapRef] += amount
			}
		}

		pass.Applied = append(pass.Applied, Applied{
			DeductionID: d.ID,
			Code:        d.Code,
			Category:    d.Category,
			Timing:      d.Timing,
			Exemptions:  d.Exemptions,
			Requested:   requested,
			Amount:      amount,
			CapRef:      d.CapRef,
			Mandatory:   d.Mandatory,
		})
		pass.Total += amount
		if d.Mandatory {
			pass.Mandatory += amount
		}
		if timing == PreTax {
			if d.Exemptions.Has(ExemptFederal) {
				pass.Reductions.Federal += amount
			}
			if d.Exemptions.Has(ExemptState) {
				pass.Reductions.State += amount
			}
			if d.Exemptions.Has(ExemptFICA) {
				pass.Reductions.FICA += amount
			}
			if d.Exemptions.Has(ExemptUnemployment) {
				pass.Reductions.Unemployment += amount
			}
		}
	}
	return pass, nil
}

func (e *Engine) allowed(d Deduction, taxYear int, used, requested money.Money) (money.Money, error) {
	if d.AnnualLimit > 0 {
		return money.Min(requested, (d.AnnualLimit - used).NonNegative()), nil
	}
	res, err := e.tracker.Apply(taxYear, wagebase.KindDeferral, d.CapRef, used, requested)
	if err != nil {
		return 0, err
	}
	return res.Taxable, nil
}

// Ordered returns deductions by Order, then ID.
func Ordered(ds []Deduction) []Deduction {
	out := make([]Deduction, len(ds))
	copy(out, ds)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}
