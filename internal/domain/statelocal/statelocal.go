package statelocal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"paycore/internal/domain/money"
	"paycore/internal/domain/taxrules"
	"paycore/internal/domain/wagebase"
)

// LocalAssignment places the employee in a local jurisdiction, either as a
// resident or as a non-resident who works there.
type LocalAssignment struct {
	Code     string `json:"code"`
	Resident bool   `json:"resident"`
}

type Profile struct {
	WorkState      string                `json:"workState"`
	ResidenceState string                `json:"residenceState"`
	FilingStatus   taxrules.FilingStatus `json:"filingStatus,omitempty"`
	Locals         []LocalAssignment     `json:"locals,omitempty"`
	// ExtraWithholding is added once to the withheld state's tax per period.
	ExtraWithholding money.Money `json:"extraWithholding"`
	Exempt           bool        `json:"exempt"`
}

// Wages are this period's state-level taxable wages after pre-tax deductions.
type Wages struct {
	IncomeTax  money.Money
	Disability money.Money
	SUTA       money.Money
}

// Withholding is one jurisdiction's amount on a paycheck.
type Withholding struct {
	Jurisdiction string      `json:"jurisdiction"`
	Taxable      money.Money `json:"taxable"`
	Amount       money.Money `json:"amount"`
}

type Result struct {
	Income     []Withholding `json:"income"`
	Disability []Withholding `json:"disability,omitempty"`
	SUTA       Withholding   `json:"suta"`
	Local      []Withholding `json:"local,omitempty"`
}

type Calculator struct {
	rules    *taxrules.RuleSet
	tracker  *wagebase.Tracker
	rounding money.RoundingPolicy
}

func NewCalculator(rules *taxrules.RuleSet, tracker *wagebase.Tracker, rounding money.RoundingPolicy) *Calculator {
	return &Calculator{rules: rules, tracker: tracker, rounding: rounding}
}

// WithheldStates resolves which states' income tax applies. Without a
// reciprocity agreement a cross-border worker is withheld in both states.
func (c *Calculator) WithheldStates(work, residence string) []string {
	work, residence = normalize(work), normalize(residence)
	if residence == "" || residence == work {
		return []string{work}
	}
	if rel, ok := c.rules.ReciprocityBetween(work, residence); ok {
		if rel.Withhold == taxrules.WithholdResidenceState {
			return []string{residence}
		}
		return []string{work}
	}
	return []string{work, residence}
}

func (c *Calculator) Calculate(profile Profile, wages Wages, frequency taxrules.Frequency, ytd wagebase.YTD) (Result, error) {
	periods := frequency.PeriodsPerYear()
	if periods == 0 {
		return Result{}, fmt.Errorf("unsupported pay frequency %q", frequency)
	}
	work := normalize(profile.WorkState)
	workState, err := c.rules.State(work)
	if err != nil {
		return Result{}, err
	}
	status := profile.FilingStatus
	if status == "" {
		status = taxrules.FilingSingle
	}

	var res Result
	for i, code := range c.WithheldStates(work, profile.ResidenceState) {
		state, err := c.rules.State(code)
		if err != nil {
			return Result{}, err
		}
		w := Withholding{Jurisdiction: state.Code, Taxable: wages.IncomeTax.NonNegative()}
		if !profile.Exempt {
			amount, err := c.incomeTax(state, status, w.Taxable, periods)
			if err != nil {
				return Result{}, err
			}
			w.Amount = amount
			if i == 0 && state.TaxType != taxrules.TaxNone {
				w.Amount += profile.ExtraWithholding.NonNegative()
			}
		}
		res.Income = append(res.Income, w)
	}

	for _, program := range workState.Disability {
		key := program.WageBaseKey(workState.Code)
		applied, err := c.tracker.Apply(ytd.TaxYear, wagebase.KindStateDisability, key, ytd.Disability(key), wages.Disability)
		if err != nil {
			return Result{}, err
		}
		res.Disability = append(res.Disability, Withholding{
			Jurisdiction: key,
			Taxable:      applied.Taxable,
			Amount:       applied.Taxable.MulRate(program.Rate, c.rounding),
		})
	}

	suta, err := c.tracker.Apply(ytd.TaxYear, wagebase.KindSUTA, workState.Code, ytd.SUTA(workState.Code), wages.SUTA)
	if err != nil {
		return Result{}, err
	}
	res.SUTA = Withholding{
		Jurisdiction: workState.Code,
		Taxable:      suta.Taxable,
		Amount:       suta.Taxable.MulRate(workState.SUTA.Rate, c.rounding),
	}

	for _, assignment := range profile.Locals {
		local, err := c.rules.Local(assignment.Code)
		if err != nil {
			return Result{}, err
		}
		rate := local.NonResident
		if assignment.Resident {
			rate = local.Resident
		}
		if rate.TaxType == taxrules.TaxNone {
			continue
		}
		amount, err := c.localTax(local.Code, rate, wages.IncomeTax.NonNegative(), periods)
		if err != nil {
			return Result{}, err
		}
		res.Local = append(res.Local, Withholding{Jurisdiction: local.Code, Taxable: wages.IncomeTax.NonNegative(), Amount: amount})
	}
	return res, nil
}

func (c *Calculator) incomeTax(state taxrules.State, status taxrules.FilingStatus, taxable money.Money, periods int64) (money.Money, error) {
	switch state.TaxType {
	case taxrules.TaxNone:
		return 0, nil
	case taxrules.TaxFlat:
		annual := c.annualize(taxable, periods).Sub(state.Deduction(status).Decimal())
		if annual.IsNegative() {
			return 0, nil
		}
		return c.rounding.Round(annual.Mul(state.FlatRate).Div(decimal.NewFromInt(periods))), nil
	case taxrules.TaxGraduated:
		schedule, ok := state.Schedule(status)
		if !ok {
			return 0, fmt.Errorf("%w: %q in state %s", taxrules.ErrUnsupportedFilingStatus, status, state.Code)
		}
		annual := c.annualize(taxable, periods).Sub(state.Deduction(status).Decimal())
		if annual.IsNegative() {
			return 0, nil
		}
		tax := schedule.Tax(c.rounding.Round(annual))
		return c.rounding.Round(tax.Div(decimal.NewFromInt(periods))), nil
	default:
		return 0, fmt.Errorf("state %s has unknown tax type %q", state.Code, state.TaxType)
	}
}

func (c *Calculator) localTax(code string, rate taxrules.LocalRate, taxable money.Money, periods int64) (money.Money, error) {
	switch rate.TaxType {
	case taxrules.TaxNone:
		return 0, nil
	case taxrules.TaxFlat:
		return taxable.MulRate(rate.Rate, c.rounding), nil
	case taxrules.TaxGraduated:
		tax := rate.Schedule.Tax(c.rounding.Round(c.annualize(taxable, periods)))
		return c.rounding.Round(tax.Div(decimal.NewFromInt(periods))), nil
	default:
		return 0, fmt.Errorf("local %s has unknown tax type %q", code, rate.TaxType)
	}
}

func (c *Calculator) annualize(taxable money.Money, periods int64) decimal.Decimal {
	return taxable.Decimal().Mul(decimal.NewFromInt(periods))
}

func (r Result) Lines() []taxrules.Line {
	var lines []taxrules.Line
	for _, w := range r.Income {
		lines = append(lines, taxrules.Line{Jurisdiction: w.Jurisdiction, Tax: taxrules.TaxStateIncome, TaxableWages: w.Taxable, Amount: w.Amount, Party: taxrules.PartyEmployee})
	}
	for _, w := range r.Disability {
		lines = append(lines, taxrules.Line{Jurisdiction: w.Jurisdiction, Tax: taxrules.TaxStateDisability, TaxableWages: w.Taxable, Amount: w.Amount, Party: taxrules.PartyEmployee})
	}
	for _, w := range r.Local {
		lines = append(lines, taxrules.Line{Jurisdiction: w.Jurisdiction, Tax: taxrules.TaxLocal, TaxableWages: w.Taxable, Amount: w.Amount, Party: taxrules.PartyEmployee})
	}
	if r.SUTA.Jurisdiction != "" {
		lines = append(lines, taxrules.Line{Jurisdiction: r.SUTA.Jurisdiction, Tax: taxrules.TaxSUTA, TaxableWages: r.SUTA.Taxable, Amount: r.SUTA.Amount, Party: taxrules.PartyEmployer})
	}
	return lines
}

// Post adds this period's state and local wages and withholding to a YTD
// record.
func (r Result) Post(ytd *wagebase.YTD) {
	for _, w := range r.Income {
		ytd.StateIncomeTax = wagebase.Increment(ytd.StateIncomeTax, w.Jurisdiction, w.Amount)
	}
	for _, w := range r.Disability {
		ytd.DisabilityWages = wagebase.Increment(ytd.DisabilityWages, w.Jurisdiction, w.Taxable)
	}
	for _, w := range r.Local {
		ytd.LocalTax = wagebase.Increment(ytd.LocalTax, w.Jurisdiction, w.Amount)
	}
	if r.SUTA.Jurisdiction != "" {
		ytd.SUTAWages = wagebase.Increment(ytd.SUTAWages, r.SUTA.Jurisdiction, r.SUTA.Taxable)
	}
}

func (r Result) EmployeeTotal() money.Money {
	var total money.Money
	for _, group := range [][]Withholding{r.Income, r.Disability, r.Local} {
		for _, w := range group {
			total += w.Amount
		}
	}
	return total
}

func (r Result) EmployerTotal() money.Money {
	return r.SUTA.Amount
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
