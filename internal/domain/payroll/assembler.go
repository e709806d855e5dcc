package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"

	"paycore/internal/domain/deductions"
	"paycore/internal/domain/earnings"
	"paycore/internal/domain/federal"
	"paycore/internal/domain/garnishment"
	"paycore/internal/domain/money"
	"paycore/internal/domain/statelocal"
	"paycore/internal/domain/taxrules"
	"paycore/internal/domain/wagebase"
)

// Assembler resolves the rule set for a pay date and builds paychecks.
type Assembler struct {
	registry *taxrules.Registry
	rounding money.RoundingPolicy
}

func NewAssembler(registry *taxrules.Registry, rounding money.RoundingPolicy) *Assembler {
	return &Assembler{registry: registry, rounding: rounding}
}

// Pipeline looks up the rule set for the period's tax year.
func (a *Assembler) Pipeline(period PayPeriodContext) (*Pipeline, error) {
	rules, err := a.registry.Lookup(period.TaxYear())
	if err != nil {
		return nil, err
	}
	return NewPipeline(rules, a.rounding), nil
}

// Calculate validates the input and computes one paycheck. It performs no
// I/O and does not modify the input.
func (a *Assembler) Calculate(period PayPeriodContext, in EmployeeCalculationInput) (Paycheck, error) {
	if err := ValidateInput(period, in); err != nil {
		return Paycheck{}, err
	}
	pipeline, err := a.Pipeline(period)
	if err != nil {
		return Paycheck{}, &CalculationError{EmployeeID: in.EmployeeID, Stage: "rules", Err: err}
	}
	return pipeline.Calculate(period, in)
}

// Pipeline holds the calculators for one rule set. It is immutable and safe
// to share across goroutines.
type Pipeline struct {
	rules       *taxrules.RuleSet
	earnings    earnings.Calculator
	federal     *federal.Calculator
	state       *statelocal.Calculator
	deductions  *deductions.Engine
	garnishment *garnishment.Engine
}

func NewPipeline(rules *taxrules.RuleSet, rounding money.RoundingPolicy) *Pipeline {
	tracker := wagebase.NewTracker(rules)
	return &Pipeline{
		rules:       rules,
		earnings:    earnings.NewCalculator(rounding),
		federal:     federal.NewCalculator(rules, tracker, rounding),
		state:       statelocal.NewCalculator(rules, tracker, rounding),
		deductions:  deductions.NewEngine(tracker, rounding),
		garnishment: garnishment.NewEngine(rules.Garnishment),
	}
}

func (p *Pipeline) RuleVersion() string {
	return p.rules.Version
}

// Calculate runs earnings, pre-tax deductions, taxes, post-tax deductions and
// garnishments in that order. The input must already be validated.
func (p *Pipeline) Calculate(period PayPeriodContext, in EmployeeCalculationInput) (Paycheck, error) {
	fail := func(stage string, err error) (Paycheck, error) {
		return Paycheck{}, &CalculationError{EmployeeID: in.EmployeeID, Stage: stage, Err: err}
	}

	ytd := in.YTD.ForYear(p.rules.Year)
	ytd.EmployeeID = in.EmployeeID

	earned, err := p.earnings.Calculate(in.Input, period.Frequency)
	if err != nil {
		return fail("earnings", err)
	}
	taxable := earned.TaxableGross

	pre, err := p.deductions.PreTax(in.ActiveDeductions, taxable, ytd)
	if err != nil {
		return fail("pretax_deductions", err)
	}
	red := pre.Reductions

	fed, err := p.federal.Calculate(in.TaxProfile.federalProfile(), federal.Wages{
		IncomeTax: taxable - red.Federal,
		FICA:      taxable - red.FICA,
		FUTA:      taxable - red.Unemployment,
	}, period.Frequency, ytd)
	if err != nil {
		return fail("federal", err)
	}
	state, err := p.state.Calculate(in.TaxProfile.stateProfile(), statelocal.Wages{
		IncomeTax:  taxable - red.State,
		Disability: taxable - red.FICA,
		SUTA:       taxable - red.Unemployment,
	}, period.Frequency, ytd)
	if err != nil {
		return fail("state_local", err)
	}

	post, err := p.deductions.PostTax(in.ActiveDeductions, taxable, ytd, pre)
	if err != nil {
		return fail("posttax_deductions", err)
	}

	employeeTaxes := fed.EmployeeTotal() + state.EmployeeTotal()
	disposable := garnishment.Disposable(taxable, employeeTaxes, pre.Mandatory+post.Mandatory)
	garnished, err := p.garnishment.Apply(garnishment.Input{
		Gross:      taxable,
		Disposable: disposable,
		Frequency:  period.Frequency,
		PayDate:    period.PayDate,
		Orders:     in.ActiveGarnishments,
	})
	if err != nil {
		return fail("garnishments", err)
	}

	net := earned.Gross - pre.Total - employeeTaxes - post.Total - garnished.Total

	after := ytd.Clone()
	after.Gross += earned.Gross
	fed.Post(&after)
	state.Post(&after)
	for ref, amount := range post.Deferrals {
		after.Deferrals = wagebase.Increment(after.Deferrals, ref, amount)
	}
	after.NetPay += net

	check := Paycheck{
		EmployeeID:       in.EmployeeID,
		Status:           PaycheckCalculated,
		TaxYear:          p.rules.Year,
		RuleVersion:      p.rules.Version,
		Earnings:         earned.Lines,
		TaxLines:         append(fed.Lines(), state.Lines()...),
		Deductions:       append(append([]deductions.Applied{}, pre.Applied...), post.Applied...),
		Garnishments:     garnished.Withholdings,
		Gross:            earned.Gross,
		TaxableGross:     taxable,
		PreTaxTotal:      pre.Total,
		EmployeeTaxes:    employeeTaxes,
		PostTaxTotal:     post.Total,
		GarnishmentTotal: garnished.Total,
		Disposable:       disposable,
		Net:              net,
		EmployerTaxes:    fed.EmployerTotal() + state.EmployerTotal(),
		YTDAfter:         after,
		YTDDelta:         ytd.Delta(after),
		Orders:           garnished.Orders,
		BankSplits:       in.BankSplits,
	}
	for _, w := range pre.Warnings {
		check.Warnings = append(check.Warnings, Warning{Code: w.Code(), Message: w.Message()})
	}
	for _, w := range post.Warnings {
		check.Warnings = append(check.Warnings, Warning{Code: w.Code(), Message: w.Message()})
	}
	for _, w := range garnished.Warnings {
		check.Warnings = append(check.Warnings, Warning{Code: w.Code(), Message: w.Message()})
	}
	if net < 0 {
		check.Status = PaycheckNeedsReview
		check.Warnings = append(check.Warnings, Warning{
			Code:    WarningNegativeNet,
			Message: fmt.Sprintf("net pay %s is negative", net),
		})
	}
	return check, nil
}

// ValidateInput rejects malformed or missing data before any calculation.
func ValidateInput(period PayPeriodContext, in EmployeeCalculationInput) error {
	verr := &ValidationError{EmployeeID: in.EmployeeID}
	if in.EmployeeID == "" {
		verr.add("employeeId", "is required")
	}
	validatePeriod(verr, period)
	if in.TaxProfile.FilingStatus == "" {
		verr.add("taxProfile.filingStatus", "is required")
	}
	if in.TaxProfile.WorkState == "" {
		verr.add("taxProfile.workState", "is required")
	}
	for field, amount := range map[string]money.Money{
		"taxProfile.otherIncome":           in.TaxProfile.OtherIncome,
		"taxProfile.deductions":            in.TaxProfile.Deductions,
		"taxProfile.dependentsCredit":      in.TaxProfile.DependentsCredit,
		"taxProfile.extraWithholding":      in.TaxProfile.ExtraWithholding,
		"taxProfile.stateExtraWithholding": in.TaxProfile.StateExtraWithholding,
	} {
		if amount.IsNegative() {
			verr.add(field, "must not be negative")
		}
	}
	if err := in.Input.Validate(); err != nil {
		verr.add("earnings", err.Error())
	}
	if in.YTD.EmployeeID != "" && in.YTD.EmployeeID != in.EmployeeID {
		verr.add("ytdWageRecord.employeeId", "does not match employee")
	}
	if in.YTD.TaxYear > period.TaxYear() {
		verr.add("ytdWageRecord.taxYear", "is after the pay date")
	}
	for i, d := range in.ActiveDeductions {
		if err := d.Validate(); err != nil {
			verr.add(fmt.Sprintf("activeDeductions[%d]", i), err.Error())
		}
	}
	for i, o := range in.ActiveGarnishments {
		if err := o.Validate(); err != nil {
			verr.add(fmt.Sprintf("activeGarnishments[%d]", i), err.Error())
		}
	}
	validateSplits(verr, in.BankSplits)
	return verr.orNil()
}

func validatePeriod(verr *ValidationError, period PayPeriodContext) {
	if !period.Frequency.Valid() {
		verr.add("period.frequency", "is not supported")
	}
	if period.PayDate.IsZero() {
		verr.add("period.payDate", "is required")
	}
	if period.Start.IsZero() || period.End.IsZero() {
		verr.add("period", "start and end are required")
	} else if period.End.Before(period.Start) {
		verr.add("period.end", "is before start")
	}
}

func validateSplits(verr *ValidationError, splits []SplitRule) {
	remainders := 0
	for i, s := range splits {
		field := fmt.Sprintf("bankAccountSplitRules[%d]", i)
		if s.AccountRef == "" {
			verr.add(field+".accountRef", "is required")
		}
		switch s.Kind {
		case SplitFixed:
			if s.Amount.IsNegative() {
				verr.add(field+".amount", "must not be negative")
			}
		case SplitPercent:
			if s.Percent.IsNegative() || s.Percent.GreaterThan(decimal.NewFromInt(1)) {
				verr.add(field+".percent", "must be between 0 and 1")
			}
		case SplitRemainder:
			remainders++
		default:
			verr.add(field+".kind", "is not supported")
		}
	}
	if remainders > 1 {
		verr.add("bankAccountSplitRules", "allows at most one remainder account")
	}
}

// Verify checks a paycheck's arithmetic before it may leave PROCESSING.
func Verify(p Paycheck) error {
	var earned money.Money
	for _, line := range p.Earnings {
		earned += line.Amount
	}
	if earned != p.Gross {
		return fmt.Errorf("%w: earnings %s != gross %s", ErrArithmetic, earned, p.Gross)
	}
	var employee, employer money.Money
	for _, line := range p.TaxLines {
		if line.Party == taxrules.PartyEmployer {
			employer += line.Amount
		} else {
			employee += line.Amount
		}
	}
	if employee != p.EmployeeTaxes || employer != p.EmployerTaxes {
		return fmt.Errorf("%w: tax lines %s/%s != totals %s/%s", ErrArithmetic, employee, employer, p.EmployeeTaxes, p.EmployerTaxes)
	}
	var pre, post money.Money
	for _, d := range p.Deductions {
		if d.Timing == deductions.PreTax {
			pre += d.Amount
		} else {
			post += d.Amount
		}
	}
	if pre != p.PreTaxTotal || post != p.PostTaxTotal {
		return fmt.Errorf("%w: deductions %s/%s != totals %s/%s", ErrArithmetic, pre, post, p.PreTaxTotal, p.PostTaxTotal)
	}
	var garnished money.Money
	for _, g := range p.Garnishments {
		garnished += g.Amount
	}
	if garnished != p.GarnishmentTotal {
		return fmt.Errorf("%w: garnishments %s != total %s", ErrArithmetic, garnished, p.GarnishmentTotal)
	}
	if want := p.Gross - p.PreTaxTotal - p.EmployeeTaxes - p.PostTaxTotal - p.GarnishmentTotal; want != p.Net {
		return fmt.Errorf("%w: net %s != %s", ErrArithmetic, p.Net, want)
	}
	if p.Net < 0 {
		return fmt.Errorf("%w: employee %s net %s", ErrNegativeNetPay, p.EmployeeID, p.Net)
	}
	return nil
}
