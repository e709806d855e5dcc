package federal

import (
	"fmt"

	"github.com/shopspring/decimal"

	"paycore/internal/domain/money"
	"paycore/internal/domain/taxrules"
	"paycore/internal/domain/wagebase"
)

// Profile is the federal part of a W-4. OtherIncome, Deductions and
// DependentsCredit are annual amounts; ExtraWithholding is per period.
type Profile struct {
	FilingStatus     taxrules.FilingStatus `json:"filingStatus"`
	MultipleJobs     bool                  `json:"multipleJobs"`
	OtherIncome      money.Money           `json:"otherIncome"`
	Deductions       money.Money           `json:"deductions"`
	DependentsCredit money.Money           `json:"dependentsCredit"`
	ExtraWithholding money.Money           `json:"extraWithholding"`
	Exempt           bool                  `json:"exempt"`
}

// Wages are this period's taxable wages per base after pre-tax deductions.
type Wages struct {
	IncomeTax money.Money
	FICA      money.Money
	FUTA      money.Money
}

type Capped struct {
	Taxable  money.Money `json:"taxable"`
	Employee money.Money `json:"employee"`
	Employer money.Money `json:"employer"`
}

type Medicare struct {
	Taxable            money.Money `json:"taxable"`
	Employee           money.Money `json:"employee"`
	Employer           money.Money `json:"employer"`
	AdditionalTaxable  money.Money `json:"additionalTaxable"`
	AdditionalEmployee money.Money `json:"additionalEmployee"`
}

type Result struct {
	IncomeTaxable  money.Money `json:"incomeTaxable"`
	IncomeTax      money.Money `json:"incomeTax"`
	SocialSecurity Capped      `json:"socialSecurity"`
	Medicare       Medicare    `json:"medicare"`
	FUTA           Capped      `json:"futa"`
}

type Calculator struct {
	rules    *taxrules.RuleSet
	tracker  *wagebase.Tracker
	rounding money.RoundingPolicy
}

func NewCalculator(rules *taxrules.RuleSet, tracker *wagebase.Tracker, rounding money.RoundingPolicy) *Calculator {
	return &Calculator{rules: rules, tracker: tracker, rounding: rounding}
}

// Calculate computes federal withholding and payroll taxes for one period
// against the employee's YTD snapshot. It does not modify ytd.
func (c *Calculator) Calculate(profile Profile, wages Wages, frequency taxrules.Frequency, ytd wagebase.YTD) (Result, error) {
	periods := frequency.PeriodsPerYear()
	if periods == 0 {
		return Result{}, fmt.Errorf("unsupported pay frequency %q", frequency)
	}
	var res Result

	incomeTax, err := c.IncomeTax(profile, wages.IncomeTax, periods)
	if err != nil {
		return Result{}, err
	}
	res.IncomeTaxable = wages.IncomeTax.NonNegative()
	res.IncomeTax = incomeTax

	fed := c.rules.Federal
	ss, err := c.tracker.Apply(ytd.TaxYear, wagebase.KindSocialSecurity, "", ytd.SocialSecurityWages, wages.FICA)
	if err != nil {
		return Result{}, err
	}
	ssTax := ss.Taxable.MulRate(fed.SocialSecurity.Rate, c.rounding)
	res.SocialSecurity = Capped{Taxable: ss.Taxable, Employee: ssTax, Employer: ssTax}

	medicareWages := wages.FICA.NonNegative()
	medicareTax := medicareWages.MulRate(fed.Medicare.Rate, c.rounding)
	additional, err := c.tracker.AboveThreshold(ytd.TaxYear, wagebase.KindAdditionalMedicare, ytd.MedicareWages, medicareWages)
	if err != nil {
		return Result{}, err
	}
	res.Medicare = Medicare{
		Taxable:            medicareWages,
		Employee:           medicareTax,
		Employer:           medicareTax,
		AdditionalTaxable:  additional.Taxable,
		AdditionalEmployee: c.additionalMedicare(ytd.MedicareWages, medicareWages),
	}

	futa, err := c.tracker.Apply(ytd.TaxYear, wagebase.KindFUTA, "", ytd.FUTAWages, wages.FUTA)
	if err != nil {
		return Result{}, err
	}
	res.FUTA = Capped{Taxable: futa.Taxable, Employer: futa.Taxable.MulRate(fed.FUTA.Rate, c.rounding)}
	return res, nil
}

// IncomeTax applies the annualized percentage method for one period.
func (c *Calculator) IncomeTax(profile Profile, taxable money.Money, periods int64) (money.Money, error) {
	if profile.Exempt {
		return 0, nil
	}
	schedule, deduction, err := c.rules.FederalTable(profile.FilingStatus)
	if err != nil {
		return 0, err
	}
	if profile.MultipleJobs {
		schedule = schedule.Halved()
		deduction = deduction.Div(2, money.Down)
	}

	annual := taxable.NonNegative().Decimal().Mul(decimal.NewFromInt(periods))
	annual = annual.Add(profile.OtherIncome.Decimal()).
		Sub(deduction.Decimal()).
		Sub(profile.Deductions.Decimal())
	if annual.IsNegative() {
		annual = decimal.Zero
	}

	annualTax := schedule.Tax(c.rounding.Round(annual)).Sub(profile.DependentsCredit.Decimal())
	if annualTax.IsNegative() {
		annualTax = decimal.Zero
	}
	perPeriod := c.rounding.Round(annualTax.Div(decimal.NewFromInt(periods)))
	return perPeriod + profile.ExtraWithholding.NonNegative(), nil
}

// additionalMedicare telescopes the rounded annual liability so the per-period
// amounts always sum to rate x total excess.
func (c *Calculator) additionalMedicare(ytdWages, wages money.Money) money.Money {
	threshold := c.rules.Federal.Medicare.AdditionalThreshold
	rate := c.rules.Federal.Medicare.AdditionalRate
	before := (ytdWages - threshold).NonNegative().MulRate(rate, c.rounding)
	after := (ytdWages + wages - threshold).NonNegative().MulRate(rate, c.rounding)
	return after - before
}

// Lines itemizes the result for the paycheck.
func (r Result) Lines() []taxrules.Line {
	fed := taxrules.JurisdictionFederal
	lines := []taxrules.Line{
		{Jurisdiction: fed, Tax: taxrules.TaxFederalIncome, TaxableWages: r.IncomeTaxable, Amount: r.IncomeTax, Party: taxrules.PartyEmployee},
		{Jurisdiction: fed, Tax: taxrules.TaxSocialSecurity, TaxableWages: r.SocialSecurity.Taxable, Amount: r.SocialSecurity.Employee, Party: taxrules.PartyEmployee},
		{Jurisdiction: fed, Tax: taxrules.TaxSocialSecurity, TaxableWages: r.SocialSecurity.Taxable, Amount: r.SocialSecurity.Employer, Party: taxrules.PartyEmployer},
		{Jurisdiction: fed, Tax: taxrules.TaxMedicare, TaxableWages: r.Medicare.Taxable, Amount: r.Medicare.Employee, Party: taxrules.PartyEmployee},
		{Jurisdiction: fed, Tax: taxrules.TaxMedicare, TaxableWages: r.Medicare.Taxable, Amount: r.Medicare.Employer, Party: taxrules.PartyEmployer},
	}
	if r.Medicare.AdditionalEmployee != 0 || r.Medicare.AdditionalTaxable != 0 {
		lines = append(lines, taxrules.Line{Jurisdiction: fed, Tax: taxrules.TaxAdditionalMedicare, TaxableWages: r.Medicare.AdditionalTaxable, Amount: r.Medicare.AdditionalEmployee, Party: taxrules.PartyEmployee})
	}
	lines = append(lines, taxrules.Line{Jurisdiction: fed, Tax: taxrules.TaxFUTA, TaxableWages: r.FUTA.Taxable, Amount: r.FUTA.Employer, Party: taxrules.PartyEmployer})
	return lines
}

// Post adds this period's federal wages and withholding to a YTD record.
func (r Result) Post(ytd *wagebase.YTD) {
	ytd.SocialSecurityWages += r.SocialSecurity.Taxable
	ytd.MedicareWages += r.Medicare.Taxable
	ytd.FUTAWages += r.FUTA.Taxable
	ytd.FederalIncomeTax += r.IncomeTax
	ytd.SocialSecurityTax += r.SocialSecurity.Employee
	ytd.MedicareTax += r.Medicare.Employee
	ytd.AdditionalMedicareTax += r.Medicare.AdditionalEmployee
}

func (r Result) EmployeeTotal() money.Money {
	return r.IncomeTax + r.SocialSecurity.Employee + r.Medicare.Employee + r.Medicare.AdditionalEmployee
}

func (r Result) EmployerTotal() money.Money {
	return r.SocialSecurity.Employer + r.Medicare.Employer + r.FUTA.Employer
}
