package payroll

import (
	"time"

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

type PayPeriodContext struct {
	Start     time.Time          `json:"start"`
	End       time.Time          `json:"end"`
	PayDate   time.Time          `json:"payDate"`
	Frequency taxrules.Frequency `json:"frequency"`
}

// TaxYear is the year of the pay date, which governs withholding.
func (p PayPeriodContext) TaxYear() int {
	return p.PayDate.Year()
}

// TaxProfile is the employee's withholding profile for the run. Annual W-4
// amounts are OtherIncome, Deductions and DependentsCredit.
type TaxProfile struct {
	FilingStatus     taxrules.FilingStatus `json:"filingStatus"`
	MultipleJobs     bool                  `json:"multipleJobs"`
	OtherIncome      money.Money           `json:"otherIncome"`
	Deductions       money.Money           `json:"deductions"`
	DependentsCredit money.Money           `json:"dependentsCredit"`
	ExtraWithholding money.Money           `json:"extraWithholding"`
	Exempt           bool                  `json:"exempt"`

	WorkState             string                       `json:"workState"`
	ResidenceState        string                       `json:"residenceState"`
	StateFilingStatus     taxrules.FilingStatus        `json:"stateFilingStatus,omitempty"`
	StateExtraWithholding money.Money                  `json:"stateExtraWithholding"`
	StateExempt           bool                         `json:"stateExempt"`
	Locals                []statelocal.LocalAssignment `json:"locals,omitempty"`
}

func (p TaxProfile) federalProfile() federal.Profile {
	return federal.Profile{
		FilingStatus:     p.FilingStatus,
		MultipleJobs:     p.MultipleJobs,
		OtherIncome:      p.OtherIncome,
		Deductions:       p.Deductions,
		DependentsCredit: p.DependentsCredit,
		ExtraWithholding: p.ExtraWithholding,
		Exempt:           p.Exempt,
	}
}

func (p TaxProfile) stateProfile() statelocal.Profile {
	status := p.StateFilingStatus
	if status == "" {
		status = p.FilingStatus
	}
	return statelocal.Profile{
		WorkState:        p.WorkState,
		ResidenceState:   p.ResidenceState,
		FilingStatus:     status,
		Locals:           p.Locals,
		ExtraWithholding: p.StateExtraWithholding,
		Exempt:           p.StateExempt,
	}
}

type SplitKind string

const (
	SplitFixed     SplitKind = "fixed"
	SplitPercent   SplitKind = "percent"
	SplitRemainder SplitKind = "remainder"
)

// SplitRule directs part of net pay to an account. AccountRef is an opaque
// reference resolved by the disbursement system.
type SplitRule struct {
	AccountRef string          `json:"accountRef"`
	Kind       SplitKind       `json:"kind"`
	Amount     money.Money     `json:"amount"`
	Percent    decimal.Decimal `json:"percent"`
}

type EmployeeCalculationInput struct {
	EmployeeID string `json:"employeeId"`
	earnings.Input
	TaxProfile         TaxProfile             `json:"taxProfile"`
	YTD                wagebase.YTD           `json:"ytdWageRecord"`
	ActiveDeductions   []deductions.Deduction `json:"activeDeductions,omitempty"`
	ActiveGarnishments []garnishment.Order    `json:"activeGarnishments,omitempty"`
	BankSplits         []SplitRule            `json:"bankAccountSplitRules,omitempty"`
}

// Warning is a non-fatal computed outcome surfaced on a paycheck.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Paycheck struct {
	RunID       string         `json:"runId,omitempty"`
	EmployeeID  string         `json:"employeeId"`
	Status      PaycheckStatus `json:"status"`
	TaxYear     int            `json:"taxYear"`
	RuleVersion string         `json:"ruleVersion"`

	Earnings     []earnings.Line           `json:"earnings"`
	TaxLines     []taxrules.Line           `json:"taxLines"`
	Deductions   []deductions.Applied      `json:"deductions"`
	Garnishments []garnishment.Withholding `json:"garnishments"`

	Gross            money.Money `json:"gross"`
	TaxableGross     money.Money `json:"taxableGross"`
	PreTaxTotal      money.Money `json:"preTaxDeductions"`
	EmployeeTaxes    money.Money `json:"employeeTaxes"`
	PostTaxTotal     money.Money `json:"postTaxDeductions"`
	GarnishmentTotal money.Money `json:"garnishmentTotal"`
	Disposable       money.Money `json:"disposable"`
	Net              money.Money `json:"net"`
	EmployerTaxes    money.Money `json:"employerTaxes"`

	// YTDVersion is the version of the stored record the calculation read.
	YTDVersion int64        `json:"ytdVersion"`
	YTDAfter   wagebase.YTD `json:"ytdAfter"`
	// YTDDelta is what committing adds and what a reversal subtracts.
	YTDDelta wagebase.YTD `json:"ytdDelta"`
	// Orders carries every garnishment order with its post-period balance.
	Orders     []garnishment.Order `json:"orders,omitempty"`
	BankSplits []SplitRule         `json:"bankAccountSplitRules,omitempty"`

	Warnings []Warning `json:"warnings,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// JurisdictionTotal is the tax owed to one jurisdiction and tax.
type JurisdictionTotal struct {
	Jurisdiction string      `json:"jurisdiction"`
	Tax          string      `json:"tax"`
	Employee     money.Money `json:"employee"`
	Employer     money.Money `json:"employer"`
}

type PayrollRunTotals struct {
	EmployeeCount  int                 `json:"employeeCount"`
	Gross          money.Money         `json:"gross"`
	EmployeeTaxes  money.Money         `json:"employeeTaxes"`
	EmployerTaxes  money.Money         `json:"employerTaxes"`
	Deductions     money.Money         `json:"deductions"`
	Garnishments   money.Money         `json:"garnishments"`
	Net            money.Money         `json:"net"`
	ByJurisdiction []JurisdictionTotal `json:"byJurisdiction,omitempty"`
}

type PayrollRun struct {
	ID          string                     `json:"id"`
	TenantID    string                     `json:"tenantId"`
	Period      PayPeriodContext           `json:"period"`
	Status      RunStatus                  `json:"status"`
	Policy      RunPolicy                  `json:"policy"`
	RuleVersion string                     `json:"ruleVersion,omitempty"`
	Inputs      []EmployeeCalculationInput `json:"inputs,omitempty"`
	Paychecks   []Paycheck                 `json:"paychecks"`
	Totals      PayrollRunTotals           `json:"totals"`
	CreatedBy   string                     `json:"createdBy"`
	ApprovedBy  string                     `json:"approvedBy,omitempty"`
	Error       string                     `json:"error,omitempty"`
	CreatedAt   time.Time                  `json:"createdAt"`
	UpdatedAt   time.Time                  `json:"updatedAt"`
}

// Paycheck returns the run's paycheck for an employee.
func (r *PayrollRun) Paycheck(employeeID string) (*Paycheck, bool) {
	for i := range r.Paychecks {
		if r.Paychecks[i].EmployeeID == employeeID {
			return &r.Paychecks[i], true
		}
	}
	return nil, false
}

func (r *PayrollRun) Input(employeeID string) (EmployeeCalculationInput, bool) {
	for _, in := range r.Inputs {
		if in.EmployeeID == employeeID {
			return in, true
		}
	}
	return EmployeeCalculationInput{}, false
}

// Resolution is a reviewer's decision for a paycheck held in review.
type Resolution struct {
	Action ReviewAction              `json:"action"`
	Input  *EmployeeCalculationInput `json:"input,omitempty"`
	Note   string                    `json:"note,omitempty"`
}

// Actor identifies who performed an operation for the audit trail.
type Actor struct {
	UserID    string
	RequestID string
	IP        string
}
