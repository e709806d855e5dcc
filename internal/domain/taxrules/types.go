package taxrules

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"paycore/internal/domain/money"
)

type Frequency string

const (
	FrequencyDaily       Frequency = "daily"
	FrequencyWeekly      Frequency = "weekly"
	FrequencyBiweekly    Frequency = "biweekly"
	FrequencySemimonthly Frequency = "semimonthly"
	FrequencyMonthly     Frequency = "monthly"
	FrequencyQuarterly   Frequency = "quarterly"
	FrequencyAnnual      Frequency = "annual"
)

// PeriodsPerYear returns 0 for an unknown frequency.
func (f Frequency) PeriodsPerYear() int64 {
	switch f {
	case FrequencyDaily:
		return 260
	case FrequencyWeekly:
		return 52
	case FrequencyBiweekly:
		return 26
	case FrequencySemimonthly:
		return 24
	case FrequencyMonthly:
		return 12
	case FrequencyQuarterly:
		return 4
	case FrequencyAnnual:
		return 1
	default:
		return 0
	}
}

func (f Frequency) Valid() bool {
	return f.PeriodsPerYear() > 0
}

type FilingStatus string

const (
	FilingSingle            FilingStatus = "single"
	FilingMarriedJointly    FilingStatus = "married_jointly"
	FilingMarriedSeparately FilingStatus = "married_separately"
	FilingHeadOfHousehold   FilingStatus = "head_of_household"
)

func ParseFilingStatus(raw string) (FilingStatus, error) {
	status := FilingStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case FilingSingle, FilingMarriedJointly, FilingMarriedSeparately, FilingHeadOfHousehold:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFilingStatus, raw)
	}
}

// TaxType tags how a state or local income tax is computed.
type TaxType string

const (
	TaxNone      TaxType = "none"
	TaxFlat      TaxType = "flat"
	TaxGraduated TaxType = "graduated"
)

// RuleSet is the complete, immutable set of tax parameters for one tax year.
// Values handed out by a Registry must not be modified.
type RuleSet struct {
	Year        int                    `json:"year"`
	Version     string                 `json:"version"`
	Federal     Federal                `json:"federal"`
	States      map[string]State       `json:"states"`
	Locals      map[string]Local       `json:"locals"`
	Reciprocity []Reciprocity          `json:"reciprocity"`
	Deferrals   map[string]money.Money `json:"deferralLimits"`
	Garnishment Garnishment            `json:"garnishment"`
}

type Federal struct {
	Schedules         map[FilingStatus]Schedule    `json:"schedules"`
	StandardDeduction map[FilingStatus]money.Money `json:"standardDeduction"`
	SocialSecurity    CappedRate                   `json:"socialSecurity"`
	Medicare          Medicare                     `json:"medicare"`
	FUTA              CappedRate                   `json:"futa"`
}

// CappedRate is a flat rate applied up to an annual wage base. A zero wage
// base means the rate applies without a ceiling.
type CappedRate struct {
	Rate     decimal.Decimal `json:"rate"`
	WageBase money.Money     `json:"wageBase"`
}

func (c CappedRate) Unlimited() bool {
	return c.WageBase == 0
}

type Medicare struct {
	Rate                decimal.Decimal `json:"rate"`
	AdditionalRate      decimal.Decimal `json:"additionalRate"`
	AdditionalThreshold money.Money     `json:"additionalThreshold"`
}

type State struct {
	Code              string                       `json:"code"`
	TaxType           TaxType                      `json:"taxType"`
	FlatRate          decimal.Decimal              `json:"flatRate"`
	Schedules         map[FilingStatus]Schedule    `json:"schedules,omitempty"`
	StandardDeduction map[FilingStatus]money.Money `json:"standardDeduction,omitempty"`
	Disability        []Disability                 `json:"disability,omitempty"`
	SUTA              CappedRate                   `json:"suta"`
}

// Schedule returns the bracket schedule for a filing status, falling back to
// the single schedule when the state does not distinguish.
func (s State) Schedule(status FilingStatus) (Schedule, bool) {
	if sched, ok := s.Schedules[status]; ok {
		return sched, true
	}
	sched, ok := s.Schedules[FilingSingle]
	return sched, ok
}

func (s State) Deduction(status FilingStatus) money.Money {
	if d, ok := s.StandardDeduction[status]; ok {
		return d
	}
	return s.StandardDeduction[FilingSingle]
}

// Disability is an employee-paid state disability or paid-leave program.
type Disability struct {
	Program string `json:"program"`
	CappedRate
}

// WageBaseKey identifies the program for YTD tracking, e.g. "NJ:FLI".
func (d Disability) WageBaseKey(state string) string {
	return state + ":" + d.Program
}

type Local struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Resident    LocalRate `json:"resident"`
	NonResident LocalRate `json:"nonResident"`
}

type LocalRate struct {
	TaxType  TaxType         `json:"taxType"`
	Rate     decimal.Decimal `json:"rate"`
	Schedule Schedule        `json:"schedule,omitempty"`
}

// WithholdIn names the state withheld when a reciprocity agreement applies.
type WithholdIn string

const (
	WithholdWorkState      WithholdIn = "work"
	WithholdResidenceState WithholdIn = "residence"
)

// Reciprocity is symmetric between the two states.
type Reciprocity struct {
	States   [2]string  `json:"states"`
	Withhold WithholdIn `json:"withhold,omitempty"`
}

func (r Reciprocity) Covers(a, b string) bool {
	return (r.States[0] == a && r.States[1] == b) || (r.States[0] == b && r.States[1] == a)
}

type Garnishment struct {
	MinimumWage        money.Money                   `json:"minimumWage"`
	CCPAPercent        decimal.Decimal               `json:"ccpaPercent"`
	FloorHours         map[Frequency]decimal.Decimal `json:"floorHours"`
	Support            SupportCaps                   `json:"support"`
	StudentLoanPercent decimal.Decimal               `json:"studentLoanPercent"`
	Levy               LevyExemption                 `json:"levy"`
}

// SupportCaps are the percentage-of-disposable limits for support orders.
type SupportCaps struct {
	WithDependents        decimal.Decimal `json:"withDependents"`
	WithDependentsArrears decimal.Decimal `json:"withDependentsArrears"`
	NoDependents          decimal.Decimal `json:"noDependents"`
	NoDependentsArrears   decimal.Decimal `json:"noDependentsArrears"`
}

func (s SupportCaps) For(hasOtherDependents, inArrears bool) decimal.Decimal {
	switch {
	case hasOtherDependents && inArrears:
		return s.WithDependentsArrears
	case hasOtherDependents:
		return s.WithDependents
	case inArrears:
		return s.NoDependentsArrears
	default:
		return s.NoDependents
	}
}

// LevyExemption is the annual federal tax levy exempt amount basis.
type LevyExemption struct {
	StandardDeduction map[FilingStatus]money.Money `json:"standardDeduction"`
	PerExemption      money.Money                  `json:"perExemption"`
}
