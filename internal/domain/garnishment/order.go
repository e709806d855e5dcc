package garnishment

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"paycore/internal/domain/money"
	"paycore/internal/domain/taxrules"
)

type Kind string

const (
	KindChildSupport Kind = "child_support"
	KindFederalLevy  Kind = "federal_levy"
	KindStateLevy    Kind = "state_levy"
	KindBankruptcy   Kind = "bankruptcy"
	KindStudentLoan  Kind = "student_loan"
	KindCreditor     Kind = "creditor"
	KindMedical      Kind = "medical"
	KindOther        Kind = "other"
)

// Priority is the statutory processing order; lower goes first.
func (k Kind) Priority() (int, bool) {
	switch k {
	case KindChildSupport:
		return 1, true
	case KindFederalLevy:
		return 2, true
	case KindStateLevy:
		return 3, true
	case KindBankruptcy:
		return 4, true
	case KindStudentLoan:
		return 5, true
	case KindCreditor, KindMedical:
		return 6, true
	case KindOther:
		return 7, true
	default:
		return 0, false
	}
}

// CCPAGoverned reports whether the kind shares the CCPA budget. Support and
// federal levies follow their own caps.
func (k Kind) CCPAGoverned() bool {
	switch k {
	case KindChildSupport, KindFederalLevy:
		return false
	case KindStateLevy, KindBankruptcy, KindStudentLoan, KindCreditor, KindMedical, KindOther:
		return true
	default:
		return true
	}
}

type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusSuspended  Status = "SUSPENDED"
	StatusSatisfied  Status = "SATISFIED"
	StatusTerminated Status = "TERMINATED"
)

var (
	ErrInvalidOrder      = errors.New("invalid garnishment order")
	ErrInvalidTransition = errors.New("invalid garnishment status transition")
)

func IsTerminal(s Status) bool {
	return s == StatusSatisfied || s == StatusTerminated
}

// Transition moves the order from the expected status to the next one.
func Transition(o *Order, from, to Status) error {
	if o.Status != from {
		return fmt.Errorf("%w: order %s expected %s, got %s", ErrInvalidTransition, o.ID, from, o.Status)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("%w: order %s %s -> %s", ErrInvalidTransition, o.ID, from, to)
	}
	o.Status = to
	return nil
}

func isAllowedTransition(from, to Status) bool {
	switch from {
	case StatusActive:
		return to == StatusSuspended || to == StatusSatisfied || to == StatusTerminated
	case StatusSuspended:
		return to == StatusActive || to == StatusTerminated
	default:
		return false
	}
}

type RuleKind string

const (
	RuleFixed   RuleKind = "fixed"
	RulePercent RuleKind = "percent"
	// RuleFormula is Base + Percent x max(0, disposable - Threshold).
	RuleFormula RuleKind = "formula"
)

type AmountRule struct {
	Kind      RuleKind        `json:"kind"`
	Amount    money.Money     `json:"amount"`
	Percent   decimal.Decimal `json:"percent"`
	Threshold money.Money     `json:"threshold"`
}

// Requested is what the order asks for this period before any cap.
func (r AmountRule) Requested(disposable money.Money) money.Money {
	disposable = disposable.NonNegative()
	switch r.Kind {
	case RuleFixed:
		return r.Amount
	case RulePercent:
		return disposable.MulRate(r.Percent, money.Down)
	case RuleFormula:
		return r.Amount + (disposable - r.Threshold).NonNegative().MulRate(r.Percent, money.Down)
	default:
		return 0
	}
}

// Order is an already validated garnishment order supplied by legal intake.
// OpenEnded orders have no balance and never become SATISFIED.
type Order struct {
	ID         string      `json:"id"`
	Kind       Kind        `json:"kind"`
	CaseRef    string      `json:"caseRef"`
	Payee      string      `json:"payee"`
	Rule       AmountRule  `json:"rule"`
	Balance    money.Money `json:"balance"`
	OpenEnded  bool        `json:"openEnded"`
	Status     Status      `json:"status"`
	ReceivedAt time.Time   `json:"receivedAt"`

	EffectiveFrom time.Time `json:"effectiveFrom"`
	EffectiveTo   time.Time `json:"effectiveTo"`

	// Support cap selection.
	HasOtherDependents bool `json:"hasOtherDependents"`
	InArrears          bool `json:"inArrears"`

	// Federal levy exempt amount inputs.
	LevyFilingStatus taxrules.FilingStatus `json:"levyFilingStatus,omitempty"`
	LevyExemptions   int                   `json:"levyExemptions"`
}

func (o Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidOrder)
	}
	if _, ok := o.Kind.Priority(); !ok {
		return fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidOrder, o.ID, o.Kind)
	}
	switch o.Status {
	case StatusActive, StatusSuspended, StatusSatisfied, StatusTerminated:
	default:
		return fmt.Errorf("%w: %s has unknown status %q", ErrInvalidOrder, o.ID, o.Status)
	}
	switch o.Rule.Kind {
	case RuleFixed, RulePercent, RuleFormula:
	default:
		return fmt.Errorf("%w: %s has unknown amount rule %q", ErrInvalidOrder, o.ID, o.Rule.Kind)
	}
	if o.Rule.Amount.IsNegative() || o.Rule.Percent.IsNegative() || o.Rule.Threshold.IsNegative() {
		return fmt.Errorf("%w: %s amount rule has negative values", ErrInvalidOrder, o.ID)
	}
	if o.Balance.IsNegative() {
		return fmt.Errorf("%w: %s balance is negative", ErrInvalidOrder, o.ID)
	}
	if o.LevyExemptions < 0 {
		return fmt.Errorf("%w: %s exemptions are negative", ErrInvalidOrder, o.ID)
	}
	return nil
}

// EffectiveOn reports whether the pay date falls inside the order's window.
func (o Order) EffectiveOn(payDate time.Time) bool {
	if !o.EffectiveFrom.IsZero() && payDate.Before(o.EffectiveFrom) {
		return false
	}
	if !o.EffectiveTo.IsZero() && payDate.After(o.EffectiveTo) {
		return false
	}
	return true
}
