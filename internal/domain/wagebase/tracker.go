package wagebase

import (
	"fmt"

	"paycore/internal/domain/money"
	"paycore/internal/domain/taxrules"
)

type Kind string

const (
	KindSocialSecurity     Kind = "social_security"
	KindAdditionalMedicare Kind = "additional_medicare"
	KindFUTA               Kind = "futa"
	KindSUTA               Kind = "suta"
	KindStateDisability    Kind = "state_disability"
	KindDeferral           Kind = "deferral"
)

// UnknownWageBaseError reports a kind/jurisdiction pair the tracker was not
// configured with.
type UnknownWageBaseError struct {
	Year         int
	Kind         Kind
	Jurisdiction string
}

func (e *UnknownWageBaseError) Error() string {
	if e.Jurisdiction == "" {
		return fmt.Sprintf("unknown wage base %s for tax year %d", e.Kind, e.Year)
	}
	return fmt.Sprintf("unknown wage base %s/%s for tax year %d", e.Kind, e.Jurisdiction, e.Year)
}

type key struct {
	kind         Kind
	jurisdiction string
}

// Result is the outcome of applying one period's wages to a wage base.
// Remaining is meaningful only when Limited is true.
type Result struct {
	Taxable   money.Money
	NewYTD    money.Money
	Remaining money.Money
	Limited   bool
}

// Tracker resolves annual wage-base ceilings for one tax year. It is
// immutable once built and holds no per-employee state.
type Tracker struct {
	year       int
	ceilings   map[key]money.Money
	thresholds map[key]money.Money
}

// NewTracker registers every wage base declared by the rule set. A zero
// ceiling is registered as unlimited.
func NewTracker(rules *taxrules.RuleSet) *Tracker {
	t := &Tracker{
		year:       rules.Year,
		ceilings:   make(map[key]money.Money),
		thresholds: make(map[key]money.Money),
	}
	t.ceilings[key{kind: KindSocialSecurity}] = rules.Federal.SocialSecurity.WageBase
	t.ceilings[key{kind: KindFUTA}] = rules.Federal.FUTA.WageBase
	t.thresholds[key{kind: KindAdditionalMedicare}] = rules.Federal.Medicare.AdditionalThreshold
	for code, state := range rules.States {
		t.ceilings[key{kind: KindSUTA, jurisdiction: code}] = state.SUTA.WageBase
		for _, program := range state.Disability {
			t.ceilings[key{kind: KindStateDisability, jurisdiction: program.WageBaseKey(code)}] = program.WageBase
		}
	}
	for ref, limit := range rules.Deferrals {
		t.ceilings[key{kind: KindDeferral, jurisdiction: ref}] = limit
	}
	return t
}

func (t *Tracker) Year() int {
	return t.year
}

// Ceiling returns the configured ceiling; zero means unlimited.
func (t *Tracker) Ceiling(taxYear int, kind Kind, jurisdiction string) (money.Money, error) {
	if taxYear != t.year {
		return 0, &UnknownWageBaseError{Year: taxYear, Kind: kind, Jurisdiction: jurisdiction}
	}
	ceiling, ok := t.ceilings[key{kind: kind, jurisdiction: jurisdiction}]
	if !ok {
		return 0, &UnknownWageBaseError{Year: taxYear, Kind: kind, Jurisdiction: jurisdiction}
	}
	return ceiling, nil
}

// Apply computes taxable = min(gross, max(0, ceiling - ytd)). It is pure: the
// caller commits NewYTD.
func (t *Tracker) Apply(taxYear int, kind Kind, jurisdiction string, ytd, gross money.Money) (Result, error) {
	ceiling, err := t.Ceiling(taxYear, kind, jurisdiction)
	if err != nil {
		return Result{}, err
	}
	gross = gross.NonNegative()
	if ceiling == 0 {
		return Result{Taxable: gross, NewYTD: ytd + gross}, nil
	}
	taxable := money.Min(gross, (ceiling - ytd).NonNegative())
	newYTD := ytd + taxable
	return Result{
		Taxable:   taxable,
		NewYTD:    newYTD,
		Remaining: (ceiling - newYTD).NonNegative(),
		Limited:   true,
	}, nil
}

// AboveThreshold returns the part of this period's wages that lies above a
// cumulative threshold: max(0, min(gross, ytd+gross-threshold)). NewYTD is the
// cumulative wage total, not the excess.
func (t *Tracker) AboveThreshold(taxYear int, kind Kind, ytd, gross money.Money) (Result, error) {
	if taxYear != t.year {
		return Result{}, &UnknownWageBaseError{Year: taxYear, Kind: kind}
	}
	threshold, ok := t.thresholds[key{kind: kind}]
	if !ok {
		return Result{}, &UnknownWageBaseError{Year: taxYear, Kind: kind}
	}
	gross = gross.NonNegative()
	excess := money.Min(gross, ytd+gross-threshold).NonNegative()
	return Result{
		Taxable:   excess,
		NewYTD:    ytd + gross,
		Remaining: (threshold - ytd - gross).NonNegative(),
		Limited:   true,
	}, nil
}
