package taxrules

import (
	"fmt"
	"sort"
	"strings"

	"paycore/internal/domain/money"
)

// FederalTable returns the withholding schedule and standard deduction for a
// filing status.
func (r *RuleSet) FederalTable(status FilingStatus) (Schedule, money.Money, error) {
	sched, ok := r.Federal.Schedules[status]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q in %d federal table", ErrUnsupportedFilingStatus, status, r.Year)
	}
	return sched, r.Federal.StandardDeduction[status], nil
}

func (r *RuleSet) State(code string) (State, error) {
	state, ok := r.States[normalizeCode(code)]
	if !ok {
		return State{}, fmt.Errorf("%w: state %q (%d)", ErrUnknownJurisdiction, code, r.Year)
	}
	return state, nil
}

func (r *RuleSet) Local(code string) (Local, error) {
	local, ok := r.Locals[normalizeCode(code)]
	if !ok {
		return Local{}, fmt.Errorf("%w: local %q (%d)", ErrUnknownJurisdiction, code, r.Year)
	}
	return local, nil
}

// ReciprocityBetween reports the agreement between two states, if any.
func (r *RuleSet) ReciprocityBetween(work, residence string) (Reciprocity, bool) {
	work, residence = normalizeCode(work), normalizeCode(residence)
	for _, rel := range r.Reciprocity {
		if rel.Covers(work, residence) {
			if rel.Withhold == "" {
				rel.Withhold = WithholdWorkState
			}
			return rel, true
		}
	}
	return Reciprocity{}, false
}

func (r *RuleSet) DeferralLimit(ref string) (money.Money, bool) {
	limit, ok := r.Deferrals[ref]
	return limit, ok
}

// Validate checks structural consistency before a rule set is registered.
func (r *RuleSet) Validate() error {
	if r.Year < 1900 {
		return fmt.Errorf("rule set year %d is invalid", r.Year)
	}
	if len(r.Federal.Schedules) == 0 {
		return fmt.Errorf("%w: %d has no federal schedules", ErrMissingTaxTable, r.Year)
	}
	for _, status := range sortedStatuses(r.Federal.Schedules) {
		if err := r.Federal.Schedules[status].Validate(); err != nil {
			return fmt.Errorf("federal %s: %w", status, err)
		}
	}
	if r.Federal.SocialSecurity.Unlimited() {
		return fmt.Errorf("%d social security wage base is required", r.Year)
	}
	if r.Federal.FUTA.Unlimited() {
		return fmt.Errorf("%d FUTA wage base is required", r.Year)
	}
	for code, state := range r.States {
		if code != state.Code {
			return fmt.Errorf("state key %q does not match code %q", code, state.Code)
		}
		switch state.TaxType {
		case TaxNone:
		case TaxFlat:
			if state.FlatRate.IsNegative() || state.FlatRate.IsZero() {
				return fmt.Errorf("state %s flat rate must be positive", code)
			}
		case TaxGraduated:
			if _, ok := state.Schedule(FilingSingle); !ok {
				return fmt.Errorf("state %s graduated tax requires a single schedule", code)
			}
			for status, sched := range state.Schedules {
				if err := sched.Validate(); err != nil {
					return fmt.Errorf("state %s %s: %w", code, status, err)
				}
			}
		default:
			return fmt.Errorf("state %s has unknown tax type %q", code, state.TaxType)
		}
	}
	for code, local := range r.Locals {
		if code != local.Code {
			return fmt.Errorf("local key %q does not match code %q", code, local.Code)
		}
		for _, rate := range []LocalRate{local.Resident, local.NonResident} {
			if rate.TaxType == TaxGraduated {
				if err := rate.Schedule.Validate(); err != nil {
					return fmt.Errorf("local %s: %w", code, err)
				}
			}
		}
	}
	for _, rel := range r.Reciprocity {
		switch rel.Withhold {
		case "", WithholdWorkState, WithholdResidenceState:
		default:
			return fmt.Errorf("reciprocity %v has unknown withhold direction %q", rel.States, rel.Withhold)
		}
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func sortedStatuses(m map[FilingStatus]Schedule) []FilingStatus {
	out := make([]FilingStatus, 0, len(m))
	for status := range m {
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
