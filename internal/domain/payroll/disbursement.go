package payroll

import (
	"context"
	"fmt"

	"paycore/internal/domain/money"
)

// PrimaryAccount receives net pay when an employee has no split rules.
const PrimaryAccount = "primary"

type Allocation struct {
	AccountRef string      `json:"accountRef"`
	Amount     money.Money `json:"amount"`
}

// Disbursement is the ACH hand-off for one employee. Account numbers never
// appear here; AccountRef is resolved by the encoder.
type Disbursement struct {
	EmployeeID  string       `json:"employeeId"`
	NetPay      money.Money  `json:"netPay"`
	Allocations []Allocation `json:"allocations"`
}

// Split divides net pay across the split rules in order. Fixed amounts and
// percentages are truncated to the cent and never exceed what is left; the
// remainder account, or the last account when there is none, receives the
// rest so the allocations always sum to net.
func Split(net money.Money, rules []SplitRule) []Allocation {
	if net <= 0 {
		return nil
	}
	if len(rules) == 0 {
		return []Allocation{{AccountRef: PrimaryAccount, Amount: net}}
	}

	allocations := make([]Allocation, 0, len(rules))
	remainderAt := -1
	left := net
	for _, rule := range rules {
		var amount money.Money
		switch rule.Kind {
		case SplitFixed:
			amount = money.Min(rule.Amount.NonNegative(), left)
		case SplitPercent:
			amount = money.Min(net.MulRate(rule.Percent, money.Down), left)
		case SplitRemainder:
			remainderAt = len(allocations)
		}
		left -= amount
		allocations = append(allocations, Allocation{AccountRef: rule.AccountRef, Amount: amount})
	}
	if left > 0 {
		if remainderAt < 0 {
			remainderAt = len(allocations) - 1
		}
		allocations[remainderAt].Amount += left
	}

	out := allocations[:0]
	for _, a := range allocations {
		if a.Amount > 0 {
			out = append(out, a)
		}
	}
	return out
}

// Disbursements builds the ACH hand-off for every committed paycheck of a
// finished run.
func (s *Service) Disbursements(ctx context.Context, tenantID, runID string) ([]Disbursement, error) {
	run, err := s.store.GetRun(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != RunStatusCompleted && run.Status != RunStatusCompletedWithErrors {
		return nil, fmt.Errorf("%w: run %s is %s", ErrInvalidTransition, run.ID, run.Status)
	}
	var out []Disbursement
	for _, p := range run.Paychecks {
		if p.Status != PaycheckCommitted {
			continue
		}
		out = append(out, Disbursement{
			EmployeeID:  p.EmployeeID,
			NetPay:      p.Net,
			Allocations: Split(p.Net, p.BankSplits),
		})
	}
	return out, nil
}
