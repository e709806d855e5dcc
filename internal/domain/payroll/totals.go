package payroll

import (
	"sort"

	"paycore/internal/domain/money"
	"paycore/internal/domain/taxrules"
)

// ComputeTotals sums committed paychecks. The result does not depend on the
// order of the paychecks.
func ComputeTotals(paychecks []Paycheck) PayrollRunTotals {
	var totals PayrollRunTotals
	type key struct{ jurisdiction, tax string }
	byJurisdiction := map[key]*JurisdictionTotal{}

	for _, p := range paychecks {
		if p.Status != PaycheckCommitted {
			continue
		}
		totals.EmployeeCount++
		totals.Gross += p.Gross
		totals.EmployeeTaxes += p.EmployeeTaxes
		totals.EmployerTaxes += p.EmployerTaxes
		totals.Deductions += p.PreTaxTotal + p.PostTaxTotal
		totals.Garnishments += p.GarnishmentTotal
		totals.Net += p.Net

		for _, line := range p.TaxLines {
			k := key{line.Jurisdiction, line.Tax}
			entry, ok := byJurisdiction[k]
			if !ok {
				entry = &JurisdictionTotal{Jurisdiction: line.Jurisdiction, Tax: line.Tax}
				byJurisdiction[k] = entry
			}
			if line.Party == taxrules.PartyEmployer {
				entry.Employer += line.Amount
			} else {
				entry.Employee += line.Amount
			}
		}
	}

	for _, entry := range byJurisdiction {
		totals.ByJurisdiction = append(totals.ByJurisdiction, *entry)
	}
	sort.Slice(totals.ByJurisdiction, func(i, j int) bool {
		a, b := totals.ByJurisdiction[i], totals.ByJurisdiction[j]
		if a.Jurisdiction != b.Jurisdiction {
			return a.Jurisdiction < b.Jurisdiction
		}
		return a.Tax < b.Tax
	})
	return totals
}

// Ledger returns the keyed amounts consumed by the journal poster.
func (t PayrollRunTotals) Ledger() map[string]money.Money {
	ledger := map[string]money.Money{
		"gross":          t.Gross,
		"employee_taxes": t.EmployeeTaxes,
		"employer_taxes": t.EmployerTaxes,
		"deductions":     t.Deductions,
		"garnishments":   t.Garnishments,
		"net":            t.Net,
	}
	for _, j := range t.ByJurisdiction {
		prefix := "tax:" + j.Jurisdiction + ":" + j.Tax
		if j.Employee != 0 {
			ledger[prefix+":employee"] = j.Employee
		}
		if j.Employer != 0 {
			ledger[prefix+":employer"] = j.Employer
		}
	}
	return ledger
}
