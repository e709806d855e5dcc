package statelocal

import (
	"errors"
	"testing"

	"paycore/internal/domain/money"
	"paycore/internal/domain/taxrules"
	"paycore/internal/domain/wagebase"
)

func newCalculator(rules *taxrules.RuleSet) *Calculator {
	return NewCalculator(rules, wagebase.NewTracker(rules), money.HalfUp)
}

func wages(amount money.Money) Wages {
	return Wages{IncomeTax: amount, Disability: amount, SUTA: amount}
}

func TestCalculateFlatStateWithLocal(t *testing.T) {
	calc := newCalculator(taxrules.Rules2024())
	ytd := wagebase.NewYTD("e1", 2024)
	ytd.SUTAWages = map[string]money.Money{"PA": money.Dollars(9500)}

	res, err := calc.Calculate(Profile{
		WorkState:      "PA",
		ResidenceState: "PA",
		Locals:         []LocalAssignment{{Code: "PHILADELPHIA", Resident: true}},
	}, wages(money.Dollars(2000)), taxrules.FrequencyBiweekly, ytd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Income) != 1 || res.Income[0].Amount != money.MustParse("61.40") {
		t.Fatalf("expected PA tax 61.40, got %+v", res.Income)
	}
	if res.SUTA.Taxable != money.Dollars(500) || res.SUTA.Amount != money.MustParse("19.11") {
		t.Fatalf("expected SUTA 19.11 on 500.00, got %+v", res.SUTA)
	}
	if len(res.Local) != 1 || res.Local[0].Amount != money.Dollars(75) {
		t.Fatalf("expected resident wage tax 75.00, got %+v", res.Local)
	}
	if len(res.Disability) != 1 || res.Disability[0].Jurisdiction != "PA:UC" {
		t.Fatalf("expected PA:UC program, got %+v", res.Disability)
	}
}

func TestCalculateNonResidentLocal(t *testing.T) {
	calc := newCalculator(taxrules.Rules2024())
	res, err := calc.Calculate(Profile{
		WorkState: "PA",
		Locals:    []LocalAssignment{{Code: "philadelphia"}},
	}, wages(money.Dollars(2000)), taxrules.FrequencyBiweekly, wagebase.NewYTD("e1", 2024))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Local[0].Amount != money.MustParse("68.80") {
		t.Fatalf("expected non-resident rate 68.80, got %s", res.Local[0].Amount)
	}

	res, err = calc.Calculate(Profile{
		WorkState: "NY",
		Locals:    []LocalAssignment{{Code: "NYC"}},
	}, wages(money.Dollars(2000)), taxrules.FrequencyBiweekly, wagebase.NewYTD("e1", 2024))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Local) != 0 {
		t.Fatalf("expected no NYC tax for non-residents, got %+v", res.Local)
	}
}

func TestReciprocityWithholdsOneState(t *testing.T) {
	calc := newCalculator(taxrules.Rules2024())
	res, err := calc.Calculate(Profile{WorkState: "PA", ResidenceState: "NJ"}, wages(money.Dollars(2000)), taxrules.FrequencyBiweekly, wagebase.NewYTD("e1", 2024))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Income) != 1 || res.Income[0].Jurisdiction != "PA" {
		t.Fatalf("expected only PA withheld, got %+v", res.Income)
	}
}

func TestReciprocityResidenceDirection(t *testing.T) {
	rules := taxrules.Rules2024()
	rules.Reciprocity = []taxrules.Reciprocity{{States: [2]string{"NJ", "PA"}, Withhold: taxrules.WithholdResidenceState}}
	calc := newCalculator(rules)
	if got := calc.WithheldStates("PA", "NJ"); len(got) != 1 || got[0] != "NJ" {
		t.Fatalf("expected NJ withheld, got %v", got)
	}
}

func TestNoReciprocityWithholdsBothStates(t *testing.T) {
	calc := newCalculator(taxrules.Rules2024())
	res, err := calc.Calculate(Profile{WorkState: "NY", ResidenceState: "NJ"}, wages(money.Dollars(3000)), taxrules.FrequencyBiweekly, wagebase.NewYTD("e1", 2024))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Income) != 2 || res.Income[0].Jurisdiction != "NY" || res.Income[1].Jurisdiction != "NJ" {
		t.Fatalf("expected NY and NJ withheld, got %+v", res.Income)
	}
	for _, w := range res.Income {
		if w.Amount <= 0 {
			t.Fatalf("expected positive %s withholding, got %s", w.Jurisdiction, w.Amount)
		}
	}
	if res.SUTA.Jurisdiction != "NY" {
		t.Fatalf("expected SUTA in work state, got %s", res.SUTA.Jurisdiction)
	}
}

func TestNoIncomeTaxState(t *testing.T) {
	calc := newCalculator(taxrules.Rules2024())
	res, err := calc.Calculate(Profile{WorkState: "TX", ExtraWithholding: money.Dollars(20)}, wages(money.Dollars(2000)), taxrules.FrequencyBiweekly, wagebase.NewYTD("e1", 2024))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EmployeeTotal() != 0 {
		t.Fatalf("expected no employee state tax in TX, got %s", res.EmployeeTotal())
	}
	if res.EmployerTotal() == 0 {
		t.Fatal("expected TX SUTA")
	}
}

func TestDisabilityWageBase(t *testing.T) {
	calc := newCalculator(taxrules.Rules2024())
	ytd := wagebase.NewYTD("e1", 2024)
	ytd.DisabilityWages = map[string]money.Money{"NY:PFL": money.Dollars(89000)}

	res, err := calc.Calculate(Profile{WorkState: "NY"}, wages(money.Dollars(1000)), taxrules.FrequencyWeekly, ytd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pfl := res.Disability[0]
	if pfl.Taxable != money.MustParse("343.18") || pfl.Amount != money.MustParse("1.28") {
		t.Fatalf("expected PFL 1.28 on 343.18, got %+v", pfl)
	}

	res.Post(&ytd)
	if ytd.Disability("NY:PFL") != money.MustParse("89343.18") {
		t.Fatalf("expected PFL wages at the base, got %s", ytd.Disability("NY:PFL"))
	}
}

func TestCaliforniaSDIUncapped(t *testing.T) {
	calc := newCalculator(taxrules.Rules2024())
	ytd := wagebase.NewYTD("e1", 2024)
	ytd.DisabilityWages = map[string]money.Money{"CA:SDI": money.Dollars(400000)}
	res, err := calc.Calculate(Profile{WorkState: "CA"}, wages(money.Dollars(2000)), taxrules.FrequencyBiweekly, ytd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Disability[0].Amount != money.Dollars(22) {
		t.Fatalf("expected SDI 22.00, got %s", res.Disability[0].Amount)
	}
}

func TestExemptSkipsIncomeTaxOnly(t *testing.T) {
	calc := newCalculator(taxrules.Rules2024())
	res, err := calc.Calculate(Profile{WorkState: "CA", Exempt: true}, wages(money.Dollars(2000)), taxrules.FrequencyBiweekly, wagebase.NewYTD("e1", 2024))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Income[0].Amount != 0 {
		t.Fatalf("expected no CA income tax, got %s", res.Income[0].Amount)
	}
	if res.Disability[0].Amount == 0 {
		t.Fatal("expected SDI to still apply")
	}
}

func TestUnknownJurisdiction(t *testing.T) {
	calc := newCalculator(taxrules.Rules2024())
	cases := []Profile{
		{WorkState: "ZZ"},
		{WorkState: "PA", ResidenceState: "ZZ"},
		{WorkState: "PA", Locals: []LocalAssignment{{Code: "GOTHAM"}}},
	}
	for _, profile := range cases {
		_, err := calc.Calculate(profile, wages(money.Dollars(100)), taxrules.FrequencyWeekly, wagebase.NewYTD("e1", 2024))
		if !errors.Is(err, taxrules.ErrUnknownJurisdiction) {
			t.Fatalf("%+v: expected ErrUnknownJurisdiction, got %v", profile, err)
		}
	}
}

func TestGraduatedStateIsMonotonic(t *testing.T) {
	calc := newCalculator(taxrules.Rules2024())
	var previous money.Money
	for gross := money.Dollars(0); gross <= money.Dollars(20000); gross += money.MustParse("250.50") {
		res, err := calc.Calculate(Profile{WorkState: "CA"}, wages(gross), taxrules.FrequencyBiweekly, wagebase.NewYTD("e1", 2024))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Income[0].Amount < previous {
			t.Fatalf("state tax decreased at %s", gross)
		}
		previous = res.Income[0].Amount
	}
}
