package garnishment

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"paycore/internal/domain/money"
	"paycore/internal/domain/taxrules"
)

var payDate = time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

func newEngine() *Engine {
	return NewEngine(taxrules.Rules2024().Garnishment)
}

func fixedOrder(id string, kind Kind, amount, balance money.Money) Order {
	return Order{
		ID:         id,
		Kind:       kind,
		Rule:       AmountRule{Kind: RuleFixed, Amount: amount},
		Balance:    balance,
		Status:     StatusActive,
		ReceivedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func weekly(disposable money.Money, orders ...Order) Input {
	return Input{Gross: disposable, Disposable: disposable, Frequency: taxrules.FrequencyWeekly, PayDate: payDate, Orders: orders}
}

func TestSupportCappedAtSixtyPercent(t *testing.T) {
	res, err := newEngine().Apply(weekly(money.Dollars(1000), fixedOrder("cs", KindChildSupport, money.Dollars(700), money.Dollars(5000))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Withholdings[0].Amount != money.Dollars(600) {
		t.Fatalf("expected 600.00 withheld, got %s", res.Withholdings[0].Amount)
	}
	if res.Orders[0].Balance != money.Dollars(4400) {
		t.Fatalf("expected balance 4400.00, got %s", res.Orders[0].Balance)
	}
}

func TestSupportTiers(t *testing.T) {
	cases := []struct {
		dependents, arrears bool
		want                money.Money
	}{
		{true, false, money.Dollars(500)},
		{true, true, money.Dollars(550)},
		{false, false, money.Dollars(600)},
		{false, true, money.Dollars(650)},
	}
	for _, tc := range cases {
		o := fixedOrder("cs", KindChildSupport, money.Dollars(900), money.Dollars(5000))
		o.HasOtherDependents, o.InArrears = tc.dependents, tc.arrears
		res, err := newEngine().Apply(weekly(money.Dollars(1000), o))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Total != tc.want {
			t.Fatalf("dependents=%v arrears=%v: expected %s, got %s", tc.dependents, tc.arrears, tc.want, res.Total)
		}
	}
}

func TestSupportDoesNotConsumeCCPABudget(t *testing.T) {
	res, err := newEngine().Apply(weekly(money.Dollars(1000),
		fixedOrder("cr", KindCreditor, money.Dollars(300), money.Dollars(9000)),
		fixedOrder("cs", KindChildSupport, money.Dollars(200), money.Dollars(9000)),
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Withholdings[0].OrderID != "cs" {
		t.Fatalf("expected support processed first, got %s", res.Withholdings[0].OrderID)
	}
	if res.Withholdings[0].Amount != money.Dollars(200) || res.Withholdings[1].Amount != money.Dollars(250) {
		t.Fatalf("expected 200.00 support and 250.00 creditor, got %+v", res.Withholdings)
	}
	if res.CCPAWithheld != money.Dollars(250) || res.Total != money.Dollars(450) {
		t.Fatalf("expected ccpa 250.00 and total 450.00, got %s and %s", res.CCPAWithheld, res.Total)
	}
}

func TestCCPACeiling(t *testing.T) {
	engine := newEngine()
	cases := []struct {
		disposable money.Money
		frequency  taxrules.Frequency
		want       money.Money
	}{
		{money.Dollars(1000), taxrules.FrequencyWeekly, money.Dollars(250)},
		{money.Dollars(250), taxrules.FrequencyWeekly, money.MustParse("32.50")},
		{money.Dollars(200), taxrules.FrequencyWeekly, 0},
		{money.Dollars(500), taxrules.FrequencyBiweekly, money.MustParse("65.00")},
		{money.MustParse("1000.03"), taxrules.FrequencyMonthly, money.MustParse("57.53")},
	}
	for _, tc := range cases {
		got, err := engine.CCPACeiling(tc.disposable, tc.frequency)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tc.want {
			t.Fatalf("%s %s: expected %s, got %s", tc.disposable, tc.frequency, tc.want, got)
		}
	}
}

func TestCCPAGovernedWithholdingNeverExceedsCeiling(t *testing.T) {
	engine := newEngine()
	for disposable := money.Dollars(0); disposable <= money.Dollars(4000); disposable += money.MustParse("137.77") {
		for _, frequency := range []taxrules.Frequency{taxrules.FrequencyWeekly, taxrules.FrequencyBiweekly, taxrules.FrequencySemimonthly, taxrules.FrequencyMonthly} {
			sl := Order{ID: "sl", Kind: KindStudentLoan, Rule: AmountRule{Kind: RulePercent, Percent: decimal.RequireFromString("0.15")}, OpenEnded: true, Status: StatusActive}
			res, err := engine.Apply(Input{
				Gross:      disposable,
				Disposable: disposable,
				Frequency:  frequency,
				PayDate:    payDate,
				Orders: []Order{
					fixedOrder("cs", KindChildSupport, money.Dollars(150), money.Dollars(100000)),
					fixedOrder("st", KindStateLevy, money.Dollars(400), money.Dollars(100000)),
					fixedOrder("bk", KindBankruptcy, money.Dollars(90), money.Dollars(100000)),
					sl,
					fixedOrder("cr", KindCreditor, money.Dollars(1000), money.Dollars(100000)),
				},
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var governed money.Money
			for _, w := range res.Withholdings {
				if w.Kind.CCPAGoverned() {
					governed += w.Amount
				}
				if w.Amount < 0 {
					t.Fatalf("negative withholding %+v", w)
				}
			}
			if governed > res.CCPACeiling {
				t.Fatalf("%s %s: governed %s exceeds ceiling %s", disposable, frequency, governed, res.CCPACeiling)
			}
			if res.Total > res.Disposable {
				t.Fatalf("%s %s: total %s exceeds disposable", disposable, frequency, res.Total)
			}
		}
	}
}

func TestFederalLevyExemptAmount(t *testing.T) {
	levy := fixedOrder("irs", KindFederalLevy, money.Dollars(5000), money.Dollars(5000))
	res, err := newEngine().Apply(Input{Gross: money.Dollars(1000), Disposable: money.Dollars(800), Frequency: taxrules.FrequencyWeekly, PayDate: payDate, Orders: []Order{levy}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 14600 / 52 = 280.769..., truncated withholding.
	if res.Total != money.MustParse("719.23") {
		t.Fatalf("expected levy 719.23, got %s", res.Total)
	}
	if res.CCPAWithheld != 0 {
		t.Fatal("federal levy must not use the CCPA budget")
	}

	levy.LevyExemptions = 3
	levy.LevyFilingStatus = taxrules.FilingMarriedJointly
	res, err = newEngine().Apply(Input{Gross: money.Dollars(500), Disposable: money.Dollars(450), Frequency: taxrules.FrequencyWeekly, PayDate: payDate, Orders: []Order{levy}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 0 {
		t.Fatalf("expected fully exempt wages, got %s", res.Total)
	}
}

func TestBalanceReachesSatisfiedOnce(t *testing.T) {
	engine := newEngine()
	order := fixedOrder("cr", KindCreditor, money.Dollars(200), money.Dollars(450))
	var statuses []Status
	var withheld money.Money
	for period := 0; period < 5; period++ {
		res, err := engine.Apply(weekly(money.Dollars(1000), order))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Orders[0].Balance > order.Balance {
			t.Fatal("balance increased")
		}
		if res.Orders[0].Balance != order.Balance-res.Total {
			t.Fatalf("expected balance to drop by %s", res.Total)
		}
		withheld += res.Total
		order = res.Orders[0]
		statuses = append(statuses, order.Status)
	}
	if withheld != money.Dollars(450) || order.Balance != 0 {
		t.Fatalf("expected 450.00 withheld and zero balance, got %s and %s", withheld, order.Balance)
	}
	if statuses[1] != StatusActive || statuses[2] != StatusSatisfied || statuses[4] != StatusSatisfied {
		t.Fatalf("unexpected status history %v", statuses)
	}
}

func TestOpenEndedOrderStaysActive(t *testing.T) {
	o := Order{ID: "cs", Kind: KindChildSupport, Rule: AmountRule{Kind: RuleFixed, Amount: money.Dollars(100)}, OpenEnded: true, Status: StatusActive}
	res, err := newEngine().Apply(weekly(money.Dollars(1000), o))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != money.Dollars(100) || res.Orders[0].Status != StatusActive {
		t.Fatalf("expected 100.00 and active order, got %s %s", res.Total, res.Orders[0].Status)
	}
}

func TestTieBreakByReceivedDate(t *testing.T) {
	early := fixedOrder("b-early", KindCreditor, money.Dollars(200), money.Dollars(1000))
	late := fixedOrder("a-late", KindMedical, money.Dollars(200), money.Dollars(1000))
	late.ReceivedAt = early.ReceivedAt.AddDate(0, 1, 0)

	res, err := newEngine().Apply(weekly(money.Dollars(1000), late, early))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Withholdings[0].OrderID != "b-early" || res.Withholdings[0].Amount != money.Dollars(200) || res.Withholdings[1].Amount != money.Dollars(50) {
		t.Fatalf("expected earlier order first, got %+v", res.Withholdings)
	}
	if res.Orders[0].ID != "a-late" {
		t.Fatal("expected orders returned in input order")
	}
}

func TestFloorLeavesNothingWithWarning(t *testing.T) {
	res, err := newEngine().Apply(weekly(money.Dollars(200), fixedOrder("cr", KindCreditor, money.Dollars(50), money.Dollars(1000))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 0 {
		t.Fatalf("expected nothing withheld, got %s", res.Total)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Code() != "insufficient_disposable_income" {
		t.Fatalf("expected insufficient disposable warning, got %+v", res.Warnings)
	}
}

func TestSkipsSuspendedAndOutOfWindowOrders(t *testing.T) {
	suspended := fixedOrder("s", KindCreditor, money.Dollars(50), money.Dollars(1000))
	suspended.Status = StatusSuspended
	future := fixedOrder("f", KindCreditor, money.Dollars(50), money.Dollars(1000))
	future.EffectiveFrom = payDate.AddDate(0, 0, 1)
	expired := fixedOrder("x", KindCreditor, money.Dollars(50), money.Dollars(1000))
	expired.EffectiveTo = payDate.AddDate(0, 0, -1)

	res, err := newEngine().Apply(weekly(money.Dollars(1000), suspended, future, expired))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Withholdings) != 0 {
		t.Fatalf("expected no withholding, got %+v", res.Withholdings)
	}
}

func TestFormulaRule(t *testing.T) {
	rule := AmountRule{Kind: RuleFormula, Amount: money.Dollars(10), Percent: decimal.RequireFromString("0.1"), Threshold: money.Dollars(500)}
	if got := rule.Requested(money.MustParse("1000.09")); got != money.MustParse("60.00") {
		t.Fatalf("expected 60.00, got %s", got)
	}
	if got := rule.Requested(money.Dollars(400)); got != money.Dollars(10) {
		t.Fatalf("expected 10.00 below threshold, got %s", got)
	}
}

func TestTransition(t *testing.T) {
	o := fixedOrder("o", KindCreditor, 0, money.Dollars(10))
	if err := Transition(&o, StatusActive, StatusSuspended); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Transition(&o, StatusSuspended, StatusActive); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Transition(&o, StatusSuspended, StatusActive); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected stale from status to fail, got %v", err)
	}
	if err := Transition(&o, StatusActive, StatusTerminated); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Transition(&o, StatusTerminated, StatusActive); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected terminal status to be final, got %v", err)
	}
}

func TestApplyRejectsInvalidOrders(t *testing.T) {
	bad := fixedOrder("bad", Kind("alimony"), money.Dollars(1), money.Dollars(1))
	if _, err := newEngine().Apply(weekly(money.Dollars(1000), bad)); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}
}

func TestCombinedSupportCap(t *testing.T) {
	res, err := newEngine().Apply(weekly(money.Dollars(1000),
		fixedOrder("cs-1", KindChildSupport, money.Dollars(600), money.Dollars(9000)),
		fixedOrder("cs-2", KindChildSupport, money.Dollars(600), money.Dollars(9000)),
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != money.Dollars(600) {
		t.Fatalf("expected support orders to share the 600.00 cap, got %s", res.Total)
	}
	if res.Withholdings[0].Amount != money.Dollars(600) || res.Withholdings[1].Amount != 0 {
		t.Fatalf("unexpected withholdings %+v", res.Withholdings)
	}
	if res.Withholdings[1].Cap != 0 {
		t.Fatalf("expected exhausted cap for second order, got %s", res.Withholdings[1].Cap)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected an insufficient disposable warning, got %+v", res.Warnings)
	}
}

func TestCombinedSupportCapMixedTiers(t *testing.T) {
	arrears := fixedOrder("cs-1", KindChildSupport, money.Dollars(500), money.Dollars(9000))
	arrears.InArrears = true
	current := fixedOrder("cs-2", KindChildSupport, money.Dollars(300), money.Dollars(9000))
	current.ReceivedAt = arrears.ReceivedAt.AddDate(0, 1, 0)

	res, err := newEngine().Apply(weekly(money.Dollars(1000), arrears, current))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 500.00 taken under the 65% tier leaves 100.00 of the 60% tier.
	if res.Withholdings[1].Amount != money.Dollars(100) || res.Total != money.Dollars(600) {
		t.Fatalf("unexpected withholdings %+v", res.Withholdings)
	}
}

func TestLevyAfterSupportIsBoundedByRemainingDisposable(t *testing.T) {
	res, err := newEngine().Apply(weekly(money.Dollars(1000),
		fixedOrder("levy", KindFederalLevy, money.Dollars(1000), money.Dollars(9000)),
		fixedOrder("cs", KindChildSupport, money.Dollars(600), money.Dollars(9000)),
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Withholdings[0].OrderID != "cs" || res.Withholdings[0].Amount != money.Dollars(600) {
		t.Fatalf("expected support first at 600.00, got %+v", res.Withholdings[0])
	}
	if res.Withholdings[1].Amount != money.Dollars(400) || res.Total != money.Dollars(1000) {
		t.Fatalf("expected levy limited to the remaining 400.00, got %+v", res.Withholdings[1])
	}
	if res.CCPAWithheld != 0 {
		t.Fatalf("expected no CCPA budget used, got %s", res.CCPAWithheld)
	}
}
