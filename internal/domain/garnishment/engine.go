package garnishment

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"paycore/internal/domain/money"
	"paycore/internal/domain/taxrules"
)

// InsufficientDisposableWarning records an order that legitimately withheld
// nothing this period, for example because disposable earnings sit below the
// minimum-wage floor.
type InsufficientDisposableWarning struct {
	OrderID    string      `json:"orderId"`
	Requested  money.Money `json:"requested"`
	Disposable money.Money `json:"disposable"`
}

func (w InsufficientDisposableWarning) Code() string {
	return "insufficient_disposable_income"
}

func (w InsufficientDisposableWarning) Message() string {
	return fmt.Sprintf("garnishment %s withheld nothing: requested %s against disposable earnings %s", w.OrderID, w.Requested, w.Disposable)
}

// Withholding is one order's outcome for the period.
type Withholding struct {
	OrderID       string      `json:"orderId"`
	Kind          Kind        `json:"kind"`
	Priority      int         `json:"priority"`
	CaseRef       string      `json:"caseRef"`
	Payee         string      `json:"payee"`
	Requested     money.Money `json:"requested"`
	Cap           money.Money `json:"cap"`
	Amount        money.Money `json:"amount"`
	BalanceBefore money.Money `json:"balanceBefore"`
	BalanceAfter  money.Money `json:"balanceAfter"`
	Status        Status      `json:"status"`
}

type Input struct {
	Gross      money.Money
	Disposable money.Money
	Frequency  taxrules.Frequency
	PayDate    time.Time
	Orders     []Order
}

type Result struct {
	Disposable   money.Money   `json:"disposable"`
	CCPACeiling  money.Money   `json:"ccpaCeiling"`
	CCPAWithheld money.Money   `json:"ccpaWithheld"`
	Withholdings []Withholding `json:"withholdings,omitempty"`
	Total        money.Money   `json:"total"`
	// Orders holds every input order with this period's balance and status
	// applied, in input order.
	Orders   []Order                         `json:"orders"`
	Warnings []InsufficientDisposableWarning `json:"warnings,omitempty"`
}

type Engine struct {
	rules taxrules.Garnishment
}

func NewEngine(rules taxrules.Garnishment) *Engine {
	return &Engine{rules: rules}
}

// Disposable is gross pay less legally required withholding.
func Disposable(gross, taxes, mandatory money.Money) money.Money {
	return (gross - taxes - mandatory).NonNegative()
}

// CCPACeiling is min(25% of disposable, disposable above the minimum-wage
// floor for the pay frequency), truncated to the cent.
func (e *Engine) CCPACeiling(disposable money.Money, frequency taxrules.Frequency) (money.Money, error) {
	hours, ok := e.rules.FloorHours[frequency]
	if !ok {
		return 0, fmt.Errorf("no garnishment floor for pay frequency %q", frequency)
	}
	disposable = disposable.NonNegative()
	floor := e.rules.MinimumWage.Decimal().Mul(hours)
	aboveFloor := disposable.Decimal().Sub(floor)
	if aboveFloor.IsNegative() {
		aboveFloor = decimal.Zero
	}
	percent := disposable.MulRate(e.rules.CCPAPercent, money.Down)
	return money.Min(percent, money.Down.Round(aboveFloor)), nil
}

// Apply withholds active orders in priority order. It is pure: updated
// balances and statuses come back on Result.Orders.
func (e *Engine) Apply(in Input) (Result, error) {
	ceiling, err := e.CCPACeiling(in.Disposable, in.Frequency)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Disposable:  in.Disposable.NonNegative(),
		CCPACeiling: ceiling,
		Orders:      make([]Order, len(in.Orders)),
	}
	copy(res.Orders, in.Orders)

	due := make([]int, 0, len(res.Orders))
	for i, o := range res.Orders {
		if err := o.Validate(); err != nil {
			return Result{}, err
		}
		if o.Status == StatusActive && o.EffectiveOn(in.PayDate) {
			due = append(due, i)
		}
	}
	sort.SliceStable(due, func(a, b int) bool {
		x, y := res.Orders[due[a]], res.Orders[due[b]]
		px, _ := x.Kind.Priority()
		py, _ := y.Kind.Priority()
		if px != py {
			return px < py
		}
		if !x.ReceivedAt.Equal(y.ReceivedAt) {
			return x.ReceivedAt.Before(y.ReceivedAt)
		}
		return x.ID < y.ID
	})

	remaining := res.Disposable
	var supportWithheld money.Money
	for _, idx := range due {
		order := &res.Orders[idx]
		if !order.OpenEnded && order.Balance == 0 {
			if err := Transition(order, StatusActive, StatusSatisfied); err != nil {
				return Result{}, err
			}
			continue
		}
		priority, _ := order.Kind.Priority()
		requested := order.Rule.Requested(res.Disposable)
		limit, err := e.statutoryCap(*order, in, res.Disposable, ceiling-res.CCPAWithheld, supportWithheld)
		if err != nil {
			return Result{}, err
		}

		amount := money.Min(money.Min(limit, requested), remaining).NonNegative()
		if !order.OpenEnded {
			amount = money.Min(amount, order.Balance)
		}

		w := Withholding{
			OrderID:       order.ID,
			Kind:          order.Kind,
			Priority:      priority,
			CaseRef:       order.CaseRef,
			Payee:         order.Payee,
			Requested:     requested,
			Cap:           limit,
			Amount:        amount,
			BalanceBefore: order.Balance,
		}
		if !order.OpenEnded {
			order.Balance -= amount
			if order.Balance == 0 {
				if err := Transition(order, StatusActive, StatusSatisfied); err != nil {
					return Result{}, err
				}
			}
		}
		w.BalanceAfter = order.Balance
		w.Status = order.Status

		if amount == 0 && requested > 0 {
			res.Warnings = append(res.Warnings, InsufficientDisposableWarning{
				OrderID:    order.ID,
				Requested:  requested,
				Disposable: res.Disposable,
			})
		}
		if order.Kind.CCPAGoverned() {
			res.CCPAWithheld += amount
		}
		if order.Kind == KindChildSupport {
			supportWithheld += amount
		}
		remaining -= amount
		res.Total += amount
		res.Withholdings = append(res.Withholdings, w)
	}
	return res, nil
}

// statutoryCap returns the order's statutory limit for the period. ccpaLeft is the
// CCPA budget not yet used by earlier governed orders. The support percentage
// limits all support orders together, so supportWithheld is charged against it.
func (e *Engine) statutoryCap(o Order, in Input, disposable, ccpaLeft, supportWithheld money.Money) (money.Money, error) {
	ccpaLeft = ccpaLeft.NonNegative()
	switch o.Kind {
	case KindChildSupport:
		tierCap := disposable.MulRate(e.rules.Support.For(o.HasOtherDependents, o.InArrears), money.Down)
		return (tierCap - supportWithheld).NonNegative(), nil
	case KindFederalLevy:
		return e.levyCap(o, in.Gross, in.Frequency)
	case KindStudentLoan:
		return money.Min(disposable.MulRate(e.rules.StudentLoanPercent, money.Down), ccpaLeft), nil
	case KindStateLevy, KindBankruptcy, KindCreditor, KindMedical, KindOther:
		return ccpaLeft, nil
	default:
		return 0, fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidOrder, o.ID, o.Kind)
	}
}

// levyCap is gross pay less the exempt amount for the taxpayer's filing
// status and exemptions, prorated to the pay period.
func (e *Engine) levyCap(o Order, gross money.Money, frequency taxrules.Frequency) (money.Money, error) {
	periods := frequency.PeriodsPerYear()
	if periods == 0 {
		return 0, fmt.Errorf("unsupported pay frequency %q", frequency)
	}
	status := o.LevyFilingStatus
	if status == "" {
		status = taxrules.FilingSingle
	}
	std, ok := e.rules.Levy.StandardDeduction[status]
	if !ok {
		return 0, fmt.Errorf("%w: %q for levy exemption", taxrules.ErrUnsupportedFilingStatus, status)
	}
	annual := std.Decimal().Add(e.rules.Levy.PerExemption.Decimal().Mul(decimal.NewFromInt(int64(o.LevyExemptions))))
	exempt := annual.Div(decimal.NewFromInt(periods))
	levy := gross.Decimal().Sub(exempt)
	if levy.IsNegative() {
		return 0, nil
	}
	return money.Down.Round(levy), nil
}
