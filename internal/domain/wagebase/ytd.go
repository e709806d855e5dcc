package wagebase

import "paycore/internal/domain/money"

// YTD is one employee's cumulative wage and withholding record for a tax
// year. Maps are keyed by state code, local code, "STATE:PROGRAM" for
// disability programs, or deferral cap reference.
type YTD struct {
	EmployeeID            string                 `json:"employeeId"`
	TaxYear               int                    `json:"taxYear"`
	Gross                 money.Money            `json:"gross"`
	SocialSecurityWages   money.Money            `json:"socialSecurityWages"`
	MedicareWages         money.Money            `json:"medicareWages"`
	FUTAWages             money.Money            `json:"futaWages"`
	SUTAWages             map[string]money.Money `json:"sutaWages,omitempty"`
	DisabilityWages       map[string]money.Money `json:"disabilityWages,omitempty"`
	FederalIncomeTax      money.Money            `json:"federalIncomeTax"`
	SocialSecurityTax     money.Money            `json:"socialSecurityTax"`
	MedicareTax           money.Money            `json:"medicareTax"`
	AdditionalMedicareTax money.Money            `json:"additionalMedicareTax"`
	StateIncomeTax        map[string]money.Money `json:"stateIncomeTax,omitempty"`
	LocalTax              map[string]money.Money `json:"localTax,omitempty"`
	Deferrals             map[string]money.Money `json:"deferrals,omitempty"`
	NetPay                money.Money            `json:"netPay"`
}

// NewYTD returns an empty record for the employee and year.
func NewYTD(employeeID string, taxYear int) YTD {
	return YTD{EmployeeID: employeeID, TaxYear: taxYear}
}

// ForYear returns the record to calculate against in taxYear. A record from a
// different year is reset rather than carried forward.
func (y YTD) ForYear(taxYear int) YTD {
	if y.TaxYear == taxYear {
		return y.Clone()
	}
	return NewYTD(y.EmployeeID, taxYear)
}

func (y YTD) Clone() YTD {
	out := y
	out.SUTAWages = cloneMap(y.SUTAWages)
	out.DisabilityWages = cloneMap(y.DisabilityWages)
	out.StateIncomeTax = cloneMap(y.StateIncomeTax)
	out.LocalTax = cloneMap(y.LocalTax)
	out.Deferrals = cloneMap(y.Deferrals)
	return out
}

// Delta returns after minus y field by field. It is what a committed
// paycheck added and what a reversal must subtract.
func (y YTD) Delta(after YTD) YTD {
	return combine(after, y, -1)
}

// Add applies a delta to the record.
func (y YTD) Add(delta YTD) YTD {
	return combine(y, delta, 1)
}

// Sub removes a delta from the record.
func (y YTD) Sub(delta YTD) YTD {
	return combine(y, delta, -1)
}

func (y YTD) SUTA(state string) money.Money {
	return y.SUTAWages[state]
}

func (y YTD) Disability(key string) money.Money {
	return y.DisabilityWages[key]
}

func (y YTD) Deferral(ref string) money.Money {
	return y.Deferrals[ref]
}

func combine(a, b YTD, sign money.Money) YTD {
	out := a.Clone()
	out.Gross += sign * b.Gross
	out.SocialSecurityWages += sign * b.SocialSecurityWages
	out.MedicareWages += sign * b.MedicareWages
	out.FUTAWages += sign * b.FUTAWages
	out.FederalIncomeTax += sign * b.FederalIncomeTax
	out.SocialSecurityTax += sign * b.SocialSecurityTax
	out.MedicareTax += sign * b.MedicareTax
	out.AdditionalMedicareTax += sign * b.AdditionalMedicareTax
	out.NetPay += sign * b.NetPay
	out.SUTAWages = combineMap(out.SUTAWages, b.SUTAWages, sign)
	out.DisabilityWages = combineMap(out.DisabilityWages, b.DisabilityWages, sign)
	out.StateIncomeTax = combineMap(out.StateIncomeTax, b.StateIncomeTax, sign)
	out.LocalTax = combineMap(out.LocalTax, b.LocalTax, sign)
	out.Deferrals = combineMap(out.Deferrals, b.Deferrals, sign)
	return out
}

func combineMap(dst, src map[string]money.Money, sign money.Money) map[string]money.Money {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]money.Money, len(src))
	}
	for k, v := range src {
		if next := dst[k] + sign*v; next != 0 {
			dst[k] = next
		} else {
			delete(dst, k)
		}
	}
	return dst
}

func cloneMap(m map[string]money.Money) map[string]money.Money {
	if m == nil {
		return nil
	}
	out := make(map[string]money.Money, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Increment adds amount under key, allocating the map on first use.
func Increment(m map[string]money.Money, key string, amount money.Money) map[string]money.Money {
	if amount == 0 {
		return m
	}
	if m == nil {
		m = make(map[string]money.Money)
	}
	m[key] += amount
	return m
}
