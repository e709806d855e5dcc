package taxrules

import (
	"github.com/shopspring/decimal"

	"paycore/internal/domain/money"
)

// Rules2024 returns the compiled-in 2024 tables.
func Rules2024() *RuleSet {
	single := sched("11600", "0.10", "47150", "0.12", "100525", "0.22", "191950", "0.24", "243725", "0.32", "609350", "0.35", "", "0.37")
	std := map[FilingStatus]money.Money{
		FilingSingle:            usd("14600"),
		FilingMarriedJointly:    usd("29200"),
		FilingMarriedSeparately: usd("14600"),
		FilingHeadOfHousehold:   usd("21900"),
	}
	return &RuleSet{
		Year:    2024,
		Version: "2024.1",
		Federal: Federal{
			Schedules: map[FilingStatus]Schedule{
				FilingSingle:            single,
				FilingMarriedJointly:    sched("23200", "0.10", "94300", "0.12", "201050", "0.22", "383900", "0.24", "487450", "0.32", "731200", "0.35", "", "0.37"),
				FilingMarriedSeparately: sched("11600", "0.10", "47150", "0.12", "100525", "0.22", "191950", "0.24", "243725", "0.32", "365600", "0.35", "", "0.37"),
				FilingHeadOfHousehold:   sched("16550", "0.10", "63100", "0.12", "100500", "0.22", "191950", "0.24", "243700", "0.32", "609350", "0.35", "", "0.37"),
			},
			StandardDeduction: std,
			SocialSecurity:    CappedRate{Rate: rate("0.062"), WageBase: usd("168600")},
			Medicare:          Medicare{Rate: rate("0.0145"), AdditionalRate: rate("0.009"), AdditionalThreshold: usd("200000")},
			FUTA:              CappedRate{Rate: rate("0.006"), WageBase: usd("7000")},
		},
		States:      states2024(),
		Locals:      locals2024(),
		Reciprocity: reciprocity(),
		Deferrals: map[string]money.Money{
			"402g":           usd("23000"),
			"hsa_self":       usd("4150"),
			"hsa_family":     usd("8300"),
			"fsa_health":     usd("3200"),
			"dependent_care": usd("5000"),
		},
		Garnishment: garnishment(std, usd("5050")),
	}
}

// Rules2025 returns the compiled-in 2025 tables. State tables carry the 2024
// values until the states publish theirs.
func Rules2025() *RuleSet {
	std := map[FilingStatus]money.Money{
		FilingSingle:            usd("15000"),
		FilingMarriedJointly:    usd("30000"),
		FilingMarriedSeparately: usd("15000"),
		FilingHeadOfHousehold:   usd("22500"),
	}
	return &RuleSet{
		Year:    2025,
		Version: "2025.1",
		Federal: Federal{
			Schedules: map[FilingStatus]Schedule{
				FilingSingle:            sched("11925", "0.10", "48475", "0.12", "103350", "0.22", "197300", "0.24", "250525", "0.32", "626350", "0.35", "", "0.37"),
				FilingMarriedJointly:    sched("23850", "0.10", "96950", "0.12", "206700", "0.22", "394600", "0.24", "501050", "0.32", "751600", "0.35", "", "0.37"),
				FilingMarriedSeparately: sched("11925", "0.10", "48475", "0.12", "103350", "0.22", "197300", "0.24", "250525", "0.32", "375800", "0.35", "", "0.37"),
				FilingHeadOfHousehold:   sched("17000", "0.10", "64850", "0.12", "103350", "0.22", "197300", "0.24", "250500", "0.32", "626350", "0.35", "", "0.37"),
			},
			StandardDeduction: std,
			SocialSecurity:    CappedRate{Rate: rate("0.062"), WageBase: usd("176100")},
			Medicare:          Medicare{Rate: rate("0.0145"), AdditionalRate: rate("0.009"), AdditionalThreshold: usd("200000")},
			FUTA:              CappedRate{Rate: rate("0.006"), WageBase: usd("7000")},
		},
		States:      states2024(),
		Locals:      locals2024(),
		Reciprocity: reciprocity(),
		Deferrals: map[string]money.Money{
			"402g":           usd("23500"),
			"hsa_self":       usd("4300"),
			"hsa_family":     usd("8550"),
			"fsa_health":     usd("3300"),
			"dependent_care": usd("5000"),
		},
		Garnishment: garnishment(std, usd("5200")),
	}
}

func states2024() map[string]State {
	return map[string]State{
		"TX": {Code: "TX", TaxType: TaxNone, SUTA: CappedRate{Rate: rate("0.027"), WageBase: usd("9000")}},
		"FL": {Code: "FL", TaxType: TaxNone, SUTA: CappedRate{Rate: rate("0.027"), WageBase: usd("7000")}},
		"PA": {
			Code: "PA", TaxType: TaxFlat, FlatRate: rate("0.0307"),
			Disability: []Disability{{Program: "UC", CappedRate: CappedRate{Rate: rate("0.0007")}}},
			SUTA:       CappedRate{Rate: rate("0.03822"), WageBase: usd("10000")},
		},
		"IL": {
			Code: "IL", TaxType: TaxFlat, FlatRate: rate("0.0495"),
			StandardDeduction: map[FilingStatus]money.Money{FilingSingle: usd("2775")},
			SUTA:              CappedRate{Rate: rate("0.0395"), WageBase: usd("13590")},
		},
		"IN": {
			Code: "IN", TaxType: TaxFlat, FlatRate: rate("0.0305"),
			StandardDeduction: map[FilingStatus]money.Money{FilingSingle: usd("1000")},
			SUTA:              CappedRate{Rate: rate("0.025"), WageBase: usd("9500")},
		},
		"KY": {
			Code: "KY", TaxType: TaxFlat, FlatRate: rate("0.04"),
			StandardDeduction: map[FilingStatus]money.Money{FilingSingle: usd("3160")},
			SUTA:              CappedRate{Rate: rate("0.027"), WageBase: usd("11400")},
		},
		"WI": {
			Code: "WI", TaxType: TaxGraduated,
			Schedules: map[FilingStatus]Schedule{
				FilingSingle:         sched("14320", "0.035", "28640", "0.044", "315310", "0.053", "", "0.0765"),
				FilingMarriedJointly: sched("19090", "0.035", "38190", "0.044", "420420", "0.053", "", "0.0765"),
			},
			SUTA: CappedRate{Rate: rate("0.0305"), WageBase: usd("14000")},
		},
		"CA": {
			Code: "CA", TaxType: TaxGraduated,
			Schedules: map[FilingStatus]Schedule{
				FilingSingle:         sched("10756", "0.01", "25499", "0.02", "40245", "0.04", "55866", "0.06", "70606", "0.08", "360659", "0.093", "432787", "0.103", "721314", "0.113", "", "0.123"),
				FilingMarriedJointly: sched("21512", "0.01", "50998", "0.02", "80490", "0.04", "111732", "0.06", "141212", "0.08", "721318", "0.093", "865574", "0.103", "1442628", "0.113", "", "0.123"),
			},
			StandardDeduction: map[FilingStatus]money.Money{FilingSingle: usd("5540"), FilingMarriedJointly: usd("11080")},
			Disability:        []Disability{{Program: "SDI", CappedRate: CappedRate{Rate: rate("0.011")}}},
			SUTA:              CappedRate{Rate: rate("0.034"), WageBase: usd("7000")},
		},
		"NY": {
			Code: "NY", TaxType: TaxGraduated,
			Schedules: map[FilingStatus]Schedule{
				FilingSingle: sched("8500", "0.04", "11700", "0.045", "13900", "0.0525", "80650", "0.055", "215400", "0.06", "1077550", "0.0685", "5000000", "0.0965", "25000000", "0.103", "", "0.109"),
			},
			StandardDeduction: map[FilingStatus]money.Money{FilingSingle: usd("8000"), FilingMarriedJointly: usd("16050")},
			Disability:        []Disability{{Program: "PFL", CappedRate: CappedRate{Rate: rate("0.00373"), WageBase: usd("89343.18")}}},
			SUTA:              CappedRate{Rate: rate("0.041"), WageBase: usd("12500")},
		},
		"NJ": {
			Code: "NJ", TaxType: TaxGraduated,
			Schedules: map[FilingStatus]Schedule{
				FilingSingle: sched("20000", "0.014", "35000", "0.0175", "40000", "0.035", "75000", "0.05525", "500000", "0.0637", "1000000", "0.0897", "", "0.1075"),
			},
			StandardDeduction: map[FilingStatus]money.Money{FilingSingle: usd("1000")},
			Disability: []Disability{
				{Program: "TDI", CappedRate: CappedRate{Rate: rate("0.0009"), WageBase: usd("161400")}},
				{Program: "FLI", CappedRate: CappedRate{Rate: rate("0.0009"), WageBase: usd("161400")}},
				{Program: "UI", CappedRate: CappedRate{Rate: rate("0.00425"), WageBase: usd("42300")}},
			},
			SUTA: CappedRate{Rate: rate("0.028"), WageBase: usd("42300")},
		},
	}
}

func locals2024() map[string]Local {
	return map[string]Local{
		"PHILADELPHIA": {
			Code: "PHILADELPHIA", Name: "Philadelphia Wage Tax", State: "PA",
			Resident:    LocalRate{TaxType: TaxFlat, Rate: rate("0.0375")},
			NonResident: LocalRate{TaxType: TaxFlat, Rate: rate("0.0344")},
		},
		"NYC": {
			Code: "NYC", Name: "New York City Resident Tax", State: "NY",
			Resident:    LocalRate{TaxType: TaxGraduated, Schedule: sched("12000", "0.03078", "25000", "0.03762", "50000", "0.03819", "", "0.03876")},
			NonResident: LocalRate{TaxType: TaxNone},
		},
	}
}

func reciprocity() []Reciprocity {
	return []Reciprocity{
		{States: [2]string{"NJ", "PA"}},
		{States: [2]string{"IN", "KY"}},
		{States: [2]string{"IN", "PA"}},
		{States: [2]string{"IN", "WI"}},
		{States: [2]string{"IL", "KY"}},
		{States: [2]string{"IL", "WI"}},
		{States: [2]string{"KY", "WI"}},
	}
}

func garnishment(std map[FilingStatus]money.Money, perExemption money.Money) Garnishment {
	return Garnishment{
		MinimumWage: usd("7.25"),
		CCPAPercent: rate("0.25"),
		FloorHours: map[Frequency]decimal.Decimal{
			FrequencyDaily:       rate("6"),
			FrequencyWeekly:      rate("30"),
			FrequencyBiweekly:    rate("60"),
			FrequencySemimonthly: rate("65"),
			FrequencyMonthly:     rate("130"),
			FrequencyQuarterly:   rate("390"),
			FrequencyAnnual:      rate("1560"),
		},
		Support: SupportCaps{
			WithDependents:        rate("0.50"),
			WithDependentsArrears: rate("0.55"),
			NoDependents:          rate("0.60"),
			NoDependentsArrears:   rate("0.65"),
		},
		StudentLoanPercent: rate("0.15"),
		Levy:               LevyExemption{StandardDeduction: std, PerExemption: perExemption},
	}
}

// sched builds a schedule from (upTo, rate) pairs; an empty upTo is the
// unbounded top bracket.
func sched(pairs ...string) Schedule {
	out := make(Schedule, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		var upTo money.Money
		if pairs[i] != "" {
			upTo = usd(pairs[i])
		}
		out = append(out, Bracket{UpTo: upTo, Rate: rate(pairs[i+1])})
	}
	return out
}

func usd(raw string) money.Money {
	return money.MustParse(raw)
}

func rate(raw string) decimal.Decimal {
	return money.Rate(raw)
}
