package taxrules

import "paycore/internal/domain/money"

// Party says who bears a tax line.
type Party string

const (
	PartyEmployee Party = "employee"
	PartyEmployer Party = "employer"
)

// Tax names used on tax lines.
const (
	TaxFederalIncome      = "federal_income"
	TaxSocialSecurity     = "social_security"
	TaxMedicare           = "medicare"
	TaxAdditionalMedicare = "additional_medicare"
	TaxFUTA               = "futa"
	TaxStateIncome        = "state_income"
	TaxStateDisability    = "state_disability"
	TaxSUTA               = "suta"
	TaxLocal              = "local"
)

// Line is one itemized tax on a paycheck. Jurisdiction is "FED", a state
// code, a "STATE:PROGRAM" key or a local code.
type Line struct {
	Jurisdiction string      `json:"jurisdiction"`
	Tax          string      `json:"tax"`
	TaxableWages money.Money `json:"taxableWages"`
	Amount       money.Money `json:"amount"`
	Party        Party       `json:"party"`
}

const JurisdictionFederal = "FED"
