package taxrules

import "errors"

var (
	ErrMissingTaxTable         = errors.New("tax table not configured")
	ErrUnknownJurisdiction     = errors.New("unknown tax jurisdiction")
	ErrUnsupportedFilingStatus = errors.New("unsupported filing status")
	ErrInvalidSchedule         = errors.New("invalid bracket schedule")
)
