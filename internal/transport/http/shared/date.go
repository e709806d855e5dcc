package shared

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// ParseDate reads a calendar date. Pay periods carry no time of day, so an
// RFC3339 timestamp is reduced to its UTC date. Empty input is the zero time.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(dateLayout, value); err == nil {
		return parsed, nil
	}
	stamp, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a YYYY-MM-DD date", value)
	}
	y, m, d := stamp.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
