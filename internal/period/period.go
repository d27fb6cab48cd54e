// Package period handles reporting-period keys. A period key identifies one
// calendar month of revenue reporting for one deal ("2025-11") and doubles as
// the idempotency key for distribution.
package period

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// keyRegex matches: {YYYY}-{MM}
// Example: 2025-11
var keyRegex = regexp.MustCompile(`^(\d{4})-(0[1-9]|1[0-2])$`)

// ErrInvalidKey is returned for a malformed period key.
var ErrInvalidKey = errors.New("period: invalid period key")

// Period is one calendar month.
type Period struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// Parse parses and validates a period key string.
// Format: {YYYY}-{MM}, month 01–12.
func Parse(key string) (Period, error) {
	matches := keyRegex.FindStringSubmatch(key)
	if matches == nil {
		return Period{}, fmt.Errorf("%w: %q (expected YYYY-MM)", ErrInvalidKey, key)
	}

	t, err := time.Parse("2006-01", key)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// Valid reports whether key is a well-formed period key.
func Valid(key string) bool {
	_, err := Parse(key)
	return err == nil
}

// String returns the canonical key form, e.g. "2025-11".
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Next returns the following calendar month.
func (p Period) Next() Period {
	if p.Month == time.December {
		return Period{Year: p.Year + 1, Month: time.January}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Start returns the first instant of the period in UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}
