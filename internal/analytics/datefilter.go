package analytics

import (
	"strconv"
	"strings"
	"time"
)

// DefaultRangeDays applies when the caller passes no range.
const DefaultRangeDays = 30

// DateFilter is an inclusive lower bound on createdAt/updatedAt used by all
// aggregation queries.
type DateFilter struct {
	RangeDays int
	Cutoff    time.Time
	Now       time.Time
}

// ParseRangeDays parses a symbolic day range ("7", "30d", "90"). Empty input
// falls back to the default; non-positive or unparseable input is an
// InvalidRangeError rather than a silent clamp.
func ParseRangeDays(s string) (int, error) {
	if s == "" {
		return DefaultRangeDays, nil
	}
	days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
	if err != nil || days <= 0 {
		return 0, InvalidRangeError{Value: s}
	}
	return days, nil
}

// NewDateFilter builds the cutoff for a positive day range.
func NewDateFilter(rangeDays int, now time.Time) (DateFilter, error) {
	if rangeDays <= 0 {
		return DateFilter{}, InvalidRangeError{Value: strconv.Itoa(rangeDays)}
	}
	now = now.UTC()
	return DateFilter{
		RangeDays: rangeDays,
		Cutoff:    now.AddDate(0, 0, -rangeDays),
		Now:       now,
	}, nil
}

// CutoffRFC3339 renders the cutoff for string-timestamp query predicates.
func (f DateFilter) CutoffRFC3339() string {
	return f.Cutoff.Format(time.RFC3339)
}

// CutoffDate renders the cutoff as a calendar date for work_date predicates.
func (f DateFilter) CutoffDate() string {
	return f.Cutoff.Format("2006-01-02")
}

// DaysBetween returns the number of days covered by the filter, used to
// normalize rates such as average hours per day.
func (f DateFilter) DaysBetween() int {
	return f.RangeDays
}
