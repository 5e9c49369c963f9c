package analytics

import (
	"errors"
	"fmt"

	"pulseboard/internal/domain"
)

// AccessDeniedError indicates the caller's role does not permit the requested
// report type or project.
type AccessDeniedError struct {
	Report string
	Role   domain.Role
}

func (e AccessDeniedError) Error() string {
	return fmt.Sprintf("role %s may not access %s report", e.Role, e.Report)
}

// InvalidRangeError indicates a non-positive or unparseable date range.
type InvalidRangeError struct {
	Value string
}

func (e InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid date range %q", e.Value)
}

// AggregationError carries the failing sub-component name and its cause.
type AggregationError struct {
	Component string
	Cause     error
}

func (e AggregationError) Error() string {
	return fmt.Sprintf("%s aggregation failed: %v", e.Component, e.Cause)
}

func (e AggregationError) Unwrap() error { return e.Cause }

// UnavailableError is the assembler-level wrapper surfaced to callers when
// any stage fails. Partial reports are never returned.
type UnavailableError struct {
	Cause error
}

func (e UnavailableError) Error() string {
	return fmt.Sprintf("report unavailable: %v", e.Cause)
}

func (e UnavailableError) Unwrap() error { return e.Cause }

// IsAccessDenied reports whether err is an access denial.
func IsAccessDenied(err error) bool {
	var ad AccessDeniedError
	return errors.As(err, &ad)
}

// IsInvalidRange reports whether err is a date-range validation failure.
func IsInvalidRange(err error) bool {
	var ir InvalidRangeError
	return errors.As(err, &ir)
}
