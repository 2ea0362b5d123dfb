// Package repository defines the data access layer for flights and their
// change log, plus the error types shared with higher layers. Handlers use
// these values to tell caller mistakes (ValidationError), missing records
// (ErrFlightNotFound) and store failures (DataError) apart.
package repository

import (
	"errors"
	"fmt"
)

// ErrFlightNotFound is returned when no flight has the requested id.
var ErrFlightNotFound = errors.New("flight not found")

// ValidationError reports caller input rejected before any store access:
// an identifier outside the allow-list, a bad sort order, bad paging or an
// empty field set. Handlers translate it into an HTTP 400 response.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DataError wraps a failure of the store itself: constraint violations,
// lock timeouts, lost connections. Statement and Args describe what was
// attempted and are meant for logs only, never for API responses.
type DataError struct {
	Op        string
	Statement string
	Args      []any
	Err       error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data error in %s: %v", e.Op, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// IsDataError reports whether err is, or wraps, a DataError.
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}
