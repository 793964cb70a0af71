package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicateBill means a bill already exists for the customer and period.
	ErrDuplicateBill = errors.New("bill already exists for this period")

	// ErrNoEntries means the period has no milk entries to bill.
	ErrNoEntries = errors.New("no milk entries found for this period")

	// ErrConflict is returned when a write loses against a concurrent one.
	ErrConflict = errors.New("conflicting write")

	ErrAlreadyPaid = errors.New("bill is already paid")

	errInvalidNumber = errors.New("invalid number")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s %s", e.Field, e.Msg)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUserError reports whether err is a validation-class failure the caller
// can correct and resubmit.
func IsUserError(err error) bool {
	return IsValidation(err) ||
		errors.Is(err, ErrDuplicateBill) ||
		errors.Is(err, ErrNoEntries) ||
		errors.Is(err, ErrAlreadyPaid)
}
