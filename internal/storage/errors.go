package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"dairyflow/internal/core"
)

type constraint int

const (
	noConstraint constraint = iota
	uniqueConstraint
	foreignKeyConstraint
)

func classify(err error) constraint {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return uniqueConstraint
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return foreignKeyConstraint
		}
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return uniqueConstraint
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return foreignKeyConstraint
	}
	return noConstraint
}

// isBillPeriodViolation reports whether err is the bills(customer_id, month,
// year) uniqueness failure rather than another unique index.
func isBillPeriodViolation(err error) bool {
	return classify(err) == uniqueConstraint && strings.Contains(err.Error(), "bills.customer_id")
}

// mapErr translates driver errors into the core taxonomy. what names the row
// for the message.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	}
	switch classify(err) {
	case uniqueConstraint:
		if isBillPeriodViolation(err) {
			return fmt.Errorf("%s: %w", what, core.ErrDuplicateBill)
		}
		return fmt.Errorf("%s: %w: %v", what, core.ErrConflict, err)
	case foreignKeyConstraint:
		return fmt.Errorf("%s: referenced row missing or in use: %w", what, core.ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// mapInsertErr is mapErr for inserts, where a foreign key failure means the
// parent row does not exist.
func mapInsertErr(err error, what string) error {
	if err != nil && classify(err) == foreignKeyConstraint {
		return fmt.Errorf("%s: parent row: %w", what, core.ErrNotFound)
	}
	return mapErr(err, what)
}
