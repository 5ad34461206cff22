// Package sqlerr classifies database errors raised while saving seeded
// entities.
package sqlerr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// ConstraintError is returned by the entity manager when an insert violates
// a database constraint.
type ConstraintError struct {
	Table string
	Kind  string // "unique", "foreign key" or "check"
	Err   error
}

// Error returns the error string.
func (e *ConstraintError) Error() string {
	return fmt.Sprintf("sqlerr: %s constraint violated inserting into %s: %v", e.Kind, e.Table, e.Err)
}

// Unwrap returns the driver error.
func (e *ConstraintError) Unwrap() error { return e.Err }

// Wrap returns a *ConstraintError if err is a constraint violation, and err
// unchanged otherwise.
func Wrap(table string, err error) error {
	var kind string
	switch {
	case err == nil:
		return nil
	case IsUniqueConstraintError(err):
		kind = "unique"
	case IsForeignKeyConstraintError(err):
		kind = "foreign key"
	case IsCheckConstraintError(err):
		kind = "check"
	default:
		return err
	}
	return &ConstraintError{Table: table, Kind: kind, Err: err}
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	var e *ConstraintError
	return errors.As(err, &e) ||
		IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

// sqlStateError is implemented by errors that expose a SQLSTATE code.
type sqlStateError interface {
	SQLState() string
}

// violation describes how each driver reports one kind of constraint error.
type violation struct {
	sqlState string
	mysql    []uint16
	messages []string
}

var (
	uniqueViolation = violation{
		sqlState: "23505",
		mysql:    []uint16{1062},
		messages: []string{"Error 1062", "violates unique constraint", "UNIQUE constraint failed"},
	}
	foreignKeyViolation = violation{
		sqlState: "23503",
		mysql:    []uint16{1451, 1452},
		messages: []string{"Error 1451", "Error 1452", "violates foreign key constraint", "FOREIGN KEY constraint failed"},
	}
	checkViolation = violation{
		sqlState: "23514",
		mysql:    []uint16{3819},
		messages: []string{"Error 3819", "violates check constraint", "CHECK constraint failed"},
	}
)

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
func IsUniqueConstraintError(err error) bool { return uniqueViolation.match(err) }

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool { return foreignKeyViolation.match(err) }

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool { return checkViolation.match(err) }

func (v violation) match(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConstraintError
	if errors.As(err, &ce) {
		err = ce.Err
	}
	if e, ok := asError[sqlStateError](err); ok && e.SQLState() == v.sqlState {
		return true
	}
	var pe *pq.Error
	if errors.As(err, &pe) && string(pe.Code) == v.sqlState {
		return true
	}
	if n, ok := mysqlNumber(err); ok {
		for _, code := range v.mysql {
			if n == code {
				return true
			}
		}
	}
	// Fallback to string matching for drivers without typed errors (SQLite).
	return containsAny(err.Error(), v.messages...)
}

func mysqlNumber(err error) (uint16, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number, true
	}
	return 0, false
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
