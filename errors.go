package quern

import (
	"errors"
	"fmt"

	"modernc.org/sqlite"
)

var (
	// ErrNotFound is returned by Get when the statement matches no rows.
	ErrNotFound = errors.New("quern: row not found")
	// ErrNotSingular is returned by Get when the statement matches more
	// than one row.
	ErrNotSingular = errors.New("quern: statement returned more than one row")
	// ErrTxDone is returned when operating on a transaction that was
	// already committed or rolled back.
	ErrTxDone = errors.New("quern: transaction has already been committed or rolled back")
	// ErrStop stops Iterate early without reporting an error.
	ErrStop = errors.New("quern: stop iteration")
)

// IsNotFound reports whether the error is an ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsNotSingular reports whether the error is an ErrNotSingular.
func IsNotSingular(err error) bool { return errors.Is(err, ErrNotSingular) }

// ConstraintError wraps an engine constraint violation (unique, foreign
// key, not-null, check).
type ConstraintError struct {
	msg  string
	wrap error
}

// Error implements the error interface.
func (e ConstraintError) Error() string { return "quern: constraint failed: " + e.msg }

// Unwrap implements the errors.Wrapper interface.
func (e ConstraintError) Unwrap() error { return e.wrap }

// IsConstraintError reports whether the error is a ConstraintError.
func IsConstraintError(err error) bool {
	var e *ConstraintError
	return errors.As(err, &e)
}

// sqlite primary result code for constraint violations.
const sqliteConstraint = 19

// wrapError converts engine errors into the package taxonomy. Constraint
// violations become *ConstraintError; everything else is wrapped with
// the package prefix.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqliteConstraint {
		return &ConstraintError{msg: err.Error(), wrap: err}
	}
	return fmt.Errorf("quern: %w", err)
}
