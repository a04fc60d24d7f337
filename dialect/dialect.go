package dialect

import "context"

// SQLite is the only dialect targeted by this module. The builder emits
// SQLite placeholder (?) and quoting (backtick) conventions and is not
// meant to be portable across dialects.
const SQLite = "sqlite"

// ExecQuerier wraps the two database operations used by the query builders.
//
// The args parameter is an []any holding the bind values, and v is the
// typed destination: *sql.Result for Exec, *sql.Rows for Query, or nil
// when the result is discarded.
type ExecQuerier interface {
	// Exec executes a statement that does not return rows.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the minimal interface a database connection must implement
// to execute finished builders.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx is the transaction interface returned by Driver.Tx.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}
