package quern

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"

	"github.com/quernlabs/quern/dialect/sql"
)

// Tx is a database transaction exposing the same builder-aware helpers
// as DB, plus savepoints for partial rollback. A Tx is not safe for
// concurrent use.
type Tx struct {
	tx    *stdsql.Tx
	done  bool
	depth int
}

// Begin starts a transaction.
func (d *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapError(err)
	}
	return &Tx{tx: tx}, nil
}

// Transact runs fn inside a transaction: committed when fn returns nil,
// rolled back otherwise.
func (d *DB) Transact(ctx context.Context, fn func(*Tx) error) error {
	tx, err := d.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, ErrTxDone) {
			return fmt.Errorf("%w: rolling back: %v", err, rerr)
		}
		return err
	}
	return tx.Commit()
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	return wrapError(t.tx.Commit())
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	return wrapError(t.tx.Rollback())
}

// Savepoint creates a depth-numbered savepoint and returns its name.
func (t *Tx) Savepoint(ctx context.Context) (string, error) {
	if t.done {
		return "", ErrTxDone
	}
	t.depth++
	name := fmt.Sprintf("quern_sp_%d", t.depth)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return "", wrapError(err)
	}
	return name, nil
}

// Release releases the named savepoint, keeping its effects.
func (t *Tx) Release(ctx context.Context, name string) error {
	if t.done {
		return ErrTxDone
	}
	_, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return wrapError(err)
}

// RollbackTo undoes everything since the named savepoint without ending
// the transaction.
func (t *Tx) RollbackTo(ctx context.Context, name string) error {
	if t.done {
		return ErrTxDone
	}
	_, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
	return wrapError(err)
}

// Transact runs fn inside a savepoint, nesting a transactional scope in
// the already open transaction: released when fn returns nil, rolled
// back to the savepoint otherwise.
func (t *Tx) Transact(ctx context.Context, fn func(*Tx) error) error {
	name, err := t.Savepoint(ctx)
	if err != nil {
		return err
	}
	if err := fn(t); err != nil {
		if rerr := t.RollbackTo(ctx, name); rerr != nil && !errors.Is(rerr, ErrTxDone) {
			return fmt.Errorf("%w: rolling back to %s: %v", err, name, rerr)
		}
		return err
	}
	return t.Release(ctx, name)
}

// exec implements the executor surface. Transactions always run
// statements unprepared; the connection-bound statement cache belongs
// to the DB.
func (t *Tx) exec(ctx context.Context, b *sql.Builder) (stdsql.Result, error) {
	if t.done {
		return nil, ErrTxDone
	}
	query, args := b.Query()
	publishFnData(b.SidecarData())
	res, err := t.tx.ExecContext(ctx, query, args...)
	return res, wrapError(err)
}

func (t *Tx) query(ctx context.Context, b *sql.Builder) (*stdsql.Rows, error) {
	if t.done {
		return nil, ErrTxDone
	}
	query, args := b.Query()
	publishFnData(b.SidecarData())
	rows, err := t.tx.QueryContext(ctx, query, args...)
	return rows, wrapError(err)
}

// Exec runs the builder and returns the engine result.
func (t *Tx) Exec(ctx context.Context, b *sql.Builder) (stdsql.Result, error) {
	return t.exec(ctx, b)
}

// Insert runs the builder and returns the inserted row id.
func (t *Tx) Insert(ctx context.Context, b *sql.Builder) (int64, error) {
	return insertRow(ctx, t, b)
}

// Update runs the builder and returns the number of affected rows,
// skipping updates whose Set elided every column.
func (t *Tx) Update(ctx context.Context, b *sql.Builder) (int64, error) {
	return updateRows(ctx, t, b)
}

// DeleteFrom runs the builder and returns the number of deleted rows.
func (t *Tx) DeleteFrom(ctx context.Context, b *sql.Builder) (int64, error) {
	return affectedRows(ctx, t, b)
}

// Get scans the single matching row into dest. See DB.Get.
func (t *Tx) Get(ctx context.Context, b *sql.Builder, dest ...any) error {
	return getRow(ctx, t, b, dest...)
}

// Count returns the scalar result of the builder.
func (t *Tx) Count(ctx context.Context, b *sql.Builder) (int64, error) {
	return countRows(ctx, t, b)
}

// All returns every row keyed by column name.
func (t *Tx) All(ctx context.Context, b *sql.Builder) ([]Row, error) {
	return allRows(ctx, t, b)
}

// Iterate calls fn for each row; ErrStop stops early without error.
func (t *Tx) Iterate(ctx context.Context, b *sql.Builder, fn func(Row) error) error {
	return iterateRows(ctx, t, b, fn)
}

var (
	_ executor = (*DB)(nil)
	_ executor = (*Tx)(nil)
)
