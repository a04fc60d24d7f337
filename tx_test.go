package quern

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quernlabs/quern/dialect/sql"
)

func TestTxCommit(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	createUsers(t, db)
	ctx := context.Background()

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	id, err := tx.Insert(ctx, sql.Insert("users").Values(sql.M{"name": "a", "age": 1}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	require.NoError(t, tx.Commit())

	n, err := db.Count(ctx, sql.Select("COUNT(*)").From("users"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTxRollback(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	createUsers(t, db)
	ctx := context.Background()

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Insert(ctx, sql.Insert("users").Values(sql.M{"name": "a", "age": 1}))
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	n, err := db.Count(ctx, sql.Select("COUNT(*)").From("users"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTxDoneGuard(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	createUsers(t, db)
	ctx := context.Background()

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.ErrorIs(t, tx.Commit(), ErrTxDone)
	assert.ErrorIs(t, tx.Rollback(), ErrTxDone)
	_, err = tx.Exec(ctx, sql.Delete("users"))
	assert.ErrorIs(t, err, ErrTxDone)
	_, err = tx.Savepoint(ctx)
	assert.ErrorIs(t, err, ErrTxDone)
}

func TestTransact(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	createUsers(t, db)
	ctx := context.Background()

	err := db.Transact(ctx, func(tx *Tx) error {
		_, err := tx.Insert(ctx, sql.Insert("users").Values(sql.M{"name": "a", "age": 1}))
		return err
	})
	require.NoError(t, err)

	boom := fmt.Errorf("boom")
	err = db.Transact(ctx, func(tx *Tx) error {
		if _, err := tx.Insert(ctx, sql.Insert("users").Values(sql.M{"name": "b", "age": 2})); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := db.Count(ctx, sql.Select("COUNT(*)").From("users"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSavepoints(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	createUsers(t, db)
	ctx := context.Background()

	err := db.Transact(ctx, func(tx *Tx) error {
		if _, err := tx.Insert(ctx, sql.Insert("users").Values(sql.M{"name": "kept", "age": 1})); err != nil {
			return err
		}
		name, err := tx.Savepoint(ctx)
		if err != nil {
			return err
		}
		assert.Equal(t, "quern_sp_1", name)
		if _, err := tx.Insert(ctx, sql.Insert("users").Values(sql.M{"name": "undone", "age": 2})); err != nil {
			return err
		}
		return tx.RollbackTo(ctx, name)
	})
	require.NoError(t, err)

	rows, err := db.All(ctx, sql.Select("name").From("users"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "kept", rows[0]["name"])
}

func TestNestedTransact(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	createUsers(t, db)
	ctx := context.Background()
	boom := fmt.Errorf("boom")

	err := db.Transact(ctx, func(tx *Tx) error {
		if _, err := tx.Insert(ctx, sql.Insert("users").Values(sql.M{"name": "outer", "age": 1})); err != nil {
			return err
		}
		// The failing inner scope rolls back to its savepoint; the outer
		// transaction continues and commits.
		inner := tx.Transact(ctx, func(tx *Tx) error {
			if _, err := tx.Insert(ctx, sql.Insert("users").Values(sql.M{"name": "inner", "age": 2})); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, inner, boom)
		return nil
	})
	require.NoError(t, err)

	rows, err := db.All(ctx, sql.Select("name").From("users"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "outer", rows[0]["name"])
}

func TestTxQueryHelpers(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	createUsers(t, db)
	seedUsers(t, db, "a", "b", "c")
	ctx := context.Background()

	err := db.Transact(ctx, func(tx *Tx) error {
		n, err := tx.Count(ctx, sql.Select("COUNT(*)").From("users"))
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		var name string
		require.NoError(t, tx.Get(ctx, sql.Select("name").From("users").Where(sql.M{"name": "b"}), &name))
		assert.Equal(t, "b", name)

		deleted, err := tx.DeleteFrom(ctx, sql.Delete("users").Where(sql.M{"name": "c"}))
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		updated, err := tx.Update(ctx, sql.Update("users").Set(sql.M{"age": 50}).Where(sql.M{"name": "a"}))
		require.NoError(t, err)
		assert.Equal(t, int64(1), updated)

		var seen int
		require.NoError(t, tx.Iterate(ctx, sql.Select("name").From("users"), func(Row) error {
			seen++
			return nil
		}))
		assert.Equal(t, 2, seen)
		return nil
	})
	require.NoError(t, err)
}
