package quern

import (
	"context"
	"database/sql/driver"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quernlabs/quern/dialect/sql"
)

func openDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createUsers(t *testing.T, db *DB) {
	t.Helper()
	_, err := db.Exec(context.Background(), sql.CreateTable(sql.TableOptions{
		Name: "users",
		Columns: []sql.ColumnDef{
			{Name: "id", Type: "INTEGER PRIMARY KEY"},
			{Name: "name", Type: "TEXT NOT NULL UNIQUE"},
			{Name: "age", Type: "INTEGER"},
		},
		Indexes: []sql.IndexOptions{
			{Columns: []sql.IndexColumn{{Name: "age"}}},
		},
	}))
	require.NoError(t, err)
}

func seedUsers(t *testing.T, db *DB, names ...string) {
	t.Helper()
	for i, name := range names {
		_, err := db.Insert(context.Background(), sql.Insert("users").Values(sql.M{
			"name": name, "age": 20 + i,
		}))
		require.NoError(t, err)
	}
}

func TestInsertGetUpdateDelete(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	createUsers(t, db)
	ctx := context.Background()

	id, err := db.Insert(ctx, sql.Insert("users").Values(sql.M{"name": "john", "age": 30}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	var name string
	var age int
	err = db.Get(ctx, sql.Select("name, age").From("users").Where(sql.M{"id": id}), &name, &age)
	require.NoError(t, err)
	assert.Equal(t, "john", name)
	assert.Equal(t, 30, age)

	n, err := db.Update(ctx, sql.Update("users").Set(sql.M{"age": 31}).Where(sql.M{"id": id}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := db.Count(ctx, sql.Select("COUNT(*)").From("users").Where(sql.M{"age": sql.GT(30)}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	n, err = db.DeleteFrom(ctx, sql.Delete("users").Where(sql.M{"id": id}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGetErrors(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	createUsers(t, db)
	seedUsers(t, db, "a", "b")
	ctx := context.Background()

	var name string
	err := db.Get(ctx, sql.Select("name").From("users").Where(sql.M{"name": "nobody"}), &name)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))

	err = db.Get(ctx, sql.Select("name").From("users").OrderBy("name"), &name)
	assert.ErrorIs(t, err, ErrNotSingular)
	assert.True(t, IsNotSingular(err))
}

func TestAllAndIterate(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	createUsers(t, db)
	seedUsers(t, db, "a", "b", "c")
	ctx := context.Background()

	rows, err := db.All(ctx, sql.Select("name, age").From("users").OrderBy("name"))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0]["name"])
	assert.Equal(t, int64(20), rows[0]["age"])

	var seen []string
	err = db.Iterate(ctx, sql.Select("name").From("users").OrderBy("name"), func(r Row) error {
		seen = append(seen, r["name"].(string))
		if len(seen) == 2 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, seen)

	boom := fmt.Errorf("boom")
	err = db.Iterate(ctx, sql.Select("name").From("users"), func(Row) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestUpdateUnchangedSkipped(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	createUsers(t, db)
	seedUsers(t, db, "a")
	ctx := context.Background()

	// Every column matches the original: the builder emits no SET clause
	// and the statement never reaches the engine.
	b := sql.Update("users").Set(sql.M{"age": 20}, sql.M{"age": 20}).Where(sql.M{"name": "a"})
	require.Zero(t, b.Assignments())
	n, err := db.Update(ctx, b)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPrepareGuard(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	createUsers(t, db)
	ctx := context.Background()

	stmt, err := db.Prepare(ctx, sql.Select("COUNT(*)").From("users"))
	require.NoError(t, err)
	var n int
	require.NoError(t, stmt.QueryRowContext(ctx).Scan(&n))

	_, err = db.Prepare(ctx, sql.Select().From("users").Where(sql.M{"age": 1}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bound parameters")
}

func TestConstraintError(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	createUsers(t, db)
	seedUsers(t, db, "a")
	ctx := context.Background()

	_, err := db.Insert(ctx, sql.Insert("users").Values(sql.M{"name": "a", "age": 99}))
	require.Error(t, err)
	assert.True(t, IsConstraintError(err))
	assert.Contains(t, err.Error(), "constraint failed")
}

func TestUUIDBuiltin(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	ctx := context.Background()

	var a, b string
	require.NoError(t, db.Get(ctx, sql.NewBuilder("SELECT uuid(), uuid()"), &a, &b))
	_, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

var tagOfOnce sync.Once

// tagof(i) resolves a sidecar index back to its attached Go value.
func registerTagOf(t *testing.T) {
	t.Helper()
	tagOfOnce.Do(func() {
		err := RegisterFunction("tagof", 1, func(args []driver.Value) (driver.Value, error) {
			idx, ok := args[0].(int64)
			if !ok {
				return nil, fmt.Errorf("tagof: expected sidecar index, got %T", args[0])
			}
			v, ok := FnData(int(idx)).(string)
			if !ok {
				return nil, fmt.Errorf("tagof: no sidecar entry at %d", idx)
			}
			return v, nil
		})
		if err != nil {
			t.Fatal(err)
		}
	})
}

func TestFnDataRoundTrip(t *testing.T) {
	t.Parallel()

	registerTagOf(t)
	db := openDB(t)
	ctx := context.Background()

	b := sql.NewBuilder("SELECT tagof(?), tagof(?)").FnData("alpha").FnData("beta")
	var x, y string
	require.NoError(t, db.Get(ctx, b, &x, &y))
	assert.Equal(t, "alpha", x)
	assert.Equal(t, "beta", y)
}

func TestAllCached(t *testing.T) {
	t.Parallel()

	cache := NewMemoryCache()
	db := openDB(t, WithCache(cache))
	createUsers(t, db)
	seedUsers(t, db, "a")
	ctx := context.Background()
	q := sql.Select("name").From("users").OrderBy("name")

	rows, err := db.AllCached(ctx, q, time.Minute)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, cache.Len())

	// A mutation the cache does not see: the stale entry is served.
	seedUsers(t, db, "b")
	rows, err = db.AllCached(ctx, sql.Select("name").From("users").OrderBy("name"), time.Minute)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	cache.Clear()
	rows, err = db.AllCached(ctx, sql.Select("name").From("users").OrderBy("name"), time.Minute)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestAllCachedWithoutCache(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	createUsers(t, db)
	seedUsers(t, db, "a")

	rows, err := db.AllCached(context.Background(), sql.Select().From("users"), time.Minute)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestOpenWithPragmas(t *testing.T) {
	t.Parallel()

	db := openDB(t, WithForeignKeys(), WithBusyTimeout(250*time.Millisecond))
	var fk int
	require.NoError(t, db.Get(context.Background(), sql.NewBuilder("PRAGMA foreign_keys"), &fk))
	assert.Equal(t, 1, fk)
}

func TestStatementCacheReuse(t *testing.T) {
	t.Parallel()

	db := openDB(t)
	createUsers(t, db)
	seedUsers(t, db, "a", "b")
	ctx := context.Background()

	for _, name := range []string{"a", "b", "a"} {
		var got string
		q := sql.Select("name").From("users").Where(sql.M{"name": name})
		require.NoError(t, db.Get(ctx, q, &got))
		assert.Equal(t, name, got)
	}
	// One statement text, one cache entry.
	db.mu.RLock()
	defer db.mu.RUnlock()
	assert.Len(t, db.stmts, 1)
}
