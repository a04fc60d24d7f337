package quern

import (
	"context"
	stdsql "database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
	"modernc.org/sqlite"

	"github.com/quernlabs/quern/dialect"
	"github.com/quernlabs/quern/dialect/sql"
)

// Row is one result row keyed by column name, as returned by All,
// Iterate and AllCached.
type Row map[string]any

// config holds the Open options.
type config struct {
	foreignKeys bool
	wal         bool
	busyTimeout time.Duration
	cache       Cache
}

// Option configures a DB on Open.
type Option func(*config)

// WithForeignKeys enables foreign-key enforcement on every connection.
func WithForeignKeys() Option {
	return func(c *config) { c.foreignKeys = true }
}

// WithWAL switches the database to write-ahead-log journaling.
func WithWAL() Option {
	return func(c *config) { c.wal = true }
}

// WithBusyTimeout sets how long a connection waits on a locked database
// before failing.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *config) { c.busyTimeout = d }
}

// WithCache attaches a query-result cache used by AllCached.
func WithCache(cache Cache) Option {
	return func(c *config) { c.cache = cache }
}

// DB wraps an embedded SQLite database with the statement cache, the
// builder-aware execution helpers and the result cache. It is safe for
// concurrent use.
type DB struct {
	db    *stdsql.DB
	cache Cache
	mu    sync.RWMutex
	stmts map[string]*stdsql.Stmt
	group singleflight.Group
}

// Open opens (creating if needed) the SQLite database at path. Pass
// ":memory:" for a private in-memory database; its connection pool is
// capped at one connection so every statement sees the same data.
func Open(path string, opts ...Option) (*DB, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	registerBuiltins()

	memory := path == ":memory:" || strings.Contains(path, "mode=memory")
	dsn := path
	if !memory {
		if params := cfg.pragmaParams(); len(params) > 0 {
			sep := "?"
			if strings.Contains(path, "?") {
				sep = "&"
			}
			dsn = path + sep + strings.Join(params, "&")
		}
	}
	db, err := stdsql.Open(dialect.SQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("quern: open %s: %w", path, err)
	}
	if memory {
		db.SetMaxOpenConns(1)
		// A single shared connection: pragmas can be applied directly.
		for _, p := range cfg.pragmaStmts() {
			if _, err := db.Exec(p); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("quern: open %s: %w", path, err)
			}
		}
	}
	return NewDB(db, opts...), nil
}

// NewDB wraps an already opened database handle. Only WithCache is
// honored here; connection pragmas belong to whoever opened the handle.
func NewDB(db *stdsql.DB, opts ...Option) *DB {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	return &DB{
		db:    db,
		cache: cfg.cache,
		stmts: make(map[string]*stdsql.Stmt),
	}
}

// pragmaParams returns the configured pragmas in DSN form, applied by
// the driver on every new connection.
func (c *config) pragmaParams() []string {
	var params []string
	if c.foreignKeys {
		params = append(params, "_pragma=foreign_keys(1)")
	}
	if c.wal {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	if c.busyTimeout > 0 {
		params = append(params, fmt.Sprintf("_pragma=busy_timeout(%d)", c.busyTimeout.Milliseconds()))
	}
	return params
}

// pragmaStmts returns the configured pragmas as executable statements.
func (c *config) pragmaStmts() []string {
	var stmts []string
	if c.foreignKeys {
		stmts = append(stmts, "PRAGMA foreign_keys = ON")
	}
	if c.wal {
		stmts = append(stmts, "PRAGMA journal_mode = WAL")
	}
	if c.busyTimeout > 0 {
		stmts = append(stmts, fmt.Sprintf("PRAGMA busy_timeout = %d", c.busyTimeout.Milliseconds()))
	}
	return stmts
}

// DB returns the underlying database handle.
func (d *DB) DB() *stdsql.DB { return d.db }

// Cache returns the attached result cache, or nil.
func (d *DB) Cache() Cache { return d.cache }

// Driver returns a dialect.Driver view over the same handle, for use
// with the stats/debug wrappers and the schema migrator.
func (d *DB) Driver() *sql.Driver { return sql.OpenDB(dialect.SQLite, d.db) }

// Close closes every cached statement and the database handle.
func (d *DB) Close() error {
	d.mu.Lock()
	for _, stmt := range d.stmts {
		_ = stmt.Close()
	}
	d.stmts = make(map[string]*stdsql.Stmt)
	d.mu.Unlock()
	return d.db.Close()
}

// Prepare returns the cached prepared statement for the builder's text,
// preparing it on first use. It refuses a builder that already carries
// bound parameters: prepared statements are keyed and reused by text
// alone, so a parameterized builder here is a structural misuse.
func (d *DB) Prepare(ctx context.Context, b *sql.Builder) (*stdsql.Stmt, error) {
	query, args := b.Query()
	if len(args) > 0 {
		return nil, fmt.Errorf("quern: prepare %q: builder already carries %d bound parameters", query, len(args))
	}
	return d.stmt(ctx, query)
}

// stmt returns the cached prepared statement for query. Concurrent
// first-use prepares of the same text are de-duplicated. The cache never
// evicts: statement texts of an application are a small closed set.
func (d *DB) stmt(ctx context.Context, query string) (*stdsql.Stmt, error) {
	d.mu.RLock()
	stmt, ok := d.stmts[query]
	d.mu.RUnlock()
	if ok {
		return stmt, nil
	}
	v, err, _ := d.group.Do(query, func() (any, error) {
		stmt, err := d.db.PrepareContext(ctx, query)
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.stmts[query] = stmt
		d.mu.Unlock()
		return stmt, nil
	})
	if err != nil {
		return nil, wrapError(err)
	}
	return v.(*stdsql.Stmt), nil
}

// exec runs the builder as a statement returning no rows. Builders
// without parameters, and multi-statement texts (DDL with appended
// indexes), run unprepared; everything else goes through the statement
// cache.
func (d *DB) exec(ctx context.Context, b *sql.Builder) (stdsql.Result, error) {
	query, args := b.Query()
	publishFnData(b.SidecarData())
	if len(args) == 0 || strings.Contains(query, ";") {
		res, err := d.db.ExecContext(ctx, query, args...)
		return res, wrapError(err)
	}
	stmt, err := d.stmt(ctx, query)
	if err != nil {
		return nil, err
	}
	res, err := stmt.ExecContext(ctx, args...)
	return res, wrapError(err)
}

// query runs the builder as a statement returning rows.
func (d *DB) query(ctx context.Context, b *sql.Builder) (*stdsql.Rows, error) {
	query, args := b.Query()
	publishFnData(b.SidecarData())
	stmt, err := d.stmt(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, args...)
	return rows, wrapError(err)
}

// executor is the execution surface shared by DB and Tx.
type executor interface {
	exec(ctx context.Context, b *sql.Builder) (stdsql.Result, error)
	query(ctx context.Context, b *sql.Builder) (*stdsql.Rows, error)
}

// Exec runs the builder and returns the engine result.
func (d *DB) Exec(ctx context.Context, b *sql.Builder) (stdsql.Result, error) {
	return d.exec(ctx, b)
}

// Insert runs the builder and returns the inserted row id.
func (d *DB) Insert(ctx context.Context, b *sql.Builder) (int64, error) {
	return insertRow(ctx, d, b)
}

// Update runs the builder and returns the number of affected rows. An
// update whose Set elided every column (nothing changed) is skipped
// entirely and reports zero.
func (d *DB) Update(ctx context.Context, b *sql.Builder) (int64, error) {
	return updateRows(ctx, d, b)
}

// DeleteFrom runs the builder and returns the number of deleted rows.
func (d *DB) DeleteFrom(ctx context.Context, b *sql.Builder) (int64, error) {
	return affectedRows(ctx, d, b)
}

// Get runs the builder and scans the single matching row into dest.
// It returns ErrNotFound on zero rows and ErrNotSingular on more than
// one.
func (d *DB) Get(ctx context.Context, b *sql.Builder, dest ...any) error {
	return getRow(ctx, d, b, dest...)
}

// Count runs the builder (typically SELECT COUNT(*) ...) and returns
// the scalar result.
func (d *DB) Count(ctx context.Context, b *sql.Builder) (int64, error) {
	return countRows(ctx, d, b)
}

// All runs the builder and returns every row keyed by column name.
func (d *DB) All(ctx context.Context, b *sql.Builder) ([]Row, error) {
	return allRows(ctx, d, b)
}

// Iterate runs the builder and calls fn for each row. Returning ErrStop
// from fn stops the iteration without error.
func (d *DB) Iterate(ctx context.Context, b *sql.Builder, fn func(Row) error) error {
	return iterateRows(ctx, d, b, fn)
}

// AllCached is All backed by the attached result cache: a hit is decoded
// from the cache, a miss is queried and stored for ttl. Without an
// attached cache it degrades to All.
func (d *DB) AllCached(ctx context.Context, b *sql.Builder, ttl time.Duration) ([]Row, error) {
	if d.cache == nil {
		return d.All(ctx, b)
	}
	key, err := cacheKey(b)
	if err != nil {
		return nil, err
	}
	if data, ok := d.cache.Get(key); ok {
		var rows []Row
		if err := msgpack.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("quern: decode cached rows: %w", err)
		}
		return rows, nil
	}
	rows, err := d.All(ctx, b)
	if err != nil {
		return nil, err
	}
	data, err := msgpack.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("quern: encode rows for cache: %w", err)
	}
	d.cache.Set(key, data, ttl)
	return rows, nil
}

// cacheKey derives the result-cache key from the statement text and its
// parameters.
func cacheKey(b *sql.Builder) (string, error) {
	query, args := b.Query()
	raw, err := msgpack.Marshal([]any{query, args})
	if err != nil {
		return "", fmt.Errorf("quern: cache key: %w", err)
	}
	return string(raw), nil
}

// Shared CRUD plumbing over the executor surface.

func insertRow(ctx context.Context, e executor, b *sql.Builder) (int64, error) {
	res, err := e.exec(ctx, b)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapError(err)
	}
	return id, nil
}

func updateRows(ctx context.Context, e executor, b *sql.Builder) (int64, error) {
	// Set elided every assignment: the statement has no SET clause and
	// must not reach the engine.
	if b.SetMap() != nil && b.Assignments() == 0 {
		return 0, nil
	}
	return affectedRows(ctx, e, b)
}

func affectedRows(ctx context.Context, e executor, b *sql.Builder) (int64, error) {
	res, err := e.exec(ctx, b)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapError(err)
	}
	return n, nil
}

func getRow(ctx context.Context, e executor, b *sql.Builder, dest ...any) error {
	rows, err := e.query(ctx, b)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return wrapError(err)
		}
		return ErrNotFound
	}
	if err := rows.Scan(dest...); err != nil {
		return wrapError(err)
	}
	if rows.Next() {
		return ErrNotSingular
	}
	return wrapError(rows.Err())
}

func countRows(ctx context.Context, e executor, b *sql.Builder) (int64, error) {
	var n int64
	if err := getRow(ctx, e, b, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func allRows(ctx context.Context, e executor, b *sql.Builder) ([]Row, error) {
	var all []Row
	err := iterateRows(ctx, e, b, func(r Row) error {
		all = append(all, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

func iterateRows(ctx context.Context, e executor, b *sql.Builder, fn func(Row) error) error {
	rows, err := e.query(ctx, b)
	if err != nil {
		return err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return wrapError(err)
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return wrapError(err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		if err := fn(row); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return wrapError(rows.Err())
}

// Custom scalar functions and the statement sidecar.
//
// FnData-bound parameters arrive inside a custom function as plain
// integers; the function resolves them back to the attached Go values
// through FnData. The sidecar is published per statement just before
// execution; statements carrying sidecar data must not race with each
// other.

var (
	fnMu    sync.RWMutex
	fnSlots []any
)

func publishFnData(data []any) {
	if len(data) == 0 {
		return
	}
	fnMu.Lock()
	fnSlots = data
	fnMu.Unlock()
}

// FnData resolves a sidecar index, bound via Builder.FnData, back to
// the attached value. It returns nil for an unknown index.
func FnData(i int) any {
	fnMu.RLock()
	defer fnMu.RUnlock()
	if i < 0 || i >= len(fnSlots) {
		return nil
	}
	return fnSlots[i]
}

// RegisterFunction registers a custom scalar SQL function with the
// engine. Registration is process-wide and applies to connections opened
// afterwards, so it must run before Open.
func RegisterFunction(name string, nArgs int, fn func(args []driver.Value) (driver.Value, error)) error {
	err := sqlite.RegisterScalarFunction(name, int32(nArgs), func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		return fn(args)
	})
	if err != nil {
		return fmt.Errorf("quern: register function %s: %w", name, err)
	}
	return nil
}

var builtinsOnce sync.Once

// registerBuiltins installs the scalar functions every quern database
// provides. uuid() returns a random RFC 4122 identifier.
func registerBuiltins() {
	builtinsOnce.Do(func() {
		_ = sqlite.RegisterScalarFunction("uuid", 0, func(_ *sqlite.FunctionContext, _ []driver.Value) (driver.Value, error) {
			return uuid.NewString(), nil
		})
	})
}
