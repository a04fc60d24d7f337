// Package schema provides declarative table specs and a small ordered
// migrator for quern databases.
package schema

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quernlabs/quern/dialect"
	"github.com/quernlabs/quern/dialect/sql"
)

// bookkeeping table recording applied migration IDs.
const migrationsTable = "schema_migrations"

// Migration is one ordered schema change. IDs must be unique and
// stable; migrations are applied in slice order and recorded by ID.
type Migration struct {
	ID string
	Up func(ctx context.Context, conn dialect.ExecQuerier) error
}

// Migrate applies every pending migration in order, each inside its own
// transaction. Already applied IDs (recorded in the schema_migrations
// table) are skipped, so Migrate is safe to run on every startup.
func Migrate(ctx context.Context, drv dialect.Driver, migrations []Migration) error {
	seen := make(map[string]struct{}, len(migrations))
	for _, m := range migrations {
		if m.ID == "" {
			return fmt.Errorf("schema: migration without an id")
		}
		if m.Up == nil {
			return fmt.Errorf("schema: migration %q has no Up function", m.ID)
		}
		if _, ok := seen[m.ID]; ok {
			return fmt.Errorf("schema: duplicate migration id %q", m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	if err := ensureMigrationsTable(ctx, drv); err != nil {
		return err
	}
	applied, err := appliedIDs(ctx, drv)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if _, ok := applied[m.ID]; ok {
			continue
		}
		if err := applyMigration(ctx, drv, m); err != nil {
			return err
		}
		slog.Info("applied migration", "id", m.ID)
	}
	return nil
}

func applyMigration(ctx context.Context, drv dialect.Driver, m Migration) error {
	tx, err := drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("schema: migration %q: %w", m.ID, err)
	}
	if err := m.Up(ctx, tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("schema: migration %q: %w", m.ID, err)
	}
	record := sql.Insert(migrationsTable).Values(sql.M{"id": m.ID})
	if _, err := sql.ExecStatement(ctx, tx, record); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("schema: migration %q: record: %w", m.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("schema: migration %q: commit: %w", m.ID, err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, drv dialect.ExecQuerier) error {
	return CreateTables(ctx, drv, TableSpec{
		Name: migrationsTable,
		Columns: []ColumnSpec{
			{Name: "id", Type: "TEXT PRIMARY KEY"},
			{Name: "applied_at", Type: "TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP"},
		},
	})
}

func appliedIDs(ctx context.Context, drv dialect.ExecQuerier) (map[string]struct{}, error) {
	rows, err := sql.QueryStatement(ctx, drv, sql.Select("id").From(migrationsTable))
	if err != nil {
		return nil, fmt.Errorf("schema: read applied migrations: %w", err)
	}
	defer rows.Close()
	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("schema: read applied migrations: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schema: read applied migrations: %w", err)
	}
	return ids, nil
}

// CreateTables creates every given table that does not exist yet,
// including its declared indexes. Existing tables are left untouched;
// changing the shape of an existing table is Migrate's job.
func CreateTables(ctx context.Context, conn dialect.ExecQuerier, tables ...TableSpec) error {
	for _, t := range tables {
		exists, err := tableExists(ctx, conn, t.Name, t.Temp)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := sql.ExecStatement(ctx, conn, sql.CreateTable(t.TableOptions())); err != nil {
			return fmt.Errorf("schema: create table %q: %w", t.Name, err)
		}
	}
	return nil
}

func tableExists(ctx context.Context, conn dialect.ExecQuerier, name string, temp bool) (bool, error) {
	master := "sqlite_master"
	if temp {
		master = "sqlite_temp_master"
	}
	b := sql.Select("COUNT(*)").From(master).
		Where("type = 'table' AND name = ?", name)
	rows, err := sql.QueryStatement(ctx, conn, b)
	if err != nil {
		return false, fmt.Errorf("schema: check table %q: %w", name, err)
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return false, fmt.Errorf("schema: check table %q: %w", name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("schema: check table %q: %w", name, err)
	}
	return n > 0, nil
}
