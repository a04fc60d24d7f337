package sql

import (
	"fmt"
	"strings"
)

// ColumnDef declares one column of a CREATE TABLE statement. Type is
// the raw column type clause ("INTEGER PRIMARY KEY", "TEXT NOT NULL")
// appended verbatim after the quoted name.
type ColumnDef struct {
	Name string
	Type string
}

// IndexColumn is one column of an index, ascending unless Desc is set.
type IndexColumn struct {
	Name string
	Desc bool
}

// IndexOptions configures CreateIndex. Name defaults to the table name
// joined with the column names in declaration order. Table may be left
// empty for indexes declared inside TableOptions, where it defaults to
// the owning table.
type IndexOptions struct {
	Table   string
	Name    string
	Unique  bool
	Columns []IndexColumn
}

// TableOptions configures CreateTable.
type TableOptions struct {
	Name    string
	Temp    bool
	Columns []ColumnDef
	Indexes []IndexOptions
}

// CreateTable returns a builder pre-loaded with a CREATE [TEMP] TABLE
// statement. Table and column names are interpolated directly as quoted
// identifiers, never bound as parameters: the caller must pass trusted
// names, not user input. Declared indexes are appended as additional
// statements separated by ";" and must be executed unprepared.
func CreateTable(opts TableOptions) *Builder {
	kw := "CREATE TABLE"
	if opts.Temp {
		kw = "CREATE TEMP TABLE"
	}
	cols := make([]string, len(opts.Columns))
	for i, c := range opts.Columns {
		cols[i] = quote(c.Name) + " " + c.Type
	}
	b := NewBuilder(fmt.Sprintf("%s %s (%s)", kw, quote(opts.Name), strings.Join(cols, ", ")))
	for _, idx := range opts.Indexes {
		if idx.Table == "" {
			idx.Table = opts.Name
		}
		b.Append(";").Append(CreateIndex(idx))
	}
	return b
}

// DropTable returns a builder pre-loaded with a DROP TABLE statement.
func DropTable(name string) *Builder {
	return NewBuilder("DROP TABLE " + quote(name))
}

// CreateIndex returns a builder pre-loaded with a CREATE [UNIQUE] INDEX
// statement. When no index name is supplied one is synthesized from the
// table name and the column names in declaration order.
func CreateIndex(opts IndexOptions) *Builder {
	kw := "CREATE INDEX"
	if opts.Unique {
		kw = "CREATE UNIQUE INDEX"
	}
	name := opts.Name
	if name == "" {
		parts := make([]string, 0, len(opts.Columns)+1)
		parts = append(parts, opts.Table)
		for _, c := range opts.Columns {
			parts = append(parts, c.Name)
		}
		name = strings.Join(parts, "_")
	}
	cols := make([]string, len(opts.Columns))
	for i, c := range opts.Columns {
		cols[i] = quote(c.Name)
		if c.Desc {
			cols[i] += " DESC"
		}
	}
	return NewBuilder(fmt.Sprintf("%s %s ON %s (%s)", kw, quote(name), quote(opts.Table), strings.Join(cols, ", ")))
}
