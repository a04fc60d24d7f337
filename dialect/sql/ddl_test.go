package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateTable(t *testing.T) {
	t.Parallel()

	b := CreateTable(TableOptions{
		Name: "users",
		Columns: []ColumnDef{
			{Name: "id", Type: "INTEGER PRIMARY KEY"},
			{Name: "name", Type: "TEXT NOT NULL"},
		},
	})
	assert.Equal(t, "CREATE TABLE `users` (`id` INTEGER PRIMARY KEY, `name` TEXT NOT NULL)", b.Text())
}

func TestCreateTableTemp(t *testing.T) {
	t.Parallel()

	b := CreateTable(TableOptions{
		Name:    "scratch",
		Temp:    true,
		Columns: []ColumnDef{{Name: "v", Type: "TEXT"}},
	})
	assert.Equal(t, "CREATE TEMP TABLE `scratch` (`v` TEXT)", b.Text())
}

func TestCreateTableWithIndexes(t *testing.T) {
	t.Parallel()

	b := CreateTable(TableOptions{
		Name:    "t",
		Columns: []ColumnDef{{Name: "a", Type: "TEXT"}},
		Indexes: []IndexOptions{
			{Columns: []IndexColumn{{Name: "a"}}},
		},
	})
	assert.Equal(t, "CREATE TABLE `t` (`a` TEXT) ; CREATE INDEX `t_a` ON `t` (`a`)", b.Text())
}

func TestCreateIndex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts IndexOptions
		want string
	}{
		{
			"synthesized_name",
			IndexOptions{Table: "logs", Columns: []IndexColumn{{Name: "ts"}, {Name: "lvl"}}},
			"CREATE INDEX `logs_ts_lvl` ON `logs` (`ts`, `lvl`)",
		},
		{
			"unique_desc",
			IndexOptions{Table: "logs", Unique: true, Columns: []IndexColumn{{Name: "ts", Desc: true}}},
			"CREATE UNIQUE INDEX `logs_ts` ON `logs` (`ts` DESC)",
		},
		{
			"explicit_name",
			IndexOptions{Table: "logs", Name: "by_level", Columns: []IndexColumn{{Name: "lvl"}}},
			"CREATE INDEX `by_level` ON `logs` (`lvl`)",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CreateIndex(tt.opts).Text())
		})
	}
}

func TestDropTable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "DROP TABLE `users`", DropTable("users").Text())
}
