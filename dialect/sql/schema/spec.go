package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/quernlabs/quern/dialect/sql"
)

// Spec is a declarative description of the tables a database should
// have, loaded from YAML:
//
//	tables:
//	  - name: users
//	    columns:
//	      - id: INTEGER PRIMARY KEY
//	      - name: TEXT NOT NULL
//	      - age: INTEGER
//	    indexes:
//	      - unique: true
//	        columns: [name]
//	      - columns:
//	          - age: desc
//
// Columns are single-key mappings so the YAML document preserves their
// declaration order.
type Spec struct {
	Tables []TableSpec `yaml:"tables"`
}

// TableSpec describes one table and its indexes.
type TableSpec struct {
	Name    string       `yaml:"name"`
	Temp    bool         `yaml:"temp"`
	Columns []ColumnSpec `yaml:"columns"`
	Indexes []IndexSpec  `yaml:"indexes"`
}

// ColumnSpec is one column declaration: a single-key mapping from the
// column name to its raw type clause.
type ColumnSpec struct {
	Name string
	Type string
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *ColumnSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("schema: column must be a single-key mapping (line %d)", node.Line)
	}
	if err := node.Content[0].Decode(&c.Name); err != nil {
		return err
	}
	return node.Content[1].Decode(&c.Type)
}

// IndexSpec describes one index of a table.
type IndexSpec struct {
	Name    string            `yaml:"name"`
	Unique  bool              `yaml:"unique"`
	Columns []IndexColumnSpec `yaml:"columns"`
}

// IndexColumnSpec is one indexed column: either a plain column name, or
// a single-key mapping from the name to "asc"/"desc".
type IndexColumnSpec struct {
	Name string
	Desc bool
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *IndexColumnSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&c.Name)
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("schema: index column must be a name or a single-key mapping (line %d)", node.Line)
		}
		if err := node.Content[0].Decode(&c.Name); err != nil {
			return err
		}
		var order string
		if err := node.Content[1].Decode(&order); err != nil {
			return err
		}
		switch order {
		case "asc", "":
		case "desc":
			c.Desc = true
		default:
			return fmt.Errorf("schema: invalid index order %q (line %d)", order, node.Line)
		}
		return nil
	default:
		return fmt.Errorf("schema: invalid index column (line %d)", node.Line)
	}
}

// LoadSpec parses and validates a YAML schema document.
func LoadSpec(data []byte) (*Spec, error) {
	spec := &Spec{}
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, fmt.Errorf("schema: parse spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// Validate checks the spec for structural mistakes: unnamed or
// duplicated tables, duplicated columns, and indexes referring to
// columns the table does not declare.
func (s *Spec) Validate() error {
	tables := make(map[string]struct{}, len(s.Tables))
	for _, t := range s.Tables {
		if t.Name == "" {
			return fmt.Errorf("schema: table without a name")
		}
		if _, ok := tables[t.Name]; ok {
			return fmt.Errorf("schema: duplicate table %q", t.Name)
		}
		tables[t.Name] = struct{}{}
		if err := t.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (t *TableSpec) validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("schema: table %q has no columns", t.Name)
	}
	cols := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("schema: table %q has a column without a name", t.Name)
		}
		if _, ok := cols[c.Name]; ok {
			return fmt.Errorf("schema: table %q has duplicate column %q", t.Name, c.Name)
		}
		cols[c.Name] = struct{}{}
	}
	for _, idx := range t.Indexes {
		if len(idx.Columns) == 0 {
			return fmt.Errorf("schema: table %q has an index without columns", t.Name)
		}
		for _, ic := range idx.Columns {
			if _, ok := cols[ic.Name]; !ok {
				return fmt.Errorf("schema: index on table %q refers to unknown column %q", t.Name, ic.Name)
			}
		}
	}
	return nil
}

// TableOptions converts the table spec into the DDL generator's input.
func (t *TableSpec) TableOptions() sql.TableOptions {
	opts := sql.TableOptions{Name: t.Name, Temp: t.Temp}
	for _, c := range t.Columns {
		opts.Columns = append(opts.Columns, sql.ColumnDef{Name: c.Name, Type: c.Type})
	}
	for _, idx := range t.Indexes {
		io := sql.IndexOptions{Table: t.Name, Name: idx.Name, Unique: idx.Unique}
		for _, ic := range idx.Columns {
			io.Columns = append(io.Columns, sql.IndexColumn{Name: ic.Name, Desc: ic.Desc})
		}
		opts.Indexes = append(opts.Indexes, io)
	}
	return opts
}
