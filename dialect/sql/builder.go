package sql

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"golang.org/x/exp/maps"
)

// M is a column-name to value mapping used by Values, Set and the
// condition compiler. Keys starting with a reserved marker character
// ('$' or '.') are treated as control keys and skipped by column
// enumeration. Go maps carry no insertion order, so all methods taking
// an M iterate its keys in sorted order for deterministic output.
type M map[string]any

// Omit marks a value in an M as absent. Values and Set skip columns
// whose value is Omit, so callers can build partial maps without
// deleting keys.
var Omit omitted

type omitted struct{}

// Builder accumulates SQL text fragments and an ordered bind-parameter
// list. Every mutating method returns the receiver for chaining. The
// zero value is not usable; construct with NewBuilder or one of the
// statement-kind factories (Select, Insert, Update, Delete, ...).
//
// A Builder is plain in-memory state: it holds no handle, no lock and
// no relationship to any other builder. Appending one builder into
// another copies its text and parameters, it never aliases, so the
// sub-builder can be reused afterwards.
type Builder struct {
	text     string
	args     []any
	fndata   []any
	fnslots  []int // positions in args holding fndata indexes
	hasWhere bool
	values   M
	set      M
	assigns  int
}

// NewBuilder returns a new builder, optionally seeded with an initial
// fragment. The fragment may be raw SQL text with trailing parameters,
// or another *Builder whose text and parameters are copied in.
func NewBuilder(fragment any, args ...any) *Builder {
	b := &Builder{}
	if fragment != nil || len(args) > 0 {
		b.Append(fragment, args...)
	}
	return b
}

// Append is the core accumulation primitive; every clause method routes
// through it. The fragment may be nil (no-op), a *Builder (its text and
// parameters are spliced in, sidecar entries copied and their index
// parameters re-based), a string (concatenated with a single separating
// space), or an []any (its elements are appended to the parameter list
// with no text emitted). Any []any in the trailing args is flattened.
//
// Append clears the pending-WHERE state; only Where re-asserts it.
func (b *Builder) Append(fragment any, args ...any) *Builder {
	b.hasWhere = false
	switch f := fragment.(type) {
	case nil:
	case *Builder:
		if f != nil {
			b.splice(f)
		}
	case string:
		b.appendText(f)
	case []any:
		b.args = append(b.args, f...)
	default:
		b.appendText(fmt.Sprint(f))
	}
	for _, a := range args {
		if vs, ok := a.([]any); ok {
			b.args = append(b.args, vs...)
			continue
		}
		b.args = append(b.args, a)
	}
	return b
}

// splice copies the other builder's text, parameters and sidecar data
// into the receiver. Sidecar index parameters are shifted by the
// receiver's current sidecar length so they keep resolving correctly.
func (b *Builder) splice(f *Builder) {
	argBase, dataBase := len(b.args), len(b.fndata)
	b.appendText(f.text)
	b.args = append(b.args, f.args...)
	b.fndata = append(b.fndata, f.fndata...)
	for _, s := range f.fnslots {
		if idx, ok := f.args[s].(int); ok {
			b.args[argBase+s] = idx + dataBase
		}
		b.fnslots = append(b.fnslots, argBase+s)
	}
}

func (b *Builder) appendText(s string) {
	switch {
	case s == "":
	case b.text == "":
		b.text = s
	default:
		b.text += " " + s
	}
}

// keyword appends a literal SQL keyword phrase and delegates the
// remaining arguments to Append.
func (b *Builder) keyword(kw string, args []any) *Builder {
	b.Append(kw)
	if len(args) > 0 {
		b.Append(args[0], args[1:]...)
	}
	return b
}

// Select appends a SELECT clause. With no arguments it selects *; an M
// argument is rewritten into "expr AS `alias`" pairs; a []string is
// joined into a comma-separated column list.
func (b *Builder) Select(args ...any) *Builder {
	b.Append("SELECT")
	if len(args) == 0 {
		return b.Append("*")
	}
	switch v := args[0].(type) {
	case M:
		cols := make([]string, 0, len(v))
		mkeys := maps.Keys(v)
		slices.Sort(mkeys)
		for _, expr := range mkeys {
			cols = append(cols, expr+" AS "+quote(fmt.Sprint(v[expr])))
		}
		return b.Append(strings.Join(cols, ", "))
	case []string:
		return b.Append(strings.Join(v, ", "))
	}
	return b.Append(args[0], args[1:]...)
}

// Insert appends INSERT INTO and delegates the rest to Append.
func (b *Builder) Insert(args ...any) *Builder { return b.keyword("INSERT INTO", args) }

// InsertOrReplace appends INSERT OR REPLACE INTO.
func (b *Builder) InsertOrReplace(args ...any) *Builder {
	return b.keyword("INSERT OR REPLACE INTO", args)
}

// InsertOrIgnore appends INSERT OR IGNORE INTO.
func (b *Builder) InsertOrIgnore(args ...any) *Builder {
	return b.keyword("INSERT OR IGNORE INTO", args)
}

// Update appends UPDATE.
func (b *Builder) Update(args ...any) *Builder { return b.keyword("UPDATE", args) }

// Delete appends DELETE FROM.
func (b *Builder) Delete(args ...any) *Builder { return b.keyword("DELETE FROM", args) }

// From appends FROM.
func (b *Builder) From(args ...any) *Builder { return b.keyword("FROM", args) }

// OrderBy appends ORDER BY.
func (b *Builder) OrderBy(args ...any) *Builder { return b.keyword("ORDER BY", args) }

// GroupBy appends GROUP BY.
func (b *Builder) GroupBy(args ...any) *Builder { return b.keyword("GROUP BY", args) }

// LeftJoin appends LEFT JOIN.
func (b *Builder) LeftJoin(args ...any) *Builder { return b.keyword("LEFT JOIN", args) }

// Values appends the column/placeholder lists of an INSERT statement.
//
// Given an M it emits "(`c1`, `c2`) VALUES (?, ?)" with one parameter
// per retained column; reserved-prefix keys, func-typed values and Omit
// values are skipped. Given a []string the entries are treated as
// column names already quoted by the caller and one placeholder per
// entry is emitted with no parameters.
func (b *Builder) Values(v any) *Builder {
	switch v := v.(type) {
	case M:
		b.values = v
		keys := retainedKeys(v)
		cols := make([]string, len(keys))
		marks := make([]string, len(keys))
		params := make([]any, len(keys))
		for i, k := range keys {
			cols[i] = quote(k)
			marks[i] = "?"
			params[i] = v[k]
		}
		b.Append(fmt.Sprintf("(%s) VALUES (%s)", strings.Join(cols, ", "), strings.Join(marks, ", ")), params)
	case []string:
		marks := make([]string, len(v))
		for i := range marks {
			marks[i] = "?"
		}
		b.Append(fmt.Sprintf("(%s) VALUES (%s)", strings.Join(v, ", "), strings.Join(marks, ", ")))
	}
	return b
}

// Set appends an UPDATE assignment list. Literal text is appended
// verbatim after the SET keyword. Given an M it emits "`col` = ?" per
// retained column (same skip rules as Values). If an original mapping
// is supplied, columns whose new value shallowly equals the original
// are elided entirely; non-comparable values are always considered
// changed. When every column is elided no SET clause is emitted at
// all — check Assignments to detect the no-op.
func (b *Builder) Set(v any, original ...M) *Builder {
	switch v := v.(type) {
	case string:
		b.Append("SET").Append(v)
	case M:
		b.set = v
		var orig M
		if len(original) > 0 {
			orig = original[0]
		}
		var assigns []string
		var params []any
		for _, k := range retainedKeys(v) {
			if orig != nil {
				if ov, ok := orig[k]; ok && shallowEqual(ov, v[k]) {
					continue
				}
			}
			assigns = append(assigns, quote(k)+" = ?")
			params = append(params, v[k])
		}
		b.assigns = len(assigns)
		if len(assigns) > 0 {
			b.Append("SET").Append(strings.Join(assigns, ", "), params)
		}
	}
	return b
}

// Assignments reports how many "col = ?" pairs the last Set call
// emitted. Zero after Set(m, orig) means every column was unchanged.
func (b *Builder) Assignments() int { return b.assigns }

// Where compiles the condition (see BuildCond) and appends it after a
// WHERE keyword. A nil condition is a no-op: not even the keyword is
// emitted, so conditional filter-building code needs no special case.
func (b *Builder) Where(cond any, args ...any) *Builder {
	if cond == nil {
		return b
	}
	b.Append("WHERE").Append(BuildCond(cond, args...))
	b.hasWhere = true
	return b
}

// And appends AND followed by the compiled condition. It does not
// manage the pending-WHERE state; sequencing is the caller's concern.
func (b *Builder) And(cond any, args ...any) *Builder {
	if cond == nil {
		return b
	}
	return b.Append("AND").Append(BuildCond(cond, args...))
}

// Or appends OR followed by the compiled condition.
func (b *Builder) Or(cond any, args ...any) *Builder {
	if cond == nil {
		return b
	}
	return b.Append("OR").Append(BuildCond(cond, args...))
}

// AndWhere behaves as And when a WHERE clause is already pending on
// this builder, and as Where otherwise. It always leaves the builder
// in the pending-WHERE state, so callers can accumulate filters without
// tracking whether a WHERE exists yet.
func (b *Builder) AndWhere(cond any, args ...any) *Builder {
	if cond == nil {
		return b
	}
	if b.hasWhere {
		b.And(cond, args...)
	} else {
		return b.Where(cond, args...)
	}
	b.hasWhere = true
	return b
}

// OrWhere is the OR counterpart of AndWhere.
func (b *Builder) OrWhere(cond any, args ...any) *Builder {
	if cond == nil {
		return b
	}
	if b.hasWhere {
		b.Or(cond, args...)
	} else {
		return b.Where(cond, args...)
	}
	b.hasWhere = true
	return b
}

// On appends ON followed by the compiled join predicate.
func (b *Builder) On(cond any, args ...any) *Builder {
	if cond == nil {
		return b
	}
	return b.Append("ON").Append(BuildCond(cond, args...))
}

// In appends IN followed by either a parenthesized sub-query (when v is
// a *Builder) or the remaining arguments delegated to Append (so an
// []any fragment contributes parameters only).
func (b *Builder) In(v any, args ...any) *Builder {
	b.Append("IN")
	if sub, ok := v.(*Builder); ok {
		return b.Parens(sub)
	}
	return b.Append(v, args...)
}

// Limit appends "LIMIT ?" binding n.
func (b *Builder) Limit(n any) *Builder { return b.Append("LIMIT ?", n) }

// SkipTake appends "LIMIT ?, ?" binding the offset and row count.
func (b *Builder) SkipTake(skip, take any) *Builder { return b.Append("LIMIT ?, ?", skip, take) }

// TakePage is SkipTake expressed as a 1-based page number.
func (b *Builder) TakePage(page, rowsPerPage int) *Builder {
	return b.SkipTake((page-1)*rowsPerPage, rowsPerPage)
}

// Parens appends the fragment wrapped in parentheses with no inner
// padding, for explicit grouping of composed sub-conditions.
func (b *Builder) Parens(fragment any, args ...any) *Builder {
	sub := NewBuilder(fragment, args...)
	sub.text = "(" + sub.text + ")"
	return b.Append(sub)
}

// Param appends a single value to the parameter list without touching
// the accumulated text, for callers emitting their own placeholders.
func (b *Builder) Param(v any) *Builder {
	b.hasWhere = false
	b.args = append(b.args, v)
	return b
}

// FnData attaches data to the builder's sidecar list and binds the
// entry's integer index as a regular parameter. Custom scalar functions
// registered with the engine resolve the index back to the value via
// the execution collaborator instead of receiving it as a SQL literal.
func (b *Builder) FnData(data any) *Builder {
	b.hasWhere = false
	idx := len(b.fndata)
	b.fndata = append(b.fndata, data)
	b.fnslots = append(b.fnslots, len(b.args))
	b.args = append(b.args, idx)
	return b
}

// Query returns the accumulated SQL text and the ordered parameter
// list, ready to hand to the execution collaborator.
func (b *Builder) Query() (string, []any) {
	return b.text, b.args
}

// Text returns the accumulated SQL text.
func (b *Builder) Text() string { return b.text }

// SidecarData returns the ordered sidecar list attached via FnData.
func (b *Builder) SidecarData() []any { return b.fndata }

// ValuesMap returns the mapping recorded by the last Values call, for
// introspection by callers building INSERT wrappers.
func (b *Builder) ValuesMap() M { return b.values }

// SetMap returns the mapping recorded by the last Set call.
func (b *Builder) SetMap() M { return b.set }

// Select constructs a builder and opens a SELECT statement.
func Select(args ...any) *Builder { return NewBuilder(nil).Select(args...) }

// Insert constructs a builder and opens an INSERT INTO statement.
func Insert(args ...any) *Builder { return NewBuilder(nil).Insert(args...) }

// InsertOrReplace constructs a builder and opens an INSERT OR REPLACE
// INTO statement.
func InsertOrReplace(args ...any) *Builder { return NewBuilder(nil).InsertOrReplace(args...) }

// InsertOrIgnore constructs a builder and opens an INSERT OR IGNORE
// INTO statement.
func InsertOrIgnore(args ...any) *Builder { return NewBuilder(nil).InsertOrIgnore(args...) }

// Update constructs a builder and opens an UPDATE statement.
func Update(args ...any) *Builder { return NewBuilder(nil).Update(args...) }

// Delete constructs a builder and opens a DELETE FROM statement.
func Delete(args ...any) *Builder { return NewBuilder(nil).Delete(args...) }

// quote wraps an identifier in backticks. Names are interpolated as
// trusted input; they are never bound as parameters.
func quote(ident string) string { return "`" + ident + "`" }

// reserved reports whether the key is a control key rather than a
// column name.
func reserved(key string) bool {
	return strings.HasPrefix(key, "$") || strings.HasPrefix(key, ".")
}

// retainedKeys returns the sorted column keys of m, skipping reserved
// control keys, func-typed values and Omit entries.
func retainedKeys(m M) []string {
	keys := make([]string, 0, len(m))
	mkeys := maps.Keys(m)
	slices.Sort(mkeys)
	for _, k := range mkeys {
		if reserved(k) {
			continue
		}
		v := m[k]
		if _, ok := v.(omitted); ok {
			continue
		}
		if v != nil && reflect.TypeOf(v).Kind() == reflect.Func {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// shallowEqual compares two values the way the unchanged-field elision
// needs: nil equals nil, comparable values compare by ==, and any
// non-comparable value is never equal (object-valued columns are always
// considered changed rather than silently dropping updates).
func shallowEqual(a, c any) bool {
	if a == nil || c == nil {
		return a == nil && c == nil
	}
	ra, rc := reflect.ValueOf(a), reflect.ValueOf(c)
	if ra.Type() != rc.Type() || !ra.Comparable() {
		return false
	}
	return a == c
}
