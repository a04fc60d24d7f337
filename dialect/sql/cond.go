package sql

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/exp/maps"
)

// predOp enumerates the closed set of condition operators. The source
// of truth for their SQL rendering is compilePred.
type predOp uint8

const (
	opNone predOp = iota
	opEQ
	opNEQ
	opLT
	opLTE
	opGT
	opGTE
	opLike
	opGlob
	opIsNull
	opNotNull
	opIn
	opNotIn
	opInQuery
	opOr
	opAnd
	opNot
)

// Pred is a tagged condition operator applied to a column of a
// condition mapping. Preds are built with the package-level
// constructors (EQ, GT, In, AnyOf, Not, ...) and consumed by BuildCond;
// the zero value compiles as plain equality against a nil parameter.
type Pred struct {
	op   predOp
	v    any
	list []any
	sub  *Builder
	kids []Pred
}

// EQ matches rows where the column equals v.
func EQ(v any) Pred { return Pred{op: opEQ, v: v} }

// NEQ matches rows where the column differs from v (SQL <>).
func NEQ(v any) Pred { return Pred{op: opNEQ, v: v} }

// LT matches rows where the column is less than v.
func LT(v any) Pred { return Pred{op: opLT, v: v} }

// LTE matches rows where the column is less than or equal to v.
func LTE(v any) Pred { return Pred{op: opLTE, v: v} }

// GT matches rows where the column is greater than v.
func GT(v any) Pred { return Pred{op: opGT, v: v} }

// GTE matches rows where the column is greater than or equal to v.
func GTE(v any) Pred { return Pred{op: opGTE, v: v} }

// Like matches rows where the column LIKEs the pattern.
func Like(pattern any) Pred { return Pred{op: opLike, v: pattern} }

// Glob matches rows where the column GLOBs the pattern.
func Glob(pattern any) Pred { return Pred{op: opGlob, v: pattern} }

// IsNull matches rows where the column is NULL.
func IsNull() Pred { return Pred{op: opIsNull} }

// NotNull matches rows where the column is not NULL.
func NotNull() Pred { return Pred{op: opNotNull} }

// In matches rows where the column is one of vs. An empty list compiles
// to "IN ()", which SQLite evaluates as false.
func In(vs ...any) Pred { return Pred{op: opIn, list: vs} }

// NotIn matches rows where the column is none of vs.
func NotIn(vs ...any) Pred { return Pred{op: opNotIn, list: vs} }

// InQuery matches rows where the column is contained in the result of
// the sub-query. The sub-builder's parameters are spliced in order.
func InQuery(sub *Builder) Pred { return Pred{op: opInQuery, sub: sub} }

// AnyOf joins the given predicates on the same column with OR,
// parenthesized.
func AnyOf(preds ...Pred) Pred { return Pred{op: opOr, kids: preds} }

// AllOf joins the given predicates on the same column with AND,
// parenthesized.
func AllOf(preds ...Pred) Pred { return Pred{op: opAnd, kids: preds} }

// Not negates the given predicate. Not(IsNull()) is special-cased to
// IS NOT NULL; everything else is wrapped in NOT (...).
func Not(p Pred) Pred { return Pred{op: opNot, kids: []Pred{p}} }

// BuildCond compiles a structured condition into a builder fragment.
//
// Dispatch on the condition's shape:
//
//   - *Builder: returned unchanged, so compiled sub-conditions and raw
//     SQL snippets nest interchangeably.
//   - string: raw SQL text wrapped with the trailing args as
//     parameters — the escape hatch for conditions the operator
//     vocabulary cannot express.
//   - M: one expression per non-reserved key (sorted order), all joined
//     with AND and wrapped in parentheses. A mapping that yields zero
//     expressions compiles to the literal TRUE, so conditional
//     filter-building never needs to special-case "no conditions".
//
// Any other condition value is rendered as raw text via fmt. Within a
// mapping, a nil value compiles to IS NULL, a Pred to its operator, and
// any other value falls back to plain equality — unknown shapes are
// deliberately not rejected.
func BuildCond(cond any, args ...any) *Builder {
	switch c := cond.(type) {
	case *Builder:
		return c
	case string:
		return NewBuilder(c, args...)
	case M:
		exprs := make([]*Builder, 0, len(c))
		ckeys := maps.Keys(c)
		slices.Sort(ckeys)
		for _, k := range ckeys {
			if reserved(k) {
				continue
			}
			exprs = append(exprs, compileField(k, c[k]))
		}
		if len(exprs) == 0 {
			return NewBuilder("TRUE")
		}
		return joinExprs("AND", exprs)
	default:
		return NewBuilder(fmt.Sprint(c), args...)
	}
}

// joinExprs joins compiled expressions with the given keyword and wraps
// the whole result in parentheses.
func joinExprs(op string, exprs []*Builder) *Builder {
	inner := NewBuilder(nil)
	for i, e := range exprs {
		if i > 0 {
			inner.Append(op)
		}
		inner.Append(e)
	}
	return NewBuilder(nil).Parens(inner)
}

// compileField compiles the expression for a single column of a
// condition mapping.
func compileField(col string, v any) *Builder {
	qc := quote(col)
	switch v := v.(type) {
	case nil:
		return NewBuilder(qc + " IS NULL")
	case Pred:
		return compilePred(qc, v)
	default:
		return NewBuilder(qc+" = ?", v)
	}
}

func compilePred(qc string, p Pred) *Builder {
	switch p.op {
	case opEQ:
		return NewBuilder(qc+" = ?", p.v)
	case opNEQ:
		return NewBuilder(qc+" <> ?", p.v)
	case opLT:
		return NewBuilder(qc+" < ?", p.v)
	case opLTE:
		return NewBuilder(qc+" <= ?", p.v)
	case opGT:
		return NewBuilder(qc+" > ?", p.v)
	case opGTE:
		return NewBuilder(qc+" >= ?", p.v)
	case opLike:
		return NewBuilder(qc+" LIKE ?", p.v)
	case opGlob:
		return NewBuilder(qc+" GLOB ?", p.v)
	case opIsNull:
		return NewBuilder(qc + " IS NULL")
	case opNotNull:
		return NewBuilder(qc + " IS NOT NULL")
	case opIn:
		return inList(qc, "IN", p.list)
	case opNotIn:
		return inList(qc, "NOT IN", p.list)
	case opInQuery:
		return NewBuilder(qc + " IN").Parens(p.sub)
	case opOr, opAnd:
		kw := "OR"
		if p.op == opAnd {
			kw = "AND"
		}
		exprs := make([]*Builder, len(p.kids))
		for i, kid := range p.kids {
			exprs[i] = compilePred(qc, kid)
		}
		return joinExprs(kw, exprs)
	case opNot:
		kid := p.kids[0]
		if kid.op == opIsNull {
			return NewBuilder(qc + " IS NOT NULL")
		}
		return NewBuilder("NOT").Parens(compilePred(qc, kid))
	default:
		return NewBuilder(qc+" = ?", p.v)
	}
}

func inList(qc, kw string, vs []any) *Builder {
	marks := make([]string, len(vs))
	for i := range marks {
		marks[i] = "?"
	}
	return NewBuilder(fmt.Sprintf("%s %s (%s)", qc, kw, strings.Join(marks, ", ")), vs)
}
