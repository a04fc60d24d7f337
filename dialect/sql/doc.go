// Package sql provides the SQL statement builder, condition compiler
// and debug renderer at the heart of quern, together with the
// database/sql driver adapter that executes finished builders.
//
// # Builder
//
// Builder accumulates SQL text fragments and an ordered parameter list.
// Clause methods append their keyword and delegate to Append, so any
// statement shape can be assembled fluently:
//
//	b := sql.Select().From("users").
//	    Where(sql.M{"status": "active", "age": sql.GTE(18)}).
//	    OrderBy("created_at").
//	    Limit(10)
//	query, args := b.Query()
//
// Appending one builder into another copies its text and parameters; a
// sub-builder can be reused afterwards without corrupting the receiver.
//
// # Conditions
//
// Conditions are mappings from column names to values or tagged
// operator predicates:
//
//	sql.M{"name": "john"}                      // `name` = ?
//	sql.M{"age": sql.GT(18)}                   // `age` > ?
//	sql.M{"id": sql.In(1, 2, 3)}               // `id` IN (?, ?, ?)
//	sql.M{"email": sql.Not(sql.IsNull())}      // `email` IS NOT NULL
//	sql.M{"n": sql.AnyOf(sql.LT(2), sql.GT(7))}
//
// Keys of a mapping are joined with AND; an empty mapping compiles to
// the literal TRUE. Raw SQL strings with trailing parameters and nested
// *Builder values are accepted wherever a condition is.
//
// # Debug rendering
//
// Render substitutes parameters into the text as SQL literals for
// diagnostic logging. The output is display-grade only and must never
// be executed.
//
// # DDL
//
// CreateTable, CreateIndex and DropTable produce builders pre-loaded
// with DDL text. Identifier names are interpolated directly and must be
// trusted input.
package sql
