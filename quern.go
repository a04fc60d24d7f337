// Package quern is a thin convenience layer over an embedded SQLite
// database: a fluent statement builder with a structured condition
// compiler (dialect/sql), a prepared-statement cache, builder-aware
// execution helpers, savepoint transactions, custom scalar SQL
// functions, a msgpack-backed query-result cache, and a small schema
// migrator (dialect/sql/schema).
//
// Typical usage:
//
//	db, err := quern.Open("app.db", quern.WithForeignKeys(), quern.WithWAL())
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	id, err := db.Insert(ctx, sql.Insert("users").Values(sql.M{
//		"name": "john", "age": 30,
//	}))
//
//	rows, err := db.All(ctx, sql.Select().From("users").
//		Where(sql.M{"age": sql.GTE(18)}).
//		OrderBy("name"))
//
// Statements are plain data until handed to DB or Tx; the builder holds
// no connection and is not safe for concurrent mutation. DB is safe for
// concurrent use.
package quern
