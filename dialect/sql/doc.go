// Package sql persists seeded entities through database/sql.
//
// A Source is a factory.DataSource. It opens its database lazily, the first
// time a factory creates an entity or Initialize is called, and then runs
// the configured schema statements:
//
//	src := sql.NewSource(dialect.SQLite, "file:seed.db",
//	    sql.WithSchema(`CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY, name TEXT)`),
//	    sql.WithStats(sql.WithSlowLog(logger)),
//	)
//	client := factory.NewClient(src)
//
// # Mapping
//
// Entities are inserted into the table named by their TableName method, or
// the pluralized snake case of their type name. Columns come from `db` tags,
// falling back to the snake case of the field name. A zero primary key is
// left to the database and read back with RETURNING on Postgres and
// LastInsertId elsewhere. Fields promoted from an embedded struct, such as a
// shared base model, are mapped like the entity's own fields.
//
// Lazy attributes holding related entities are written as the primary key
// of the related entity.
//
// # Statistics
//
// WithStats records the statements a Source runs and the rows it commits per
// table. Close logs the totals.
//
// # Drivers
//
// The package registers lib/pq for Postgres, go-sql-driver/mysql for MySQL
// and modernc.org/sqlite for SQLite.
package sql
