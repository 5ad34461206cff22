// Package dialect names the SQL dialects supported by the seeding data
// sources and defines the driver interfaces they are built on.
//
// # Dialect Constants
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// # Driver Interface
//
//	type Driver interface {
//	    ExecQuerier
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// Both dialect/sql.Source and gormstore.Source accept these names when
// opening a database.
//
// # Sub-packages
//
//   - dialect/sql: database/sql driver, data source and entity manager
//   - dialect/sql/sqlerr: constraint error classification
package dialect
