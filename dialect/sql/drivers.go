package sql

import (
	"github.com/syssam/factory/dialect"

	_ "github.com/go-sql-driver/mysql" // registers "mysql"
	_ "github.com/lib/pq"              // registers "postgres"
	_ "modernc.org/sqlite"             // registers "sqlite"
)

// DriverName returns the database/sql driver name registered for a dialect.
func DriverName(dialectName string) string {
	switch dialectName {
	case dialect.Postgres:
		return "postgres"
	case dialect.MySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}
