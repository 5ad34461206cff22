package sql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/syssam/factory/dialect"
)

// Driver is a dialect.Driver over a *sql.DB.
type Driver struct {
	Conn
	db *sql.DB
}

// Open opens a database of the given dialect with the database/sql driver
// registered for it. The connection is not checked.
func Open(dialectName, dsn string) (*Driver, error) {
	if err := dialect.Validate(dialectName); err != nil {
		return nil, err
	}
	db, err := sql.Open(DriverName(dialectName), dsn)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: open %s: %w", dialectName, err)
	}
	return OpenDB(dialectName, db), nil
}

// OpenDB returns a Driver speaking dialectName over db.
func OpenDB(dialectName string, db *sql.DB) *Driver {
	return &Driver{Conn: Conn{conn: db, dialect: dialectName}, db: db}
}

// DB returns the wrapped database.
func (d *Driver) DB() *sql.DB { return d.db }

// Tx begins a transaction with the default isolation level.
func (d *Driver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{Conn: Conn{conn: tx, dialect: d.dialect}, tx: tx}, nil
}

// Close closes the database.
func (d *Driver) Close() error { return d.db.Close() }

// Tx is a dialect.Tx over a *sql.Tx.
type Tx struct {
	Conn
	tx *sql.Tx
}

// Commit implements dialect.Tx.
func (tx *Tx) Commit() error { return tx.tx.Commit() }

// Rollback implements dialect.Tx.
func (tx *Tx) Rollback() error { return tx.tx.Rollback() }

// ExecQuerier is the part of *sql.DB and *sql.Tx a Conn runs statements on.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn adapts an ExecQuerier to dialect.ExecQuerier. Arguments are passed
// as []any; Exec writes into a *Result or nil, Query into a *Rows.
type Conn struct {
	conn    ExecQuerier
	dialect string
}

// Dialect returns the dialect name.
func (c Conn) Dialect() string { return c.dialect }

// Exec implements dialect.ExecQuerier.
func (c Conn) Exec(ctx context.Context, query string, args, v any) error {
	argv, err := argList(args)
	if err != nil {
		return err
	}
	res, ok := v.(*Result)
	if v != nil && !ok {
		return fmt.Errorf("dialect/sql: exec: got %T, want *sql.Result or nil", v)
	}
	r, err := c.conn.ExecContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: exec: %w", err)
	}
	if res != nil {
		*res = r
	}
	return nil
}

// Query implements dialect.ExecQuerier.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	rows, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: query: got %T, want *sql.Rows", v)
	}
	argv, err := argList(args)
	if err != nil {
		return err
	}
	r, err := c.conn.QueryContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	rows.Rows = r
	return nil
}

func argList(args any) ([]any, error) {
	argv, ok := args.([]any)
	if !ok {
		return nil, fmt.Errorf("dialect/sql: got %T arguments, want []any", args)
	}
	return argv, nil
}

type (
	// Rows holds the result of a Query.
	Rows struct{ *sql.Rows }
	// Result is the result of an Exec.
	Result = sql.Result
)

var (
	_ dialect.Driver = (*Driver)(nil)
	_ dialect.Tx     = (*Tx)(nil)
)
