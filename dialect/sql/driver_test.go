package sql

import (
	"context"
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/factory"
	"github.com/syssam/factory/dialect"
)

type account struct {
	ID      int64  `db:"id"`
	Email   string `db:"email"`
	Name    string
	Tags    []string
	Skip    string `db:"-"`
	private string
}

type membership struct {
	ID      int64                  `db:"id"`
	Account factory.Lazy[*account] `db:"account_id"`
	Since   time.Time
	Note    *string
	Raw     []byte
}

func (membership) TableName() string { return "members" }

type Model struct {
	ID      int64
	Created time.Time
}

type item struct {
	Model
	Name  string
	Audit *audit
}

type audit struct {
	By string
}

type linked struct {
	*audit
	Item factory.Lazy[*item] `db:"item_id"`
}

func (linked) TableName() string { return "links" }

func TestOpenDB(t *testing.T) {
	tests := []struct {
		name    string
		dialect string
	}{
		{"Postgres", dialect.Postgres},
		{"MySQL", dialect.MySQL},
		{"SQLite", dialect.SQLite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			drv := OpenDB(tt.dialect, db)
			assert.NotNil(t, drv)
			assert.Equal(t, tt.dialect, drv.Dialect())
			assert.Same(t, db, drv.DB())
		})
	}
}

func TestOpen(t *testing.T) {
	_, err := Open("oracle", "")
	assert.Error(t, err)

	drv, err := Open(dialect.SQLite, "file::memory:")
	require.NoError(t, err)
	assert.Equal(t, dialect.SQLite, drv.Dialect())
	require.NoError(t, drv.Close())
}

func TestDriverName(t *testing.T) {
	assert.Equal(t, "postgres", DriverName(dialect.Postgres))
	assert.Equal(t, "mysql", DriverName(dialect.MySQL))
	assert.Equal(t, "sqlite", DriverName(dialect.SQLite))
}

func TestDriverExec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.SQLite, db)
	ctx := context.Background()

	t.Run("NoResult", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM users").WillReturnResult(sqlmock.NewResult(0, 2))
		require.NoError(t, drv.Exec(ctx, "DELETE FROM users", []any{}, nil))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Result", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO users").WithArgs("a").WillReturnResult(sqlmock.NewResult(4, 1))
		var res sql.Result
		require.NoError(t, drv.Exec(ctx, "INSERT INTO users (name) VALUES (?)", []any{"a"}, &res))
		id, err := res.LastInsertId()
		require.NoError(t, err)
		assert.Equal(t, int64(4), id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InvalidTypes", func(t *testing.T) {
		assert.Error(t, drv.Exec(ctx, "SELECT 1", "args", nil))
		assert.Error(t, drv.Exec(ctx, "SELECT 1", []any{}, new(int)))
		assert.Error(t, drv.Query(ctx, "SELECT 1", []any{}, nil))
		assert.Error(t, drv.Query(ctx, "SELECT 1", "args", &Rows{}))
	})
}

func TestDriverQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.Postgres, db)

	mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "Alice").
			AddRow(2, "Bob"))
	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT id, name FROM users", []any{}, rows))
	var names []string
	for rows.Next() {
		var (
			id   int
			name string
		)
		require.NoError(t, rows.Scan(&id, &name))
		names = append(names, name)
	}
	require.NoError(t, rows.Close())
	assert.Equal(t, []string{"Alice", "Bob"}, names)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.MySQL, db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "INSERT INTO users () VALUES ()", []any{}, nil))
	require.NoError(t, tx.Commit())

	mock.ExpectBegin()
	mock.ExpectRollback()
	tx, err = drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuilder(t *testing.T) {
	tests := []struct {
		dialect   string
		cols      []string
		returning string
		want      string
	}{
		{dialect.Postgres, []string{"name", "email"}, "id", `INSERT INTO "users" ("name", "email") VALUES ($1, $2) RETURNING "id"`},
		{dialect.Postgres, nil, "id", `INSERT INTO "users" DEFAULT VALUES RETURNING "id"`},
		{dialect.MySQL, []string{"name", "email"}, "id", "INSERT INTO `users` (`name`, `email`) VALUES (?, ?)"},
		{dialect.MySQL, nil, "", "INSERT INTO `users` () VALUES ()"},
		{dialect.SQLite, []string{"name"}, "id", `INSERT INTO "users" ("name") VALUES (?)`},
		{dialect.SQLite, nil, "", `INSERT INTO "users" DEFAULT VALUES`},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			assert.Equal(t, tt.want, Dialect(tt.dialect).Insert("users", tt.cols, tt.returning))
		})
	}
	assert.Equal(t, "`a``b`", Dialect(dialect.MySQL).Quote("a`b"))
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "accounts", TableName(&account{}))
	assert.Equal(t, "members", TableName(&membership{}))
}

func TestColumns(t *testing.T) {
	names := func(cs []column) []string {
		var out []string
		for _, c := range cs {
			out = append(out, c.name)
		}
		return out
	}

	cs := columns(reflect.TypeFor[account]())
	assert.Equal(t, []string{"id", "email", "name"}, names(cs))
	assert.True(t, cs[0].pk)
	assert.False(t, cs[1].pk)

	cs = columns(reflect.TypeFor[membership]())
	assert.Equal(t, []string{"id", "account_id", "since", "note", "raw"}, names(cs))

	cs = columns(reflect.TypeFor[item]())
	assert.Equal(t, []string{"id", "created", "name"}, names(cs))
	assert.True(t, cs[0].pk)
	assert.Equal(t, []int{0, 0}, cs[0].index)

	cs = columns(reflect.TypeFor[linked]())
	assert.Equal(t, []string{"item_id"}, names(cs))
}
