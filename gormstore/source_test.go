package gormstore_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"

	"github.com/syssam/factory"
	"github.com/syssam/factory/dialect"
	"github.com/syssam/factory/gormstore"
)

type Widget struct {
	ID   int64
	Name string
	Nick factory.Lazy[string]
}

type WidgetFactory struct {
	factory.Base[Widget]
}

func (WidgetFactory) Config() factory.Config[Widget] {
	return factory.Config[Widget]{New: factory.Class[Widget]()}
}

func (WidgetFactory) Entity(_ context.Context, w *Widget, _ factory.Env) (*Widget, error) {
	w.Name = "sprocket"
	w.Nick = factory.Defer(func(context.Context) (string, error) { return "spr", nil })
	return w, nil
}

const insertWidgets = `INSERT INTO "widgets" (.+) RETURNING "id"`

func newMockSource(t *testing.T, log *slog.Logger) (*gormstore.Source, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	src := gormstore.NewWithDialector(postgres.New(postgres.Config{Conn: db}), gormstore.Options{
		SkipDefaultTransaction: true,
		Logger:                 log,
	})
	return src, mock
}

func TestNew(t *testing.T) {
	_, err := gormstore.New(gormstore.Options{Dialect: dialect.SQLite})
	assert.Error(t, err, "DSN is required")

	_, err = gormstore.New(gormstore.Options{Dialect: "oracle", DSN: "x"})
	assert.Error(t, err)

	for _, name := range []string{dialect.MySQL, dialect.Postgres, dialect.SQLite} {
		d, err := gormstore.Dialector(name, "dsn")
		require.NoError(t, err)
		assert.Equal(t, name, d.Name())
	}

	defaults := gormstore.DefaultOptions()
	assert.Equal(t, 10, defaults.MaxIdleConns)
	assert.Equal(t, 100, defaults.MaxOpenConns)
}

func TestSourceWithFactory(t *testing.T) {
	ctx := context.Background()
	src, mock := newMockSource(t, nil)
	mock.ExpectQuery(insertWidgets).
		WithArgs("sprocket", "spr").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	widgets := factory.MustUse[Widget](factory.NewClient(src), WidgetFactory{})
	w, err := widgets.Create(ctx, nil, nil)
	require.NoError(t, err)
	assert.True(t, src.IsInitialized())
	assert.Equal(t, int64(5), w.ID)
	assert.Equal(t, "spr", w.Nick.Get())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManagerSave(t *testing.T) {
	ctx := context.Background()

	t.Run("NotInitialized", func(t *testing.T) {
		src, _ := newMockSource(t, nil)
		_, err := src.Manager().Save(ctx, &Widget{}, factory.SaveOptions{})
		assert.Error(t, err)
	})

	t.Run("Batches", func(t *testing.T) {
		src, mock := newMockSource(t, nil)
		require.NoError(t, src.Initialize(ctx))
		mock.ExpectQuery(insertWidgets).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
		mock.ExpectQuery(insertWidgets).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

		batch := []*Widget{{Name: "a"}, {Name: "b"}, {Name: "c"}}
		_, err := src.Manager().Save(ctx, batch, factory.SaveOptions{Chunk: 2})
		require.NoError(t, err)
		for i, w := range batch {
			assert.Equal(t, int64(i+1), w.ID)
		}
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Transaction", func(t *testing.T) {
		src, mock := newMockSource(t, nil)
		require.NoError(t, src.Initialize(ctx))
		mock.ExpectBegin()
		mock.ExpectQuery(insertWidgets).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))
		mock.ExpectCommit()

		w := &Widget{Name: "tx"}
		_, err := src.Manager().Save(ctx, w, factory.SaveOptions{Transaction: true})
		require.NoError(t, err)
		assert.Equal(t, int64(8), w.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error", func(t *testing.T) {
		var buf bytes.Buffer
		src, mock := newMockSource(t, slog.New(slog.NewTextHandler(&buf, nil)))
		require.NoError(t, src.Initialize(ctx))
		mock.ExpectQuery(insertWidgets).WillReturnError(errors.New(`duplicate key value violates unique constraint "widgets_name_key"`))

		_, err := src.Manager().Save(ctx, &Widget{Name: "dup"}, factory.SaveOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "gormstore: save Widget")
		assert.Contains(t, buf.String(), "statement failed")
	})

	t.Run("Close", func(t *testing.T) {
		src, mock := newMockSource(t, nil)
		require.NoError(t, src.Initialize(ctx))
		mock.ExpectClose()
		require.NoError(t, src.Close())
		assert.False(t, src.IsInitialized())
		assert.Nil(t, src.DB())
		require.NoError(t, src.Close())
	})
}
