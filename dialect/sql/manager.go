package sql

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/syssam/factory"
	"github.com/syssam/factory/dialect"
	"github.com/syssam/factory/dialect/sql/sqlerr"
)

// Manager inserts entities through the driver of a Source.
type Manager struct {
	source *Source
}

// Save inserts an entity pointer or a slice of entity pointers. Generated
// primary keys are written back using RETURNING on Postgres and
// LastInsertId on the other dialects. Slices are inserted in transactions
// of opts.Chunk rows; a single entity runs in a transaction only if
// opts.Transaction is set.
func (m *Manager) Save(ctx context.Context, entity any, opts factory.SaveOptions) (any, error) {
	drv := m.source.Driver()
	if drv == nil {
		return nil, errors.New("dialect/sql: save: source is not initialized")
	}
	v := reflect.ValueOf(entity)
	switch {
	case v.Kind() == reflect.Slice:
		if err := m.saveMany(ctx, drv, v, opts); err != nil {
			return nil, err
		}
	case !opts.Transaction:
		table, err := m.insert(ctx, drv, entity)
		if err != nil {
			return nil, err
		}
		m.committed(map[string]int64{table: 1})
	default:
		rows := make(map[string]int64, 1)
		err := withTx(ctx, drv, func(tx dialect.Tx) error {
			table, err := m.insert(ctx, tx, entity)
			rows[table]++
			return err
		})
		if err != nil {
			return nil, err
		}
		m.committed(rows)
	}
	return entity, nil
}

func (m *Manager) saveMany(ctx context.Context, drv dialect.Driver, v reflect.Value, opts factory.SaveOptions) error {
	n := v.Len()
	chunk := opts.Chunk
	if chunk <= 0 || chunk > n {
		chunk = n
	}
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		rows := make(map[string]int64, 1)
		err := withTx(ctx, drv, func(tx dialect.Tx) error {
			for i := start; i < end; i++ {
				table, err := m.insert(ctx, tx, v.Index(i).Interface())
				if err != nil {
					return err
				}
				rows[table]++
			}
			return nil
		})
		if err != nil {
			return err
		}
		m.committed(rows)
	}
	return nil
}

// committed adds rows to the source statistics, if collected.
func (m *Manager) committed(rows map[string]int64) {
	if st := m.source.Stats(); st != nil {
		st.committed(rows)
	}
}

// insert writes one entity and returns the table it was written to.
func (m *Manager) insert(ctx context.Context, ex dialect.ExecQuerier, entity any) (string, error) {
	ev := reflect.ValueOf(entity)
	if ev.Kind() != reflect.Pointer || ev.IsNil() || ev.Elem().Kind() != reflect.Struct {
		return "", fmt.Errorf("dialect/sql: save: %T is not a pointer to struct", entity)
	}
	ev = ev.Elem()
	var (
		table = TableName(entity)
		names []string
		args  []any
		pk    string
	)
	for _, c := range columns(ev.Type()) {
		fv := ev.FieldByIndex(c.index)
		if c.pk && fv.IsZero() {
			pk = c.name
			continue
		}
		names = append(names, c.name)
		args = append(args, fv.Interface())
	}
	b := Dialect(m.source.Dialect())
	query := b.Insert(table, names, pk)
	if pk != "" && b.dialect == dialect.Postgres {
		id, err := queryID(ctx, ex, query, args)
		if err != nil {
			return table, sqlerr.Wrap(table, err)
		}
		return table, factory.SetPrimaryKey(entity, id)
	}
	var res Result
	if err := ex.Exec(ctx, query, args, &res); err != nil {
		return table, sqlerr.Wrap(table, err)
	}
	if pk == "" {
		return table, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return table, fmt.Errorf("dialect/sql: insert into %s: last insert id: %w", table, err)
	}
	return table, factory.SetPrimaryKey(entity, id)
}

func queryID(ctx context.Context, ex dialect.ExecQuerier, query string, args []any) (any, error) {
	rows := &Rows{}
	if err := ex.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("dialect/sql: insert returned no rows")
	}
	var id any
	if err := rows.Scan(&id); err != nil {
		return nil, err
	}
	return id, rows.Err()
}

// withTx runs fn in a transaction, rolling back if fn fails.
func withTx(ctx context.Context, drv dialect.Driver, fn func(dialect.Tx) error) error {
	tx, err := drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = errors.Join(err, fmt.Errorf("dialect/sql: rollback: %w", rerr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dialect/sql: commit: %w", err)
	}
	return nil
}

var _ factory.EntityManager = (*Manager)(nil)
