package memstore

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/factory"
)

type manager struct {
	store *Store
}

// Save stores an entity pointer or a slice of them. Saves are always
// all-or-nothing: the rows are written to a copy of the store state that
// replaces it only when every entity was accepted. Chunking is ignored.
func (m manager) Save(ctx context.Context, entity any, _ factory.SaveOptions) (any, error) {
	var entities []any
	if v := reflect.ValueOf(entity); v.Kind() == reflect.Slice {
		for i := range v.Len() {
			entities = append(entities, v.Index(i).Interface())
		}
	} else {
		entities = []any{entity}
	}

	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	var keyed []any
	for _, e := range entities {
		assigned, err := s.insert(ctx, next, e)
		if assigned {
			keyed = append(keyed, e)
		}
		if err != nil {
			// Keys generated for the discarded state are taken back.
			for _, k := range keyed {
				clearKey(k)
			}
			return nil, err
		}
	}
	s.state = next
	return entity, nil
}

// insert adds entity to st. It reports whether a primary key was generated
// and written to entity, also when the insert fails afterwards.
func (s *Store) insert(ctx context.Context, st state, entity any) (bool, error) {
	ev := reflect.ValueOf(entity)
	if ev.Kind() != reflect.Pointer || ev.IsNil() || ev.Elem().Kind() != reflect.Struct {
		return false, fmt.Errorf("memstore: save: %T is not a pointer to struct", entity)
	}
	name := tableOf(entity)
	t, ok := st[name]
	if !ok {
		t = &table{}
		st[name] = t
	}
	key, assigned, err := assignKey(t, entity)
	if err != nil {
		return false, err
	}
	if t.index(key) >= 0 {
		return assigned, fmt.Errorf("%w: %s %s", ErrDuplicateKey, name, key)
	}
	for _, rule := range s.rules {
		if err := rule(ctx, name, entity); err != nil {
			return assigned, err
		}
	}
	data, err := msgpack.Marshal(entity)
	if err != nil {
		return assigned, fmt.Errorf("memstore: encode %s: %w", name, err)
	}
	t.Rows = append(t.Rows, row{Key: key, Data: data})
	return assigned, nil
}

// assignKey generates a primary key for entities that have none. Integer
// keys come from a per-table sequence, string keys are random UUIDs. It
// reports whether the key was written to the entity.
func assignKey(t *table, entity any) (string, bool, error) {
	f, ok := factory.PrimaryKeyField(reflect.TypeOf(entity))
	if !ok {
		t.Seq++
		return fmt.Sprint(t.Seq), false, nil
	}
	if factory.HasPrimaryKey(entity) {
		id, _ := factory.PrimaryKey(entity)
		return fmt.Sprint(id), false, nil
	}
	var id any
	switch {
	case f.Type == uuidType:
		id = uuid.New()
	case f.Type.Kind() == reflect.String:
		id = uuid.NewString()
	default:
		t.Seq++
		id = t.Seq
	}
	if err := factory.SetPrimaryKey(entity, id); err != nil {
		return "", false, fmt.Errorf("memstore: %w", err)
	}
	return fmt.Sprint(id), true, nil
}

// clearKey resets the primary key of an entity pointer to its zero value.
func clearKey(entity any) {
	if f, ok := factory.PrimaryKeyField(reflect.TypeOf(entity)); ok {
		reflect.ValueOf(entity).Elem().FieldByIndex(f.Index).SetZero()
	}
}
