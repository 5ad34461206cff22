package factory

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Tabler is implemented by entities that name their own table or collection.
type Tabler interface {
	TableName() string
}

// TypeName returns the Go type name of an entity, without package or pointer.
func TypeName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "<nil>"
	}
	return t.Name()
}

func typeNameOf[T any]() string {
	return reflect.TypeFor[T]().Name()
}

var scannerType = reflect.TypeFor[sql.Scanner]()

var pkIndex sync.Map // reflect.Type -> []int (nil if none)

// primaryKeyField returns the field index of the primary key of struct type t.
// The primary key is the field tagged `factory:"pk"`, else the field tagged
// `db:"id"`, else the field named ID.
func primaryKeyField(t reflect.Type) []int {
	if idx, ok := pkIndex.Load(t); ok {
		return idx.([]int)
	}
	var tagged, dbID, named []int
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous || throughPointer(t, f.Index) {
			continue
		}
		switch {
		case hasTagOption(f.Tag.Get("factory"), "pk"):
			tagged = f.Index
		case tagName(f.Tag.Get("db")) == "id":
			dbID = f.Index
		case f.Name == "ID":
			named = f.Index
		}
	}
	idx := tagged
	if idx == nil {
		idx = dbID
	}
	if idx == nil {
		idx = named
	}
	pkIndex.Store(t, idx)
	return idx
}

// PrimaryKeyField returns the primary key field of the struct type t (or
// pointer to it), if one is declared.
func PrimaryKeyField(t reflect.Type) (reflect.StructField, bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return reflect.StructField{}, false
	}
	idx := primaryKeyField(t)
	if idx == nil {
		return reflect.StructField{}, false
	}
	return t.FieldByIndex(idx), true
}

// PrimaryKey returns the primary key value of an entity pointer and whether
// the entity type declares one.
func PrimaryKey(entity any) (any, bool) {
	v, ok := structValue(entity)
	if !ok {
		return nil, false
	}
	idx := primaryKeyField(v.Type())
	if idx == nil {
		return nil, false
	}
	return v.FieldByIndex(idx).Interface(), true
}

// HasPrimaryKey reports whether the entity declares a primary key holding a
// non-zero value.
func HasPrimaryKey(entity any) bool {
	v, ok := structValue(entity)
	if !ok {
		return false
	}
	idx := primaryKeyField(v.Type())
	return idx != nil && !v.FieldByIndex(idx).IsZero()
}

// SetPrimaryKey assigns id to the primary key of an entity pointer, converting
// between numeric kinds when needed.
func SetPrimaryKey(entity any, id any) error {
	v, ok := structValue(entity)
	if !ok {
		return fmt.Errorf("factory: set primary key: %T is not a pointer to struct", entity)
	}
	idx := primaryKeyField(v.Type())
	if idx == nil {
		return fmt.Errorf("factory: set primary key: %s declares no primary key", v.Type().Name())
	}
	f := v.FieldByIndex(idx)
	iv := reflect.ValueOf(id)
	switch {
	case !iv.IsValid():
		return fmt.Errorf("factory: set primary key: nil id for %s", v.Type().Name())
	case iv.Type().AssignableTo(f.Type()):
		f.Set(iv)
	case iv.CanInt() && f.CanInt():
		f.SetInt(iv.Int())
	case iv.CanInt() && f.CanUint():
		f.SetUint(uint64(iv.Int()))
	case iv.CanUint() && f.CanUint():
		f.SetUint(iv.Uint())
	case iv.CanUint() && f.CanInt():
		f.SetInt(int64(iv.Uint()))
	case iv.Type().ConvertibleTo(f.Type()) && iv.Kind() == f.Kind():
		f.Set(iv.Convert(f.Type()))
	case f.Addr().Type().Implements(scannerType):
		if err := f.Addr().Interface().(sql.Scanner).Scan(id); err != nil {
			return fmt.Errorf("factory: set primary key: %w", err)
		}
	default:
		return fmt.Errorf("factory: set primary key: cannot assign %T to %s.%s (%s)",
			id, v.Type().Name(), v.Type().FieldByIndex(idx).Name, f.Type())
	}
	return nil
}

// structValue dereferences a pointer to struct.
func structValue(entity any) (reflect.Value, bool) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return reflect.Value{}, false
	}
	v = v.Elem()
	return v, v.Kind() == reflect.Struct
}

// tagName returns the name part of a struct tag value.
func tagName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	return name
}

func hasTagOption(tag, opt string) bool {
	for _, part := range strings.Split(tag, ",") {
		if part == opt {
			return true
		}
	}
	return false
}
