package factory

import (
	"context"
	"reflect"
	"sync"
)

// resolvable is implemented by *Lazy. The unexported method keeps the set of
// resolved fields to this package's attribute types.
type resolvable interface {
	resolve(ctx context.Context, rs resolveScope) error
}

var resolvableType = reflect.TypeFor[resolvable]()

// lazyField locates a Lazy attribute, or a slice of them.
type lazyField struct {
	index []int
	slice bool
}

var lazyFieldCache sync.Map // reflect.Type -> []lazyField

// lazyFields returns the exported Lazy attributes of struct type t in field
// order. Fields promoted through embedded pointers are skipped.
func lazyFields(t reflect.Type) []lazyField {
	if fs, ok := lazyFieldCache.Load(t); ok {
		return fs.([]lazyField)
	}
	var fields []lazyField
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || throughPointer(t, f.Index) {
			continue
		}
		switch {
		case reflect.PointerTo(f.Type).Implements(resolvableType):
			fields = append(fields, lazyField{index: f.Index})
		case f.Type.Kind() == reflect.Slice && reflect.PointerTo(f.Type.Elem()).Implements(resolvableType):
			fields = append(fields, lazyField{index: f.Index, slice: true})
		}
	}
	lazyFieldCache.Store(t, fields)
	return fields
}

func throughPointer(t reflect.Type, index []int) bool {
	for _, i := range index[:len(index)-1] {
		f := t.Field(i)
		if f.Type.Kind() == reflect.Pointer {
			return true
		}
		t = f.Type
	}
	return false
}

// resolveEntity resolves every pending attribute of an entity pointer.
// Errors from nested factories and deferred values are returned unmodified.
func resolveEntity(ctx context.Context, entity any, rs resolveScope) error {
	v, ok := structValue(entity)
	if !ok {
		return nil
	}
	for _, lf := range lazyFields(v.Type()) {
		f := v.FieldByIndex(lf.index)
		if !lf.slice {
			if err := f.Addr().Interface().(resolvable).resolve(ctx, rs); err != nil {
				return err
			}
			continue
		}
		for i := 0; i < f.Len(); i++ {
			if err := f.Index(i).Addr().Interface().(resolvable).resolve(ctx, rs); err != nil {
				return err
			}
		}
	}
	return nil
}

// Unresolved returns the names of attributes of an entity pointer that still
// hold pending values.
func Unresolved(entity any) []string {
	v, ok := structValue(entity)
	if !ok {
		return nil
	}
	var names []string
	for _, lf := range lazyFields(v.Type()) {
		f := v.FieldByIndex(lf.index)
		name := v.Type().FieldByIndex(lf.index).Name
		if !lf.slice {
			if f.Addr().Interface().(interface{ Pending() bool }).Pending() {
				names = append(names, name)
			}
			continue
		}
		for i := 0; i < f.Len(); i++ {
			if f.Index(i).Addr().Interface().(interface{ Pending() bool }).Pending() {
				names = append(names, name)
				break
			}
		}
	}
	return names
}
