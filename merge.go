package factory

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// Params maps attribute names to override values. Names match the Go field
// name, the `factory` tag name, or the `json` tag name of an exported field.
type Params map[string]any

// assigner is implemented by *Lazy.
type assigner interface {
	assign(v any) error
}

var attrIndexCache sync.Map // reflect.Type -> map[string][]int

func attrIndex(t reflect.Type) map[string][]int {
	if idx, ok := attrIndexCache.Load(t); ok {
		return idx.(map[string][]int)
	}
	idx := make(map[string][]int)
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous || throughPointer(t, f.Index) {
			continue
		}
		idx[f.Name] = f.Index
		for _, key := range []string{"factory", "json"} {
			if name := tagName(f.Tag.Get(key)); name != "" && name != "-" {
				if _, taken := idx[name]; !taken {
					idx[name] = f.Index
				}
			}
		}
	}
	attrIndexCache.Store(t, idx)
	return idx
}

// Apply assigns every override in p onto the entity pointer. Keys are applied
// in sorted order and each value must be assignable to its attribute.
func Apply(entity any, p Params) error {
	if len(p) == 0 {
		return nil
	}
	v, ok := structValue(entity)
	if !ok {
		return fmt.Errorf("factory: apply overrides: %T is not a pointer to struct", entity)
	}
	idx := attrIndex(v.Type())
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fi, ok := idx[k]
		if !ok {
			return &AttributeError{Entity: v.Type().Name(), Name: k, Err: ErrUnknownAttribute}
		}
		if err := assignField(v.FieldByIndex(fi), p[k]); err != nil {
			return &AttributeError{Entity: v.Type().Name(), Name: k, Err: err}
		}
	}
	return nil
}

func assignField(f reflect.Value, x any) error {
	if a, ok := f.Addr().Interface().(assigner); ok {
		return a.assign(x)
	}
	if x == nil {
		switch f.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			f.SetZero()
			return nil
		}
		return fmt.Errorf("%w: nil into %s", ErrAttributeType, f.Type())
	}
	xv := reflect.ValueOf(x)
	if !xv.Type().AssignableTo(f.Type()) {
		return fmt.Errorf("%w: %s into %s", ErrAttributeType, xv.Type(), f.Type())
	}
	f.Set(xv)
	return nil
}
