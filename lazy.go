package factory

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// errUnresolved is returned when a pending Lazy is serialized.
var errUnresolved = errors.New("factory: lazy value is not resolved")

// resolveScope carries the mode of the enclosing construction call into
// nested resolution.
type resolveScope struct {
	persist bool
	save    SaveOptions
}

// Lazy is an entity attribute whose value may not be known when the Entity
// hook runs: a deferred computation, a running asynchronous computation, or
// an entity produced by another factory. Pending values are resolved before
// Make or Create returns.
//
//	type Pet struct {
//	    ID    int64
//	    Name  string
//	    Owner factory.Lazy[*User] `db:"owner_id"`
//	}
//
// The zero Lazy is resolved and holds the zero value of V.
type Lazy[V any] struct {
	val     V
	pending func(context.Context, resolveScope) (V, error)
}

// Of returns a resolved Lazy holding v.
func Of[V any](v V) Lazy[V] {
	return Lazy[V]{val: v}
}

// Defer returns a Lazy computed by fn when the entity is resolved.
func Defer[V any](fn func(ctx context.Context) (V, error)) Lazy[V] {
	return Lazy[V]{pending: func(ctx context.Context, _ resolveScope) (V, error) {
		return fn(ctx)
	}}
}

// Awaiter is a promise-like value.
type Awaiter[V any] interface {
	Await(ctx context.Context) (V, error)
}

// Await returns a Lazy resolved by awaiting a.
func Await[V any](a Awaiter[V]) Lazy[V] {
	return Lazy[V]{pending: func(ctx context.Context, _ resolveScope) (V, error) {
		return a.Await(ctx)
	}}
}

// Async starts fn in a new goroutine and returns a Lazy that awaits its
// result during resolution.
func Async[V any](ctx context.Context, fn func(ctx context.Context) (V, error)) Lazy[V] {
	p := &promise[V]{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.val, p.err = fn(ctx)
	}()
	return Await[V](p)
}

// promise is the Awaiter behind Async. It may be awaited any number of times.
type promise[V any] struct {
	done chan struct{}
	val  V
	err  error
}

func (p *promise[V]) Await(ctx context.Context) (V, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Sub returns a Lazy holding the entity built by f: created when the
// enclosing call persists, made otherwise.
func Sub[E any](f *Factory[E]) Lazy[*E] {
	return Lazy[*E]{pending: func(ctx context.Context, rs resolveScope) (*E, error) {
		return f.produceEntity(ctx, rs)
	}}
}

// Get returns the resolved value. It returns the zero value while pending.
func (l Lazy[V]) Get() V {
	return l.val
}

// Pending reports whether the value still needs resolution.
func (l Lazy[V]) Pending() bool {
	return l.pending != nil
}

// resolve replaces a pending value by its result.
func (l *Lazy[V]) resolve(ctx context.Context, rs resolveScope) error {
	if l.pending == nil {
		return nil
	}
	v, err := l.pending(ctx, rs)
	if err != nil {
		return err
	}
	*l = Lazy[V]{val: v}
	return nil
}

// assign implements override merge for Lazy attributes.
func (l *Lazy[V]) assign(x any) error {
	switch x := x.(type) {
	case nil:
		*l = Lazy[V]{}
	case Lazy[V]:
		*l = x
	case producer:
		want := reflect.TypeFor[V]()
		if reflect.ValueOf(x).IsNil() {
			return fmt.Errorf("%w: nil factory into %s", ErrAttributeType, want)
		}
		if got := x.entityType(); !got.AssignableTo(want) {
			return fmt.Errorf("%w: factory of %s into %s", ErrAttributeType, got, want)
		}
		*l = Lazy[V]{pending: func(ctx context.Context, rs resolveScope) (V, error) {
			e, err := x.produce(ctx, rs)
			if err != nil {
				var zero V
				return zero, err
			}
			return e.(V), nil
		}}
	case V:
		*l = Of(x)
	default:
		return fmt.Errorf("%w: %T into %s", ErrAttributeType, x, reflect.TypeFor[Lazy[V]]())
	}
	return nil
}

// Value implements driver.Valuer. An entity pointer is stored as its primary key.
func (l Lazy[V]) Value() (driver.Value, error) {
	if l.pending != nil {
		return nil, errUnresolved
	}
	var v any = l.val
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		return nil, nil
	}
	if pk, ok := PrimaryKey(v); ok {
		v = pk
	}
	if valuer, ok := v.(driver.Valuer); ok {
		return valuer.Value()
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

// MarshalJSON encodes the resolved value.
func (l Lazy[V]) MarshalJSON() ([]byte, error) {
	if l.pending != nil {
		return nil, errUnresolved
	}
	return json.Marshal(l.val)
}

// UnmarshalJSON decodes into a resolved value.
func (l *Lazy[V]) UnmarshalJSON(data []byte) error {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*l = Of(v)
	return nil
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (l Lazy[V]) EncodeMsgpack(enc *msgpack.Encoder) error {
	if l.pending != nil {
		return errUnresolved
	}
	return enc.Encode(l.val)
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (l *Lazy[V]) DecodeMsgpack(dec *msgpack.Decoder) error {
	var v V
	if err := dec.Decode(&v); err != nil {
		return err
	}
	*l = Of(v)
	return nil
}

var (
	_ driver.Valuer         = Lazy[int]{}
	_ json.Marshaler        = Lazy[int]{}
	_ msgpack.CustomEncoder = Lazy[int]{}
	_ msgpack.CustomDecoder = (*Lazy[int])(nil)
	_ json.Unmarshaler      = (*Lazy[int])(nil)
)
