package factory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Definition describes how to construct one kind of entity.
//
// Concrete definitions embed Base and override the hooks they need:
//
//	type UserFactory struct{ factory.Base[User] }
//
//	func (UserFactory) Config() factory.Config[User] {
//	    return factory.Config[User]{New: factory.Class[User]()}
//	}
//
//	func (UserFactory) Entity(_ context.Context, u *User, _ factory.Env) (*User, error) {
//	    u.Name = randomName()
//	    return u, nil
//	}
type Definition[T any] interface {
	// Config returns the definition-time configuration.
	Config() Config[T]
	// Entity populates e, a fresh instance from Config.New (nil when no
	// constructor is configured), and returns the entity to build.
	Entity(ctx context.Context, e *T, env Env) (*T, error)
	// Finalize runs on the resolved, and if requested persisted, entity.
	Finalize(ctx context.Context, e *T, env Env) error
}

// Base provides default hooks for definitions.
type Base[T any] struct{}

// Config returns an empty configuration.
func (Base[T]) Config() Config[T] { return Config[T]{} }

// Entity returns e unchanged. Without a constructor there is nothing to
// return, and it fails with a NotImplementedError.
func (Base[T]) Entity(_ context.Context, e *T, _ Env) (*T, error) {
	if e == nil {
		return nil, &NotImplementedError{Entity: typeNameOf[T]()}
	}
	return e, nil
}

// Finalize does nothing.
func (Base[T]) Finalize(context.Context, *T, Env) error { return nil }

// Env is handed to definition hooks.
type Env struct {
	// Vars is the construction context of the call.
	Vars    Vars
	client  *Client
	persist bool
}

// Client returns the client the factory was resolved from, or nil.
func (e Env) Client() *Client { return e.client }

// Persisting reports whether the call is a Create.
func (e Env) Persisting() bool { return e.persist }

// MapFunc mutates a generated entity before overrides are applied.
type MapFunc[T any] func(ctx context.Context, e *T) error

// Factory builds entities from a Definition. A Factory may be shared between
// goroutines; every call constructs a fresh entity.
type Factory[T any] struct {
	def    Definition[T]
	cfg    Config[T]
	client *Client

	mu    sync.RWMutex
	mapFn MapFunc[T]
	init  singleflight.Group
}

// New returns a factory for def with instance-time configuration cfg.
func New[T any](def Definition[T], cfg Config[T]) *Factory[T] {
	return &Factory[T]{def: def, cfg: cfg}
}

// Definition returns the definition the factory builds from.
func (f *Factory[T]) Definition() Definition[T] { return f.def }

// Client returns the client the factory was resolved from, or nil.
func (f *Factory[T]) Client() *Client { return f.client }

// Map registers fn to run on every subsequently built entity, after the
// Entity hook and before overrides. It replaces any previous function and
// returns f for chaining.
func (f *Factory[T]) Map(fn MapFunc[T]) *Factory[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mapFn = fn
	return f
}

// Make builds one entity without persisting it.
func (f *Factory[T]) Make(ctx context.Context, p Params, vars Vars, opts ...Option[T]) (*T, error) {
	return f.build(ctx, false, p, vars, opts)
}

// Create builds one entity and saves it through the data source. Nested
// factory attributes are created too.
func (f *Factory[T]) Create(ctx context.Context, p Params, vars Vars, opts ...Option[T]) (*T, error) {
	return f.build(ctx, true, p, vars, opts)
}

// MakeMany calls Make n times in sequence.
func (f *Factory[T]) MakeMany(ctx context.Context, n int, p Params, vars Vars, opts ...Option[T]) ([]*T, error) {
	return f.many(ctx, n, false, p, vars, opts)
}

// CreateMany calls Create n times in sequence.
func (f *Factory[T]) CreateMany(ctx context.Context, n int, p Params, vars Vars, opts ...Option[T]) ([]*T, error) {
	return f.many(ctx, n, true, p, vars, opts)
}

func (f *Factory[T]) many(ctx context.Context, n int, persist bool, p Params, vars Vars, opts []Option[T]) ([]*T, error) {
	if n < 0 {
		return nil, fmt.Errorf("factory: %s: negative amount %d", typeNameOf[T](), n)
	}
	out := make([]*T, 0, n)
	for range n {
		e, err := f.build(ctx, persist, p, vars, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

type depthKey struct{}

// DefaultMaxDepth bounds nested factory resolution when no client sets a limit.
const DefaultMaxDepth = 32

func (f *Factory[T]) maxDepth() int {
	if f.client != nil && f.client.maxDepth > 0 {
		return f.client.maxDepth
	}
	return DefaultMaxDepth
}

func (f *Factory[T]) logger() *slog.Logger {
	if f.client != nil && f.client.log != nil {
		return f.client.log
	}
	return slog.Default()
}

// build runs one construction. The order of the steps is part of the
// contract: nothing observable happens before the context check, and
// persistence only sees fully resolved entities.
func (f *Factory[T]) build(ctx context.Context, persist bool, p Params, vars Vars, opts []Option[T]) (*T, error) {
	var c call[T]
	for _, opt := range opts {
		opt(&c)
	}
	cfg := Merge(c.cfg, f.cfg, f.def.Config())
	name := typeNameOf[T]()

	depth, _ := ctx.Value(depthKey{}).(int)
	if depth++; depth > f.maxDepth() {
		return nil, &DepthError{Entity: name, Limit: f.maxDepth()}
	}
	ctx = context.WithValue(ctx, depthKey{}, depth)

	if err := Check(vars, cfg.Required...); err != nil {
		var mce *MissingContextError
		if errors.As(err, &mce) {
			mce.Entity = name
		}
		return nil, err
	}
	if persist && cfg.Source == nil {
		return nil, &MissingCollaboratorError{Entity: name, Op: "persist", Collaborator: "data source"}
	}

	hooks := f.def
	if cfg.Override != nil {
		hooks = cfg.Override
	}
	env := Env{Vars: vars, client: f.client, persist: persist}
	var fresh *T
	if cfg.New != nil {
		fresh = cfg.New()
	}
	e, err := hooks.Entity(ctx, fresh, env)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, &NotImplementedError{Entity: name}
	}

	f.mu.RLock()
	mapFn := f.mapFn
	f.mu.RUnlock()
	if mapFn != nil {
		if err := mapFn(ctx, e); err != nil {
			return nil, err
		}
	}
	if err := Apply(e, p); err != nil {
		return nil, err
	}
	if err := resolveEntity(ctx, e, resolveScope{persist: persist, save: c.save}); err != nil {
		return nil, err
	}
	if persist {
		if err := f.persist(ctx, cfg.Source, e, c.save); err != nil {
			return nil, err
		}
	}
	if err := hooks.Finalize(ctx, e, env); err != nil {
		return nil, err
	}
	return e, nil
}

func (f *Factory[T]) persist(ctx context.Context, src DataSource, e *T, opts SaveOptions) error {
	if !src.IsInitialized() {
		_, err, _ := f.init.Do("init", func() (any, error) {
			if src.IsInitialized() {
				return nil, nil
			}
			return nil, src.Initialize(ctx)
		})
		if err != nil {
			return err
		}
	}
	saved, err := src.Manager().Save(ctx, e, opts)
	if err != nil {
		return err
	}
	switch s := saved.(type) {
	case *T:
		if s != nil && s != e {
			*e = *s
		}
	case T:
		*e = s
	case nil:
	default:
		return fmt.Errorf("factory: save %s: manager returned %T", typeNameOf[T](), saved)
	}
	if log := f.logger(); log.Enabled(ctx, slog.LevelDebug) {
		id, _ := PrimaryKey(e)
		log.DebugContext(ctx, "entity persisted", "entity", typeNameOf[T](), "id", id)
	}
	return nil
}

// producer is implemented by *Factory so that overrides may set a Lazy
// attribute to a factory of any entity type.
type producer interface {
	produce(ctx context.Context, rs resolveScope) (any, error)
	entityType() reflect.Type
}

func (f *Factory[T]) produce(ctx context.Context, rs resolveScope) (any, error) {
	e, err := f.produceEntity(ctx, rs)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (f *Factory[T]) produceEntity(ctx context.Context, rs resolveScope) (*T, error) {
	if rs.persist {
		return f.build(ctx, true, nil, nil, []Option[T]{WithSave[T](rs.save)})
	}
	return f.build(ctx, false, nil, nil, nil)
}

func (f *Factory[T]) entityType() reflect.Type {
	return reflect.TypeFor[*T]()
}
