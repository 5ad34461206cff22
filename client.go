package factory

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
)

// Client is the seeding handle shared by every factory in a graph. It binds
// the data source and holds the pool of per-factory configurations used
// when one factory obtains another.
type Client struct {
	source   DataSource
	pool     Pool
	log      *slog.Logger
	maxDepth int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithPool sets the per-factory configuration pool.
func WithPool(p Pool) ClientOption {
	return func(c *Client) { c.pool = p }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// WithMaxDepth bounds nested factory resolution. Non-positive values keep
// DefaultMaxDepth.
func WithMaxDepth(n int) ClientOption {
	return func(c *Client) { c.maxDepth = n }
}

// NewClient returns a client persisting through src.
func NewClient(src DataSource, opts ...ClientOption) *Client {
	c := &Client{source: src, pool: Pool{}, log: slog.Default(), maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(c)
	}
	if c.pool == nil {
		c.pool = Pool{}
	}
	if c.maxDepth <= 0 {
		c.maxDepth = DefaultMaxDepth
	}
	return c
}

// Source returns the bound data source.
func (c *Client) Source() DataSource { return c.source }

// Pool returns the per-factory configuration pool.
func (c *Client) Pool() Pool { return c.pool }

// Logger returns the client logger.
func (c *Client) Logger() *slog.Logger { return c.log }

// Initialize initializes the data source if needed. Create does the same
// lazily; calling it up front surfaces connection errors early.
func (c *Client) Initialize(ctx context.Context) error {
	if c.source == nil {
		return &MissingCollaboratorError{Entity: "client", Op: "initialize", Collaborator: "data source"}
	}
	if c.source.IsInitialized() {
		return nil
	}
	return c.source.Initialize(ctx)
}

// Pool maps a factory name (see Name) to its instance-time Config[T].
type Pool map[string]any

// Register stores cfg as the configuration of def in p.
func Register[T any](p Pool, def Definition[T], cfg Config[T]) {
	p[Name(def)] = cfg
}

// Name returns the identity of a definition: the result of its
// FactoryName method if any, else its package-qualified type name.
func Name(def any) string {
	if n, ok := def.(interface{ FactoryName() string }); ok {
		return n.FactoryName()
	}
	t := reflect.TypeOf(def)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "<nil>"
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// Use returns a factory for def configured from the client pool. The
// client's data source is always injected, so the factory can persist and
// resolve further nested factories.
func Use[T any](c *Client, def Definition[T]) (*Factory[T], error) {
	if c == nil {
		return nil, &MissingCollaboratorError{Entity: typeNameOf[T](), Op: "resolve", Collaborator: "client"}
	}
	var cfg Config[T]
	if raw, ok := c.pool[Name(def)]; ok {
		pc, ok := raw.(Config[T])
		if !ok {
			return nil, fmt.Errorf("factory: pool entry %q is %T, want %T", Name(def), raw, cfg)
		}
		cfg = pc
	}
	cfg.Source = c.source
	return &Factory[T]{def: def, cfg: cfg, client: c}, nil
}

// MustUse is like Use but panics on error.
func MustUse[T any](c *Client, def Definition[T]) *Factory[T] {
	f, err := Use(c, def)
	if err != nil {
		panic(err)
	}
	return f
}

// Related returns a Lazy entity built by def, obtained through the client of
// env at resolution time. Use it from Entity hooks to fill relations:
//
//	p.Owner = factory.Related[User](env, UserFactory{})
func Related[E any](env Env, def Definition[E]) Lazy[*E] {
	c := env.client
	return Lazy[*E]{pending: func(ctx context.Context, rs resolveScope) (*E, error) {
		f, err := Use(c, def)
		if err != nil {
			return nil, err
		}
		return f.produceEntity(ctx, rs)
	}}
}
