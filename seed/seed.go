// Package seed runs named seeders against a factory client.
//
//	r := seed.NewRunner(client)
//	r.MustRegister("users", seed.Func(func(ctx context.Context, c *factory.Client) error {
//	    _, err := factory.MustUse[User](c, UserFactory{}).
//	        CreateMany(ctx, 10, nil, nil, factory.WithSave[User](seed.SaveOptions(ctx)))
//	    return err
//	}))
//	err := r.Run(ctx)
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/syssam/factory"
	"github.com/syssam/factory/seedconfig"
)

// ErrUnknownSeeder is returned when Run names a seeder that is not registered.
var ErrUnknownSeeder = errors.New("seed: unknown seeder")

// Seeder populates a data source.
type Seeder interface {
	Seed(ctx context.Context, c *factory.Client) error
}

// Func adapts a function to a Seeder.
type Func func(ctx context.Context, c *factory.Client) error

// Seed calls f.
func (f Func) Seed(ctx context.Context, c *factory.Client) error { return f(ctx, c) }

// Error reports the seeder that failed.
type Error struct {
	Seeder string
	Err    error
}

// Error returns the error string.
func (e *Error) Error() string {
	return fmt.Sprintf("seed: %s: %v", e.Seeder, e.Err)
}

// Unwrap returns the seeder error.
func (e *Error) Unwrap() error { return e.Err }

type saveKey struct{}

// SaveOptions returns the save options of the running seeder.
func SaveOptions(ctx context.Context) factory.SaveOptions {
	opts, _ := ctx.Value(saveKey{}).(factory.SaveOptions)
	return opts
}

// Runner runs registered seeders sequentially.
type Runner struct {
	client  *factory.Client
	seeders map[string]Seeder
	names   []string
	order   []string
	save    factory.SaveOptions
	log     *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithOrder sets the seeders Run executes when called without names.
func WithOrder(names ...string) Option {
	return func(r *Runner) {
		r.order = names
	}
}

// WithSave sets the options returned by SaveOptions inside seeders.
func WithSave(opts factory.SaveOptions) Option {
	return func(r *Runner) {
		r.save = opts
	}
}

// NewRunner returns a runner using the client. Logging goes to the client
// logger.
func NewRunner(c *factory.Client, opts ...Option) *Runner {
	r := &Runner{client: c, seeders: map[string]Seeder{}, log: slog.Default()}
	if c != nil {
		r.log = c.Logger()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewFromConfig builds the client described by cfg and a runner executing
// cfg.Seeders with cfg's save options.
func NewFromConfig(cfg *seedconfig.Config, log *slog.Logger) (*Runner, error) {
	c, err := cfg.Client(log)
	if err != nil {
		return nil, err
	}
	return NewRunner(c, WithOrder(cfg.Seeders...), WithSave(cfg.SaveOptions())), nil
}

// Client returns the runner's client.
func (r *Runner) Client() *factory.Client { return r.client }

// Register adds a named seeder.
func (r *Runner) Register(name string, s Seeder) error {
	if _, ok := r.seeders[name]; ok {
		return fmt.Errorf("seed: seeder %q already registered", name)
	}
	r.seeders[name] = s
	r.names = append(r.names, name)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Runner) MustRegister(name string, s Seeder) {
	if err := r.Register(name, s); err != nil {
		panic(err)
	}
}

// Run initializes the data source and runs the named seeders in order. With
// no names it runs the configured order, or every seeder in registration
// order. It stops at the first failure.
func (r *Runner) Run(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		names = r.order
	}
	if len(names) == 0 {
		names = r.names
	}
	for _, name := range names {
		if _, ok := r.seeders[name]; !ok {
			return fmt.Errorf("%w %q", ErrUnknownSeeder, name)
		}
	}
	if r.client == nil {
		return &factory.MissingCollaboratorError{Entity: "seeders", Op: "run", Collaborator: "client"}
	}
	if err := r.client.Initialize(ctx); err != nil {
		return err
	}
	ctx = context.WithValue(ctx, saveKey{}, r.save)
	for _, name := range names {
		start := time.Now()
		r.log.InfoContext(ctx, "seeding", "seeder", name)
		if err := r.seeders[name].Seed(ctx, r.client); err != nil {
			r.log.ErrorContext(ctx, "seeder failed", "seeder", name, "error", err)
			return &Error{Seeder: name, Err: err}
		}
		r.log.InfoContext(ctx, "seeded", "seeder", name, "duration", time.Since(start))
	}
	return nil
}
