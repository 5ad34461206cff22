package factory

// Config holds the construction configuration of a factory. It appears at
// three tiers: returned by Definition.Config (definition time), given to New
// or registered in a Pool (instance time), and built from call options (call
// time). Zero fields fall through to the next tier.
type Config[T any] struct {
	// Source persists entities on Create.
	Source DataSource
	// New returns a fresh entity handed to the Entity hook.
	New func() *T
	// Override replaces the definition's hooks. It lets one definition
	// delegate construction to another.
	Override Definition[T]
	// Required lists the context requirements checked before construction.
	// A non-nil empty slice clears requirements of lower tiers.
	Required []Requirement
}

// Merge resolves configuration tiers given in precedence order (highest
// first). For each field the first tier that sets it wins.
func Merge[T any](tiers ...Config[T]) Config[T] {
	var out Config[T]
	for _, c := range tiers {
		if out.Source == nil {
			out.Source = c.Source
		}
		if out.New == nil {
			out.New = c.New
		}
		if out.Override == nil {
			out.Override = c.Override
		}
		if out.Required == nil {
			out.Required = c.Required
		}
	}
	return out
}

// Option configures a single Make or Create call.
type Option[T any] func(*call[T])

type call[T any] struct {
	cfg  Config[T]
	save SaveOptions
}

// WithNew sets the entity constructor for this call.
func WithNew[T any](fn func() *T) Option[T] {
	return func(c *call[T]) { c.cfg.New = fn }
}

// WithOverride delegates the hooks of this call to def.
func WithOverride[T any](def Definition[T]) Option[T] {
	return func(c *call[T]) { c.cfg.Override = def }
}

// WithRequired replaces the context requirements for this call.
// Calling it with no requirements disables the check.
func WithRequired[T any](reqs ...Requirement) Option[T] {
	return func(c *call[T]) {
		if reqs == nil {
			reqs = []Requirement{}
		}
		c.cfg.Required = reqs
	}
}

// WithSource persists this call through src.
func WithSource[T any](src DataSource) Option[T] {
	return func(c *call[T]) { c.cfg.Source = src }
}

// WithSave sets the save options of a Create call. They propagate to nested
// entities created during resolution.
func WithSave[T any](opts SaveOptions) Option[T] {
	return func(c *call[T]) { c.save = opts }
}

// Class returns a constructor allocating a zero T, for use as Config.New.
func Class[T any]() func() *T {
	return func() *T { return new(T) }
}
