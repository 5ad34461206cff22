package factory

import "context"

// DataSource is the persistence collaborator used by Create. Implementations
// must make Initialize idempotent.
type DataSource interface {
	// IsInitialized reports whether Initialize has completed.
	IsInitialized() bool
	// Initialize prepares the source (opens connections, runs setup).
	Initialize(ctx context.Context) error
	// Manager returns the entity manager used to save entities.
	Manager() EntityManager
}

// EntityManager saves entities.
type EntityManager interface {
	// Save persists a single entity pointer or a slice of entity pointers
	// and returns the same shape with persistence-assigned fields (such as
	// generated ids) populated.
	Save(ctx context.Context, entity any, opts SaveOptions) (any, error)
}

// SaveOptions are passed through to EntityManager.Save unchanged, including
// to the saves of nested entities.
type SaveOptions struct {
	// Chunk splits slice saves into batches of this size. Zero saves the
	// slice in one batch.
	Chunk int
	// Transaction asks the manager to wrap the save in a transaction.
	Transaction bool
}
