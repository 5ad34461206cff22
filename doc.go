// Package factory builds entities for tests and database seeding.
//
// A Definition describes one entity type: how to construct it, which
// construction context it needs, and what to do once it is built. A Factory
// turns a definition into entities, either in memory (Make) or persisted
// through a DataSource (Create):
//
//	users := factory.New[User](UserFactory{}, factory.Config[User]{Source: src})
//	u, err := users.Create(ctx, factory.Params{"name": "ann"}, factory.Vars{"tenant": "acme"})
//
// # Construction
//
// Every call runs the same steps in order:
//
//  1. merge the call, instance and definition configuration
//  2. check the required context keys
//  3. run the Entity hook (of the override definition, if one is set)
//  4. run the map function
//  5. apply the attribute overrides
//  6. resolve pending Lazy attributes, creating nested entities first
//  7. save the entity when persisting
//  8. run the Finalize hook
//
// # Lazy attributes
//
// Attributes declared as Lazy[V] may hold a value that is only known at
// build time: a deferred computation, an asynchronous result, or an entity
// produced by another factory. After a call returns, no Lazy attribute of
// the entity is pending.
//
// # Clients
//
// A Client bundles a data source with a pool of per-factory configuration
// so that nested factories can be resolved by definition (see Use and
// Related).
//
// # Sub-packages
//
//   - dialect/sql: database/sql data source
//   - gormstore: gorm data source
//   - memstore: in-memory data source
//   - seedconfig: YAML configuration
//   - seed: named seeder runner
package factory
