// Package memstore provides an in-memory factory.DataSource for tests and
// dry runs. Saved entities are kept as msgpack snapshots, so later changes to
// an entity do not leak into the store.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/factory"
)

// Errors returned by the store.
var (
	ErrNotFound     = errors.New("memstore: entity not found")
	ErrDuplicateKey = errors.New("memstore: duplicate primary key")
)

var uuidType = reflect.TypeFor[uuid.UUID]()

// Rule inspects an entity before it is committed. A non-nil error aborts the
// whole save.
type Rule func(ctx context.Context, table string, entity any) error

type row struct {
	Key  string
	Data []byte
}

type table struct {
	Seq  int64
	Rows []row
}

func (t *table) index(key string) int {
	return slices.IndexFunc(t.Rows, func(r row) bool { return r.Key == key })
}

type state map[string]*table

func (s state) clone() state {
	c := make(state, len(s))
	for name, t := range s {
		c[name] = &table{Seq: t.Seq, Rows: slices.Clone(t.Rows)}
	}
	return c
}

// Store is an in-memory data source.
type Store struct {
	mu    sync.RWMutex
	state state
	rules []Rule
	log   *slog.Logger
	ready atomic.Bool
	inits atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithRule adds a rule evaluated for every saved entity.
func WithRule(r Rule) Option {
	return func(s *Store) {
		s.rules = append(s.rules, r)
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{state: state{}}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// IsInitialized implements factory.DataSource.
func (s *Store) IsInitialized() bool { return s.ready.Load() }

// Initialize implements factory.DataSource.
func (s *Store) Initialize(ctx context.Context) error {
	if s.ready.CompareAndSwap(false, true) {
		s.inits.Add(1)
		s.log.DebugContext(ctx, "memory store initialized")
	}
	return nil
}

// Initializations returns how many times the store was initialized.
func (s *Store) Initializations() int { return int(s.inits.Load()) }

// Manager implements factory.DataSource.
func (s *Store) Manager() factory.EntityManager { return manager{s} }

// Count returns the number of rows in a table.
func (s *Store) Count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.state[name]; ok {
		return len(t.Rows)
	}
	return 0
}

// Tables returns the sorted names of non-empty tables.
func (s *Store) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for name, t := range s.state {
		if len(t.Rows) > 0 {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Reset removes all rows and restarts the id sequences.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state{}
}

// Export encodes the store content.
func (s *Store) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return msgpack.Marshal(s.state)
}

// Import replaces the store content with data produced by Export.
func (s *Store) Import(data []byte) error {
	var st state
	if err := msgpack.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("memstore: import: %w", err)
	}
	if st == nil {
		st = state{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	return nil
}

// Find decodes the entity of type T stored under id.
func Find[T any](s *Store, id any) (*T, error) {
	name := tableOf(new(T))
	key := fmt.Sprint(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, name, key)
	}
	i := t.index(key)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, name, key)
	}
	e := new(T)
	if err := msgpack.Unmarshal(t.Rows[i].Data, e); err != nil {
		return nil, fmt.Errorf("memstore: decode %s %s: %w", name, key, err)
	}
	return e, nil
}

// All decodes every entity of type T in insertion order.
func All[T any](s *Store) ([]*T, error) {
	name := tableOf(new(T))
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state[name]
	if !ok {
		return []*T{}, nil
	}
	out := make([]*T, 0, len(t.Rows))
	for _, r := range t.Rows {
		e := new(T)
		if err := msgpack.Unmarshal(r.Data, e); err != nil {
			return nil, fmt.Errorf("memstore: decode %s %s: %w", name, r.Key, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func tableOf(entity any) string {
	if t, ok := entity.(factory.Tabler); ok {
		return t.TableName()
	}
	return factory.TypeName(entity)
}
