package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/syssam/factory"
	"github.com/syssam/factory/dialect"
)

// Source is a factory.DataSource backed by a SQL database. The connection
// is opened and checked on Initialize, not on construction.
type Source struct {
	dialect string
	dsn     string
	db      *sql.DB
	schema  []string
	stats   []StatsOption
	log     *slog.Logger
	open    func(driverName, dsn string) (*sql.DB, error)

	mu    sync.Mutex
	ready atomic.Bool
	drv   dialect.Driver
}

// Option configures a Source.
type Option func(*Source)

// WithDB uses an already opened database instead of opening the DSN.
func WithDB(db *sql.DB) Option {
	return func(s *Source) {
		s.db = db
	}
}

// WithSchema sets statements executed once on Initialize, in order. They
// typically create the tables the seeders write to.
func WithSchema(stmts ...string) Option {
	return func(s *Source) {
		s.schema = append(s.schema, stmts...)
	}
}

// WithStats wraps the driver with a StatsDriver configured by opts.
func WithStats(opts ...StatsOption) Option {
	return func(s *Source) {
		s.stats = append(s.stats, opts...)
		if s.stats == nil {
			s.stats = []StatsOption{}
		}
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Source) {
		s.log = log
	}
}

// NewSource returns an uninitialized Source for the given dialect and DSN.
func NewSource(dialectName, dsn string, opts ...Option) *Source {
	s := &Source{dialect: dialectName, dsn: dsn, open: sql.Open}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Dialect returns the dialect name of the source.
func (s *Source) Dialect() string { return s.dialect }

// IsInitialized implements factory.DataSource.
func (s *Source) IsInitialized() bool { return s.ready.Load() }

// Initialize opens and pings the database and runs the schema statements.
// Calls after the first successful one are no-ops.
func (s *Source) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready.Load() {
		return nil
	}
	if err := dialect.Validate(s.dialect); err != nil {
		return err
	}
	db := s.db
	if db == nil {
		var err error
		if db, err = s.open(DriverName(s.dialect), s.dsn); err != nil {
			return fmt.Errorf("dialect/sql: open %s: %w", s.dialect, err)
		}
	}
	drv, err := s.setup(ctx, db)
	if err != nil {
		// A handle opened here is not kept on failure.
		if s.db == nil {
			err = errors.Join(err, db.Close())
		}
		return err
	}
	s.db, s.drv = db, drv
	s.ready.Store(true)
	s.log.DebugContext(ctx, "data source initialized", "dialect", s.dialect, "schema", len(s.schema))
	return nil
}

// setup pings db and runs the schema statements on the driver wrapping it.
func (s *Source) setup(ctx context.Context, db *sql.DB) (dialect.Driver, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("dialect/sql: ping %s: %w", s.dialect, err)
	}
	var drv dialect.Driver = OpenDB(s.dialect, db)
	if s.stats != nil {
		drv = NewStatsDriver(drv, s.stats...)
	}
	for _, stmt := range s.schema {
		if err := drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return nil, fmt.Errorf("dialect/sql: schema: %w", err)
		}
	}
	return drv, nil
}

// Manager implements factory.DataSource.
func (s *Source) Manager() factory.EntityManager {
	return &Manager{source: s}
}

// Driver returns the driver, or nil before Initialize.
func (s *Source) Driver() dialect.Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drv
}

// Stats returns the statistics of the source, or nil if it was not
// configured WithStats or is not initialized.
func (s *Source) Stats() *Stats {
	if sd, ok := s.Driver().(*StatsDriver); ok {
		return sd.Stats()
	}
	return nil
}

// Close closes the database if it was opened.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if sd, ok := s.drv.(*StatsDriver); ok {
		s.log.Info("data source closed", "dialect", s.dialect, "stats", sd.Stats().Snapshot())
	}
	s.ready.Store(false)
	s.drv = nil
	return s.db.Close()
}

var _ factory.DataSource = (*Source)(nil)
