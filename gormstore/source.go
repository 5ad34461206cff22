// Package gormstore persists seeded entities with gorm.
//
// Entities follow gorm's conventions: the table is the pluralized snake case
// of the type name, the primary key is the ID field. A Lazy attribute is
// written through its driver.Valuer; attributes holding related entities need
// an explicit column type, for example `gorm:"column:owner_id;type:bigint"`,
// so that gorm does not mistake them for associations.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/syssam/factory"
	"github.com/syssam/factory/dialect"
)

// Options holds configuration for gorm connections.
type Options struct {
	Dialect         string        // mysql, postgres or sqlite
	DSN             string        // Database connection string
	MaxIdleConns    int           // Maximum number of idle connections
	MaxOpenConns    int           // Maximum number of open connections
	ConnMaxLifetime time.Duration // Maximum connection lifetime
	// Migrate lists models passed to AutoMigrate on Initialize.
	Migrate []any
	// SkipDefaultTransaction disables gorm's implicit transaction around
	// single creates.
	SkipDefaultTransaction bool
	Logger                 *slog.Logger
	// SlowThreshold is the duration above which statements are logged at
	// warn level. Default is 200ms.
	SlowThreshold time.Duration
}

// DefaultOptions returns default options.
func DefaultOptions() Options {
	return Options{
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		SlowThreshold:   200 * time.Millisecond,
	}
}

// Source is a factory.DataSource backed by gorm.
type Source struct {
	opts      Options
	dialector gorm.Dialector

	mu    sync.Mutex
	ready atomic.Bool
	db    *gorm.DB
}

// New returns an uninitialized Source for opts.Dialect and opts.DSN.
func New(opts Options) (*Source, error) {
	if opts.DSN == "" {
		return nil, errors.New("gormstore: DSN is required")
	}
	d, err := Dialector(opts.Dialect, opts.DSN)
	if err != nil {
		return nil, err
	}
	return NewWithDialector(d, opts), nil
}

// NewWithDialector returns an uninitialized Source using d.
func NewWithDialector(d gorm.Dialector, opts Options) *Source {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SlowThreshold == 0 {
		opts.SlowThreshold = 200 * time.Millisecond
	}
	return &Source{opts: opts, dialector: d}
}

// Dialector returns the gorm dialector for a dialect name.
func Dialector(name, dsn string) (gorm.Dialector, error) {
	switch name {
	case dialect.MySQL:
		return mysql.Open(dsn), nil
	case dialect.Postgres:
		return postgres.Open(dsn), nil
	case dialect.SQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("gormstore: unsupported dialect %q", name)
	}
}

// IsInitialized implements factory.DataSource.
func (s *Source) IsInitialized() bool { return s.ready.Load() }

// Initialize opens the database, configures the pool, pings and migrates.
func (s *Source) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready.Load() {
		return nil
	}
	db, err := gorm.Open(s.dialector, &gorm.Config{
		Logger:                 newLogger(s.opts.Logger, s.opts.SlowThreshold),
		SkipDefaultTransaction: s.opts.SkipDefaultTransaction,
	})
	if err != nil {
		return fmt.Errorf("gormstore: open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("gormstore: failed to get underlying sql.DB: %w", err)
	}
	if s.opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(s.opts.MaxIdleConns)
	}
	if s.opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(s.opts.MaxOpenConns)
	}
	if s.opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(s.opts.ConnMaxLifetime)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("gormstore: database ping failed: %w", err)
	}
	if len(s.opts.Migrate) > 0 {
		if err := db.WithContext(ctx).AutoMigrate(s.opts.Migrate...); err != nil {
			return fmt.Errorf("gormstore: migrate: %w", err)
		}
	}
	s.db = db
	s.ready.Store(true)
	return nil
}

// DB returns the gorm handle, or nil before Initialize.
func (s *Source) DB() *gorm.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// Close closes the database connection.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("gormstore: failed to get underlying sql.DB: %w", err)
	}
	s.db = nil
	s.ready.Store(false)
	return sqlDB.Close()
}

// Manager implements factory.DataSource.
func (s *Source) Manager() factory.EntityManager { return manager{s} }

type manager struct {
	source *Source
}

// Save creates an entity pointer or a slice of them. Slices are created in
// batches of opts.Chunk when it is set.
func (m manager) Save(ctx context.Context, entity any, opts factory.SaveOptions) (any, error) {
	db := m.source.DB()
	if db == nil {
		return nil, errors.New("gormstore: save: source is not initialized")
	}
	create := func(tx *gorm.DB) error {
		if opts.Chunk > 0 {
			return tx.CreateInBatches(entity, opts.Chunk).Error
		}
		return tx.Create(entity).Error
	}
	db = db.WithContext(ctx)
	var err error
	if opts.Transaction {
		err = db.Transaction(create)
	} else {
		err = create(db)
	}
	if err != nil {
		return nil, fmt.Errorf("gormstore: save %s: %w", factory.TypeName(entity), err)
	}
	return entity, nil
}

var _ factory.DataSource = (*Source)(nil)
