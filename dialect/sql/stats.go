package sql

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/syssam/factory/dialect"
)

// Stats collects what a seeding run did against the database: the
// statements it ran and the rows it committed per table.
type Stats struct {
	mu   sync.Mutex
	snap Snapshot
}

// Snapshot is a copy of Stats taken at one point in time.
type Snapshot struct {
	Statements int64
	Errors     int64
	Slow       int64
	Elapsed    time.Duration
	// Rows counts committed inserts by table name.
	Rows map[string]int64
}

// Snapshot returns a copy of the current statistics.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap
	snap.Rows = maps.Clone(s.snap.Rows)
	return snap
}

func (s *Stats) statement(elapsed time.Duration, slow bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Statements++
	s.snap.Elapsed += elapsed
	if slow {
		s.snap.Slow++
	}
	if err != nil {
		s.snap.Errors++
	}
}

func (s *Stats) committed(rows map[string]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Rows == nil {
		s.snap.Rows = make(map[string]int64, len(rows))
	}
	for table, n := range rows {
		s.snap.Rows[table] += n
	}
}

// Inserted returns the number of committed rows over all tables.
func (s Snapshot) Inserted() int64 {
	var n int64
	for _, c := range s.Rows {
		n += c
	}
	return n
}

// LogValue implements slog.LogValuer.
func (s Snapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("statements", s.Statements),
		slog.Int64("errors", s.Errors),
		slog.Int64("slow", s.Slow),
		slog.Duration("elapsed", s.Elapsed),
		slog.Int64("rows", s.Inserted()),
	)
}

// SlowHook is called for a statement that ran longer than the threshold.
type SlowHook func(ctx context.Context, query string, args []any, elapsed time.Duration)

// StatsDriver is a dialect.Driver recording every statement, including
// those run in its transactions, into Stats.
type StatsDriver struct {
	dialect.Driver
	stats     *Stats
	threshold time.Duration
	hook      SlowHook
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which a statement is slow.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.threshold = d
	}
}

// WithSlowHook sets the function called for slow statements.
func WithSlowHook(hook SlowHook) StatsOption {
	return func(s *StatsDriver) {
		s.hook = hook
	}
}

// WithSlowLog logs slow statements at warn level. A nil logger uses
// slog.Default().
func WithSlowLog(log *slog.Logger) StatsOption {
	if log == nil {
		log = slog.Default()
	}
	return WithSlowHook(func(ctx context.Context, query string, args []any, elapsed time.Duration) {
		log.WarnContext(ctx, "slow statement", "elapsed", elapsed, "query", query, "args", len(args))
	})
}

// NewStatsDriver wraps drv.
//
//	src := sql.NewSource(dialect.Postgres, dsn, sql.WithStats(
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowLog(logger),
//	))
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{
		Driver:    drv,
		stats:     &Stats{},
		threshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns the statistics recorded by the driver.
func (d *StatsDriver) Stats() *Stats { return d.stats }

// Query implements dialect.ExecQuerier.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	return d.observe(ctx, query, args, func() error {
		return d.Driver.Query(ctx, query, args, v)
	})
}

// Exec implements dialect.ExecQuerier.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	return d.observe(ctx, query, args, func() error {
		return d.Driver.Exec(ctx, query, args, v)
	})
}

// Tx starts a transaction whose statements are recorded too.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &statsTx{Tx: tx, driver: d}, nil
}

func (d *StatsDriver) observe(ctx context.Context, query string, args any, run func() error) error {
	start := time.Now()
	err := run()
	elapsed := time.Since(start)
	slow := elapsed > d.threshold
	d.stats.statement(elapsed, slow, err)
	if slow && d.hook != nil {
		argv, _ := args.([]any)
		d.hook(ctx, query, argv, elapsed)
	}
	return err
}

type statsTx struct {
	dialect.Tx
	driver *StatsDriver
}

func (tx *statsTx) Query(ctx context.Context, query string, args, v any) error {
	return tx.driver.observe(ctx, query, args, func() error {
		return tx.Tx.Query(ctx, query, args, v)
	})
}

func (tx *statsTx) Exec(ctx context.Context, query string, args, v any) error {
	return tx.driver.observe(ctx, query, args, func() error {
		return tx.Tx.Exec(ctx, query, args, v)
	})
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*statsTx)(nil)
)
