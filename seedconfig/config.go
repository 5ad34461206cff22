// Package seedconfig loads seeding configuration from YAML and turns it into
// a data source and a factory client.
//
//	driver: sql
//	dialect: postgres
//	dsn: ${DATABASE_URL}
//	schema:
//	  - CREATE TABLE IF NOT EXISTS users (id SERIAL PRIMARY KEY, name TEXT)
//	seeders: [users, pets]
//	save:
//	  chunk: 100
//	  transaction: true
//
// Environment variables in the file are expanded before parsing.
package seedconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/factory"
	"github.com/syssam/factory/dialect"
	"github.com/syssam/factory/dialect/sql"
	"github.com/syssam/factory/gormstore"
	"github.com/syssam/factory/memstore"
)

// Drivers.
const (
	DriverSQL    = "sql"
	DriverGorm   = "gorm"
	DriverMemory = "memory"
)

// Config is the seeding configuration.
type Config struct {
	Driver        string        `yaml:"driver"`
	Dialect       string        `yaml:"dialect"`
	DSN           string        `yaml:"dsn"`
	Schema        []string      `yaml:"schema"`
	Pool          Pool          `yaml:"pool"`
	SlowThreshold time.Duration `yaml:"slow_threshold"`
	MaxDepth      int           `yaml:"max_depth"`
	LogLevel      string        `yaml:"log_level"`
	Seeders       []string      `yaml:"seeders"`
	Save          Save          `yaml:"save"`
}

// Pool configures the connection pool of the gorm driver.
type Pool struct {
	MaxOpen         int           `yaml:"max_open"`
	MaxIdle         int           `yaml:"max_idle"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Save holds the save options applied by the seed runner.
type Save struct {
	Chunk       int  `yaml:"chunk"`
	Transaction bool `yaml:"transaction"`
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("seedconfig: failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it and validates the
// result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{Driver: DriverSQL}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("seedconfig: failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Driver {
	case DriverMemory:
	case DriverSQL, DriverGorm:
		if err := dialect.Validate(c.Dialect); err != nil {
			errs = append(errs, err)
		}
		if c.DSN == "" {
			errs = append(errs, errors.New("dsn is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown driver %q", c.Driver))
	}
	if len(c.Schema) > 0 && c.Driver != DriverSQL {
		errs = append(errs, fmt.Errorf("schema statements require the %q driver", DriverSQL))
	}
	if c.Save.Chunk < 0 {
		errs = append(errs, errors.New("save.chunk must not be negative"))
	}
	if c.MaxDepth < 0 {
		errs = append(errs, errors.New("max_depth must not be negative"))
	}
	if _, err := c.level(); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]bool, len(c.Seeders))
	for _, name := range c.Seeders {
		if seen[name] {
			errs = append(errs, fmt.Errorf("seeder %q listed twice", name))
		}
		seen[name] = true
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("seedconfig: invalid config: %w", err)
	}
	return nil
}

func (c *Config) level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Logger returns a text logger writing to stderr at the configured level.
func (c *Config) Logger() *slog.Logger {
	l, _ := c.level()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// SaveOptions returns the configured save options.
func (c *Config) SaveOptions() factory.SaveOptions {
	return factory.SaveOptions{Chunk: c.Save.Chunk, Transaction: c.Save.Transaction}
}

// Open returns the uninitialized data source described by the configuration.
func (c *Config) Open(log *slog.Logger) (factory.DataSource, error) {
	if log == nil {
		log = slog.Default()
	}
	switch c.Driver {
	case DriverMemory:
		return memstore.New(memstore.WithLogger(log)), nil
	case DriverGorm:
		opts := gormstore.DefaultOptions()
		opts.Dialect, opts.DSN, opts.Logger = c.Dialect, c.DSN, log
		if c.Pool.MaxOpen > 0 {
			opts.MaxOpenConns = c.Pool.MaxOpen
		}
		if c.Pool.MaxIdle > 0 {
			opts.MaxIdleConns = c.Pool.MaxIdle
		}
		if c.Pool.ConnMaxLifetime > 0 {
			opts.ConnMaxLifetime = c.Pool.ConnMaxLifetime
		}
		if c.SlowThreshold > 0 {
			opts.SlowThreshold = c.SlowThreshold
		}
		return gormstore.New(opts)
	case DriverSQL:
		opts := []sql.Option{sql.WithLogger(log), sql.WithSchema(c.Schema...)}
		if c.SlowThreshold > 0 {
			opts = append(opts, sql.WithStats(
				sql.WithSlowThreshold(c.SlowThreshold),
				sql.WithSlowLog(log),
			))
		}
		return sql.NewSource(c.Dialect, c.DSN, opts...), nil
	default:
		return nil, fmt.Errorf("seedconfig: unknown driver %q", c.Driver)
	}
}

// Client opens the data source and returns a client bound to it. A nil
// logger uses Logger.
func (c *Config) Client(log *slog.Logger, opts ...factory.ClientOption) (*factory.Client, error) {
	if log == nil {
		log = c.Logger()
	}
	src, err := c.Open(log)
	if err != nil {
		return nil, err
	}
	base := []factory.ClientOption{factory.WithLogger(log)}
	if c.MaxDepth > 0 {
		base = append(base, factory.WithMaxDepth(c.MaxDepth))
	}
	return factory.NewClient(src, append(base, opts...)...), nil
}
