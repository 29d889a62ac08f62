// ============================================================================
// LSSEFT Store - persistent cache of computed results
// ============================================================================
//
// Package: internal/store
// File: store.go
// Purpose: gorm-backed relations keyed by token tuples, plus the
//          configuration-value tables that issue tokens.
//
// Layout:
//   config_<dimension>     one row per distinct scalar value (id = token)
//   config_model           one row per distinct cosmological model
//   config_power_spectrum  one row per distinct spectrum fingerprint
//   <relation>             one row per computed tuple, composite primary key
//                          over the token columns, msgpack payload
//
// Drivers:
//   sqlite (default, pure Go), mysql, postgres.
//
// Transactions:
//   Every write the master performs happens inside Transaction so a result
//   is either fully persisted or absent.
//
// ============================================================================

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/LBJ-Wade/LSSEFT-sub001/internal/logger"
	"github.com/LBJ-Wade/LSSEFT-sub001/pkg/types"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// Config selects and tunes the database connection.
type Config struct {
	Driver          string        `yaml:"driver" toml:"driver"` // sqlite, mysql, postgres
	DSN             string        `yaml:"dsn" toml:"dsn"`
	MaxIdleConns    int           `yaml:"max_idle_conns" toml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns" toml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" toml:"conn_max_lifetime"`
	// Tolerance is the relative tolerance for matching configuration values.
	Tolerance float64 `yaml:"tolerance" toml:"tolerance"`
	LogLevel  string  `yaml:"log_level" toml:"log_level"` // silent, error, warn, info
}

// Tx is the set of operations available inside and outside a transaction.
type Tx interface {
	Contains(ctx context.Context, relation string, key types.Key) (bool, error)
	Get(ctx context.Context, relation string, key types.Key, out any) error
	Insert(ctx context.Context, relation string, key types.Key, payload any) error
	Delete(ctx context.Context, relation string, keys []types.Key) (int64, error)
}

// DB is a handle on the store. Inside Transaction it is bound to the tx.
type DB struct {
	db        *gorm.DB
	tolerance float64
	log       *zap.Logger
}

var _ Tx = (*DB)(nil)

const defaultTolerance = 1e-8

// Open connects and migrates the configuration tables.
func Open(cfg Config) (*DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, cfg.Driver)
	}

	log := logger.Named("store")
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLogger(log, gormLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "" || cfg.Driver == "sqlite" {
		// a single writer avoids SQLITE_BUSY between pooled connections
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	tol := cfg.Tolerance
	if tol <= 0 {
		tol = defaultTolerance
	}
	s := &DB{db: gdb, tolerance: tol, log: log}
	if err := s.migrateConfig(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func gormLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// Close releases the connection pool.
func (s *DB) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn in one database transaction. Any error rolls back.
func (s *DB) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&DB{db: gtx, tolerance: s.tolerance, log: s.log})
	})
}

// EnsureRelations creates the result tables if they do not exist.
func (s *DB) EnsureRelations(ctx context.Context, relations ...string) error {
	for _, rel := range relations {
		if err := s.db.WithContext(ctx).Table(rel).AutoMigrate(&Row{}); err != nil {
			return fmt.Errorf("migrate relation %s: %w", rel, err)
		}
	}
	return nil
}
