// Package database manages the postgres pool and the gorm handle shared by repositories.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blockedby/relaybot/internal/migrator"
	"github.com/blockedby/relaybot/internal/models"
	"github.com/blockedby/relaybot/migrations"
)

// Dialect names as reported by gorm.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// DB wraps a postgres pool and a gorm instance over the same database.
// Pool is nil when running on sqlite.
type DB struct {
	Pool *pgxpool.Pool
	GORM *gorm.DB
	URL  string
}

// IsSQLite reports whether url selects the embedded sqlite backend.
func IsSQLite(url string) bool {
	return strings.HasPrefix(url, "sqlite://") || strings.HasPrefix(url, "file:") || url == ":memory:"
}

// New opens the database at url. postgres:// URLs get a pgx pool and a gorm
// handle; sqlite:// URLs get a gorm handle only.
func New(ctx context.Context, url string) (*DB, error) {
	if IsSQLite(url) {
		gdb, err := OpenSQLite(strings.TrimPrefix(url, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return &DB{GORM: gdb, URL: url}, nil
	}

	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	gdb, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: utcNow,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	return &DB{Pool: pool, GORM: gdb, URL: url}, nil
}

// OpenSQLite opens a gorm handle on a sqlite file or in-memory database with
// foreign keys enforced. In-memory databases are pinned to one connection so
// every query sees the same schema.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: utcNow,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if strings.Contains(dsn, ":memory:") {
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := gdb.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return gdb, nil
}

// AutoMigrate creates or updates every model table through gorm.
func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Migrate brings the schema up to date: embedded SQL migrations on postgres,
// gorm AutoMigrate on sqlite.
func (db *DB) Migrate(ctx context.Context) error {
	if db.Pool == nil {
		return AutoMigrate(db.GORM)
	}
	m, err := migrator.NewWithFS(migrations.FS)
	if err != nil {
		return err
	}
	return m.Up(ctx, db.URL)
}

func utcNow() time.Time { return time.Now().UTC() }

// Close releases the pool and the gorm connection.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if sqlDB, err := db.GORM.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if db.Pool != nil {
		return db.Pool.Ping(ctx)
	}
	sqlDB, err := db.GORM.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ErrNoPool is returned by pgx-only operations on a sqlite backend.
var ErrNoPool = errors.New("postgres pool not available")
