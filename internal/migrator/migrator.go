// Package migrator applies the embedded postgres schema migrations using golang-migrate.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/blockedby/relaybot/internal/logger"
)

// Migrator runs schema migrations from an fs.FS of .sql files.
type Migrator struct {
	migrationsFS fs.FS
	log          *logger.Logger
}

// NewWithFS creates a Migrator reading migrations from migrationsFS.
func NewWithFS(migrationsFS fs.FS) (*Migrator, error) {
	if migrationsFS == nil {
		return nil, errors.New("migrationsFS cannot be nil")
	}
	return &Migrator{
		migrationsFS: migrationsFS,
		log:          logger.With("migrator"),
	}, nil
}

// DriverURL rewrites a postgres connection string to the pgx/v5 driver scheme.
func DriverURL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

func (m *Migrator) open(databaseURL string) (*migrate.Migrate, error) {
	if databaseURL == "" {
		return nil, errors.New("database URL cannot be empty")
	}
	src, err := iofs.New(m.migrationsFS, ".")
	if err != nil {
		return nil, fmt.Errorf("create iofs source: %w", err)
	}
	mg, err := migrate.NewWithSourceInstance("iofs", src, DriverURL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return mg, nil
}

// Up applies all pending migrations. An up-to-date schema is not an error.
func (m *Migrator) Up(_ context.Context, databaseURL string) error {
	mg, err := m.open(databaseURL)
	if err != nil {
		return err
	}
	defer mg.Close()

	if err := mg.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.log.Debug().Msg("migrator: schema up to date")
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}

	version, _, _ := mg.Version()
	m.log.Info().Uint("version", version).Msg("migrator: schema migrated")
	return nil
}

// Version returns the applied migration version and dirty flag.
// A database with no migrations reports version 0.
func (m *Migrator) Version(_ context.Context, databaseURL string) (uint, bool, error) {
	mg, err := m.open(databaseURL)
	if err != nil {
		return 0, false, err
	}
	defer mg.Close()

	version, dirty, err := mg.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get version: %w", err)
	}
	return version, dirty, nil
}
