// Package factory opens the configured database and builds its repositories.
package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/showcase-portal/internal/config"
	"github.com/prn-tf/showcase-portal/internal/repository"
	"github.com/prn-tf/showcase-portal/internal/repository/migrate"
	"github.com/prn-tf/showcase-portal/internal/repository/postgres"
	"github.com/prn-tf/showcase-portal/internal/repository/sqlite"
)

// Migrator applies and reports schema migrations.
type Migrator interface {
	Migrate(ctx context.Context) error
	MigrationStatus(ctx context.Context) ([]migrate.Status, error)
	SchemaVersion(ctx context.Context) (int, error)
}

// Database bundles an open database with its repositories.
type Database struct {
	Repos    *repository.Repositories
	Health   repository.DatabaseHealth
	Migrator Migrator
	Driver   string
}

// Close closes the underlying connection.
func (d *Database) Close() error {
	return d.Health.Close()
}

// Open connects to the database selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*Database, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return &Database{
			Repos:    postgres.NewRepositories(db),
			Health:   db,
			Migrator: db,
			Driver:   cfg.Driver,
		}, nil

	case "sqlite":
		db, err := sqlite.NewDB(ctx, SQLiteConfig(cfg), logger)
		if err != nil {
			return nil, err
		}
		return &Database{
			Repos:    sqlite.NewRepositories(db),
			Health:   db,
			Migrator: db,
			Driver:   cfg.Driver,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

// SQLiteConfig maps the shared database settings onto the SQLite driver.
func SQLiteConfig(cfg config.DatabaseConfig) sqlite.Config {
	sc := sqlite.DefaultConfig(cfg.Path)
	if cfg.JournalMode != "" {
		sc.JournalMode = cfg.JournalMode
	}
	if cfg.BusyTimeout > 0 {
		sc.BusyTimeout = cfg.BusyTimeout
	}
	if cfg.SynchronousMode != "" {
		sc.SynchronousMode = cfg.SynchronousMode
	}
	if cfg.ConnMaxLifetime > 0 {
		sc.ConnMaxLifetime = cfg.ConnMaxLifetime
	} else {
		sc.ConnMaxLifetime = time.Hour
	}
	return sc
}

var (
	_ Migrator = (*postgres.DB)(nil)
	_ Migrator = (*sqlite.DB)(nil)
)
