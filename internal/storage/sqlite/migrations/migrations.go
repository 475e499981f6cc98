package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/modernalchemist/magic-sub000/internal/log"
)

//go:embed sql/*.sql
var schemaFiles embed.FS

const schemaTable = "magic_schema_migrations"

// Apply brings the schema to the latest version and returns that version.
// Already migrated databases are a no-op.
func Apply(ctx context.Context, db *sql.DB, logger log.Logger) (uint, error) {
	var version uint
	err := withMigrate(ctx, db, logger, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("could not apply schema: %w", err)
		}

		v, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("could not get schema version: %w", err)
		}
		if dirty {
			return fmt.Errorf("schema version %d is dirty", v)
		}
		version = v
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Debugf("Schema at version %d", version)
	return version, nil
}

// Revert drops every table managed by the schema.
func Revert(ctx context.Context, db *sql.DB, logger log.Logger) error {
	return withMigrate(ctx, db, logger, func(m *migrate.Migrate) error {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("could not revert schema: %w", err)
		}
		return nil
	})
}

func withMigrate(ctx context.Context, db *sql.DB, logger log.Logger, fn func(m *migrate.Migrate) error) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = log.Noop
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: schemaTable})
	if err != nil {
		return fmt.Errorf("could not create schema driver: %w", err)
	}

	src, err := iofs.New(schemaFiles, "sql")
	if err != nil {
		return fmt.Errorf("could not load schema files: %w", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warningf("Could not close schema files: %s", err)
		}
	}()

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("could not prepare schema migration: %w", err)
	}

	// Stop between steps when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case m.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()

	return fn(m)
}
