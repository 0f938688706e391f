package usage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// MigratePostgres applies the embedded usage schema to a Postgres database.
func MigratePostgres(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres migrate driver: %w", err)
	}
	return runMigrations(driver, "migrations/postgres", "postgres")
}

// MigrateSQLite applies the embedded usage schema to a SQLite database.
func MigrateSQLite(db *sql.DB) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migrate driver: %w", err)
	}
	return runMigrations(driver, "migrations/sqlite", "sqlite")
}

func runMigrations(driver database.Driver, dir, name string) error {
	src, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, name, driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply %s migrations: %w", name, err)
	}
	return nil
}
