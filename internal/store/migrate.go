package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const catalogMigrationsPath = "migrations/catalog"

//go:embed migrations/catalog/*.sql
var migrationsFS embed.FS

// MigrateCatalogDB applies catalog.db migrations.
func MigrateCatalogDB(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("migrate %s: nil db", catalogMigrationsPath)
	}

	sourceDriver, err := iofs.New(migrationsFS, catalogMigrationsPath)
	if err != nil {
		return fmt.Errorf("migrate %s: init source: %w", catalogMigrationsPath, err)
	}

	dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("migrate %s: init db driver: %w", catalogMigrationsPath, err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("migrate %s: init migrator: %w", catalogMigrationsPath, err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: up: %w", catalogMigrationsPath, err)
	}
	return nil
}
