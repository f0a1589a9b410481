package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationFS embed.FS

// Migrate brings the documents schema up to date. driver is the
// database/sql driver name the handle was opened with.
func Migrate(db *sql.DB, driver string) error {
	var (
		target migratedb.Driver
		dir    string
		err    error
	)
	switch driver {
	case DriverPostgres:
		dir = "migrations/postgres"
		target, err = migratepg.WithInstance(db, &migratepg.Config{})
	case DriverSQLite:
		dir = "migrations/sqlite"
		target, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	default:
		return fmt.Errorf("migrate: unsupported driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	src, err := iofs.New(migrationFS, dir)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// m.Close would close db as well, which belongs to the caller.
	m, err := migrate.NewWithInstance("iofs", src, driver, target)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
