package store

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrate applies every pending migration for the active driver. Already up
// to date is not an error. The migrator gets its own handle because closing
// it tears down the driver it was given.
func (s *Store) Migrate() error {
	source, err := iofs.New(migrationsFS, "migrations/"+s.Driver)
	if err != nil {
		return fmt.Errorf("store: load migrations: %w", err)
	}

	db, err := sql.Open(s.sqlDriver, s.dsn)
	if err != nil {
		return fmt.Errorf("store: open migration handle: %w", err)
	}
	defer db.Close()

	var drv database.Driver
	switch s.Driver {
	case DriverPostgres:
		drv, err = migratepg.WithInstance(db, &migratepg.Config{})
	case DriverSQLite:
		drv, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	default:
		return fmt.Errorf("store: no migrations for driver %q", s.Driver)
	}
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, s.Driver, drv)
	if err != nil {
		return fmt.Errorf("store: migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: apply migrations: %w", err)
	}
	s.log.Info("migrations up to date", "driver", s.Driver)
	return nil
}
