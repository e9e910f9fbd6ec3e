package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/daedalus410/RFID-attendance-system/internal/config"
)

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store owns the database handle and the lease pool built on top of it. The
// backend is chosen once at startup; everything above this package speaks
// plain SQL through the pool and never branches on the driver again.
type Store struct {
	Pool   *Pool
	Driver string

	db        *sql.DB
	sqlDriver string
	dsn       string
	log       *slog.Logger
}

// Open selects the configured driver and prepares the pool. The database is
// not contacted here: sql.Open is lazy, so a backend that is down at boot
// surfaces on the first acquire instead of failing startup.
func Open(cfg config.App, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	var sqlDriver, dsn string
	switch cfg.DBDriver {
	case DriverPostgres:
		sqlDriver, dsn = "pgx", cfg.DatabaseURL
	case DriverSQLite:
		sqlDriver = "sqlite3"
		dsn = cfg.DBPath + "?_journal_mode=WAL&_busy_timeout=5000"
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.DBDriver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", cfg.DBDriver, err)
	}
	db.SetMaxOpenConns(cfg.PoolMaxConns)
	db.SetMaxIdleConns(cfg.PoolMaxConns)
	db.SetConnMaxLifetime(time.Hour)

	return &Store{
		Pool:      NewPool(db, cfg.PoolMaxConns, cfg.PoolAcquireTimeout, log),
		Driver:    cfg.DBDriver,
		db:        db,
		sqlDriver: sqlDriver,
		dsn:       dsn,
		log:       log,
	}, nil
}

// Version reports the backend's version string through a pooled lease, so
// the deep health probe exercises the same acquire path as real queries.
func (s *Store) Version(ctx context.Context) (string, error) {
	query := "SELECT version()"
	if s.Driver == DriverSQLite {
		query = "SELECT sqlite_version()"
	}
	var version string
	err := s.Pool.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, query).Scan(&version)
	})
	if err != nil {
		return "", err
	}
	return version, nil
}

// Ping checks raw connectivity without consuming a pool slot.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close rejects new leases and closes the underlying handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.Pool.Close()
	return s.db.Close()
}
