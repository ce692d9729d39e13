package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"svfe-monitor/internal/config"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

const defaultQueryTimeout = 30 * time.Second

// DB is the subset of pgxpool.Pool the store relies on.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Tables names the externally maintained tables the store reads.
type Tables struct {
	Current    string
	Historical string
	Recipients string
}

// Store gives access to transactions, alerts and alert recipients.
type Store struct {
	db           DB
	closer       func()
	tables       Tables
	queryTimeout time.Duration
	location     *time.Location
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// NewStore wires a database handle into a Store. A pgxpool.Pool is closed
// together with the store.
func NewStore(db DB, tables Tables, queryTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	if tables.Current == "" {
		tables.Current = "transactions"
	}
	if tables.Historical == "" {
		tables.Historical = "transactions_hist"
	}
	if tables.Recipients == "" {
		tables.Recipients = "users"
	}
	s := &Store{db: db, tables: tables, queryTimeout: queryTimeout, location: time.Local}
	if pool, ok := db.(*pgxpool.Pool); ok {
		s.closer = pool.Close
	}
	return s
}

// TablesFromConfig maps the database table section onto Tables.
func TablesFromConfig(cfg config.TablesConfig) Tables {
	return Tables{Current: cfg.Current, Historical: cfg.Historical, Recipients: cfg.Recipients}
}

// SetLocation sets the zone transaction wall-clock times are interpreted in.
func (s *Store) SetLocation(loc *time.Location) {
	if loc != nil {
		s.location = loc
	}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.closer == nil {
		return
	}
	s.closer()
}

// Ping checks connectivity; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var one int
	if err := db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

func (s *Store) getDB() (DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}
