// Package database manages the PostgreSQL connection a generation run
// writes through.
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/dbsmedya/populous/internal/config"
)

// Manager owns the single connection a blueprint run generates against --
// unlike a source/destination/replica archival pipeline, populous only
// ever targets one database.
type Manager struct {
	DB     *sql.DB
	config *config.DatabaseConfig
}

// NewManager creates a new database manager from configuration.
func NewManager(cfg *config.DatabaseConfig) *Manager {
	return &Manager{config: cfg}
}

// Connect opens the connection, retrying with exponential backoff until ctx
// is done or cancelled.
func (m *Manager) Connect(ctx context.Context) error {
	var db *sql.DB

	operation := func() error {
		var err error
		db, err = m.connect()
		if err != nil {
			return err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return err
		}
		return nil
	}

	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	m.DB = db
	return nil
}

// connect opens a connection without verifying it's reachable.
func (m *Manager) connect() (*sql.DB, error) {
	db, err := sql.Open("postgres", BuildDSN(m.config))
	if err != nil {
		return nil, err
	}

	if m.config.MaxConnections > 0 {
		db.SetMaxOpenConns(m.config.MaxConnections)
	}
	if m.config.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(m.config.MaxIdleConnections)
	}

	return db, nil
}

// BuildDSN constructs a PostgreSQL connection string (lib/pq's
// key=value form) from configuration.
func BuildDSN(cfg *config.DatabaseConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, sslMode)

	if cfg.Database != "" {
		dsn += " dbname=" + cfg.Database
	}

	return dsn
}

// Close closes the connection. Idempotent.
func (m *Manager) Close() error {
	if m.DB == nil {
		return nil
	}
	return m.DB.Close()
}

// Ping verifies the connection is alive.
func (m *Manager) Ping(ctx context.Context) error {
	if m.DB == nil {
		return fmt.Errorf("database: not connected")
	}
	return m.DB.PingContext(ctx)
}
