// Package dbconn provides PostgreSQL database connection management for pgretain.
package dbconn

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/pgretain/pgretain/internal/config"
)

// Manager handles the source database handle used end-to-end by one run.
// Tables are cleaned one after another, never in parallel: cascades hold row
// locks, and parallelism across tables invites deadlocks. The handle is a
// database/sql pool of up to source.max_connections connections (when set),
// not a single connection.
type Manager struct {
	Source *sql.DB
	config *config.Config
}

// NewManager creates a new database manager from configuration.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{config: cfg}
}

// Connect establishes the connection to the source database.
func (m *Manager) Connect(ctx context.Context) error {
	db, err := m.connectWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to source database: %w", err)
	}
	m.Source = db
	return nil
}

func (m *Manager) connectWithRetry(ctx context.Context) (*sql.DB, error) {
	var db *sql.DB
	var err error

	const maxRetries = 3
	backoff := time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = m.connect()
		if err == nil {
			if pingErr := db.PingContext(ctx); pingErr == nil {
				return db, nil
			} else {
				db.Close()
				err = pingErr
			}
		}

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}

	return nil, fmt.Errorf("failed after %d retries: %w", maxRetries, err)
}

func (m *Manager) connect() (*sql.DB, error) {
	dsn := BuildDSN(m.config)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if m.config.Source.MaxConnections > 0 {
		db.SetMaxOpenConns(m.config.Source.MaxConnections)
	}
	if m.config.Source.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(m.config.Source.MaxIdleConnections)
	}
	db.SetConnMaxLifetime(10 * time.Minute)

	return db, nil
}

// BuildDSN constructs a PostgreSQL DSN from configuration. DBURI wins
// outright when set; otherwise the discrete fields are assembled.
func BuildDSN(cfg *config.Config) string {
	if cfg.DBURI != "" {
		return cfg.DBURI
	}

	sslmode := cfg.Source.SSLMode
	if sslmode == "" {
		sslmode = "prefer"
	}

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Source.Host, cfg.Source.Port, cfg.Source.User, cfg.Source.Password,
		cfg.Source.Database, sslmode)
}

// Close closes the source connection.
func (m *Manager) Close() error {
	if m.Source != nil {
		if err := m.Source.Close(); err != nil {
			return fmt.Errorf("source close: %w", err)
		}
	}
	return nil
}

// Ping verifies the connection is alive.
func (m *Manager) Ping(ctx context.Context) error {
	if m.Source == nil {
		return fmt.Errorf("not connected")
	}
	return m.Source.PingContext(ctx)
}
