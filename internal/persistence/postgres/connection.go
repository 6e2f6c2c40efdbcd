// Package postgres implements the persistence interfaces on PostgreSQL via
// sqlx. Every insert is idempotent: tables carry a unique key on the record's
// trace id and writes use ON CONFLICT DO NOTHING, so stream redelivery is
// harmless.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sawpanic/flowrun/internal/persistence"
)

// Config holds database connection configuration.
type Config struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	Enabled         bool          `yaml:"enabled"`
}

// DefaultConfig returns reasonable pool defaults. Disabled until a DSN is
// configured.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
		Enabled:         false,
	}
}

// Manager owns the connection pool and the repository instances built on it.
type Manager struct {
	db     *sqlx.DB
	config Config
	repos  *persistence.Repository
}

// NewManager opens the pool, verifies connectivity and wires the repos.
func NewManager(config Config) (*Manager, error) {
	if !config.Enabled {
		return &Manager{config: config}, nil
	}
	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required when enabled")
	}

	db, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repos := &persistence.Repository{
		OptionPrints:   NewOptionPrintsRepo(db, config.QueryTimeout),
		OptionNBBO:     NewOptionNBBORepo(db, config.QueryTimeout),
		EquityPrints:   NewEquityPrintsRepo(db, config.QueryTimeout),
		EquityQuotes:   NewEquityQuotesRepo(db, config.QueryTimeout),
		EquityJoins:    NewEquityJoinsRepo(db, config.QueryTimeout),
		EquityCandles:  NewEquityCandlesRepo(db, config.QueryTimeout),
		FlowPackets:    NewPacketsRepo(db, config.QueryTimeout),
		ClassifierHits: NewClassifierHitsRepo(db, config.QueryTimeout),
		Alerts:         NewAlertsRepo(db, config.QueryTimeout),
		InferredDark:   NewInferredDarkRepo(db, config.QueryTimeout),
	}

	return &Manager{db: db, config: config, repos: repos}, nil
}

// Repository returns the repo collection, or nil when persistence is disabled.
func (m *Manager) Repository() *persistence.Repository {
	return m.repos
}

// IsEnabled reports whether a live pool backs the manager.
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled && m.db != nil
}

// Migrate applies the schema. Idempotent; safe to run on every start.
func (m *Manager) Migrate(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	for _, stmt := range schemaStatements {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Ping tests basic connectivity.
func (m *Manager) Ping(ctx context.Context) error {
	if m.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.config.QueryTimeout)
	defer cancel()
	return m.db.PingContext(ctx)
}

// Stats exposes pool statistics for the monitor endpoint.
func (m *Manager) Stats() map[string]interface{} {
	if m.db == nil {
		return map[string]interface{}{"enabled": false}
	}
	stats := m.db.Stats()
	return map[string]interface{}{
		"enabled":          true,
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       stats.WaitCount,
		"wait_duration_ms": stats.WaitDuration.Milliseconds(),
	}
}

// Close closes the pool.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}
