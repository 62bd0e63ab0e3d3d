// Package store provides PostgreSQL storage for the built-in modules.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Metrics for store monitoring.
var (
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gqutils_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	dbQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gqutils_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gqutils_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gqutils_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// Store wraps GORM with a circuit breaker and query metrics.
type Store struct {
	db *gorm.DB
	cb *gobreaker.CircuitBreaker
}

// Config holds database configuration.
type Config struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime.
	ConnMaxLifetime time.Duration

	// LogLevel is the GORM log level.
	LogLevel logger.LogLevel

	// CircuitBreaker holds circuit breaker settings.
	CircuitBreaker CircuitBreakerConfig
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	// MaxRequests is the max requests in half-open state.
	MaxRequests uint32

	// Interval is the cyclic period of closed state.
	Interval time.Duration

	// Timeout is the period of open state.
	Timeout time.Duration

	// FailureThreshold is consecutive failures before opening.
	FailureThreshold uint32
}

// DefaultConfig returns default store configuration.
//
// Returns:
//   - Config: default configuration values
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		LogLevel:        logger.Warn,
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:      5,
			Interval:         60 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
	}
}

// New creates a new store instance.
//
// Parameters:
//   - cfg (Config): store configuration
//
// Returns:
//   - *Store: the initialized store
//   - error: nil on success, connection error on failure
func New(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is empty")
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(cfg.LogLevel),
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().
		Int("maxOpenConns", cfg.MaxOpenConns).
		Int("maxIdleConns", cfg.MaxIdleConns).
		Msg("connected to PostgreSQL")

	return Wrap(db, cfg.CircuitBreaker), nil
}

// Wrap creates a store around an open GORM instance.
//
// Parameters:
//   - db (*gorm.DB): GORM database instance
//   - cbCfg (CircuitBreakerConfig): circuit breaker settings
//
// Returns:
//   - *Store: the store
func Wrap(db *gorm.DB, cbCfg CircuitBreakerConfig) *Store {
	return &Store{db: db, cb: newBreaker("postgres", cbCfg)}
}

// newBreaker creates a circuit breaker that reports its state as a metric.
// Missing rows and cancelled requests do not count as failures.
func newBreaker(name string, cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 1
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, gorm.ErrRecordNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("name", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")

			var state float64
			switch to {
			case gobreaker.StateClosed:
				state = 0
			case gobreaker.StateHalfOpen:
				state = 1
			case gobreaker.StateOpen:
				state = 2
			}
			circuitBreakerState.WithLabelValues(name).Set(state)
		},
	})
}

// execute runs fn through the circuit breaker and records its duration and
// outcome under operation.
func (s *Store) execute(operation string, fn func() error) error {
	start := time.Now()

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	dbQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		dbQueryTotal.WithLabelValues(operation, "error").Inc()
		return err
	}
	dbQueryTotal.WithLabelValues(operation, "success").Inc()
	return err
}

// Close closes the database connection.
//
// Returns:
//   - error: nil on success, close error on failure
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying DB: %w", err)
	}
	return sqlDB.Close()
}

// DB returns the underlying GORM instance.
//
// Returns:
//   - *gorm.DB: the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Migrate runs auto-migrations for the given models, or for every model of
// the package when none are given.
//
// Parameters:
//   - models (...interface{}): models to migrate
//
// Returns:
//   - error: nil on success, migration error on failure
func (s *Store) Migrate(models ...interface{}) error {
	if len(models) == 0 {
		models = Models()
	}
	if err := s.db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Transaction executes a function within a database transaction.
//
// Parameters:
//   - ctx (context.Context): request context
//   - fn (func(*gorm.DB) error): function to execute within transaction
//
// Returns:
//   - error: nil on success, transaction or function error on failure
func (s *Store) Transaction(ctx context.Context, fn func(*gorm.DB) error) error {
	return s.execute("transaction", func() error {
		return s.db.WithContext(ctx).Transaction(fn)
	})
}

// UpdateStats updates database connection statistics.
func (s *Store) UpdateStats() {
	sqlDB, err := s.db.DB()
	if err != nil {
		return
	}

	stats := sqlDB.Stats()
	dbConnectionsOpen.Set(float64(stats.OpenConnections))
}

// Reset truncates every table of the package models.
// This is a destructive operation requiring explicit confirmation.
//
// Parameters:
//   - ctx (context.Context): request context
//
// Returns:
//   - error: nil on success, truncate error on failure
func (s *Store) Reset(ctx context.Context) error {
	for _, model := range Models() {
		stmt := &gorm.Statement{DB: s.db}
		if err := stmt.Parse(model); err != nil {
			return fmt.Errorf("resolving table of %T: %w", model, err)
		}

		table := stmt.Schema.Table
		sql := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", s.db.Statement.Quote(table))
		if err := s.db.WithContext(ctx).Exec(sql).Error; err != nil {
			return fmt.Errorf("truncating %s: %w", table, err)
		}
	}

	log.Info().Msg("database reset complete")
	return nil
}
