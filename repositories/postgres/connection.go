package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/almazom/koodo-llm/config"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return Wrap(db, logger), nil
}

// Wrap adopts an already opened pool (tests use it with sqlmock)
func Wrap(db *sql.DB, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{
		DB:     db,
		logger: logger,
	}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// schema holds the llm_configs and llm_summaries tables
const schema = `
	-- Vendor configurations
	CREATE TABLE IF NOT EXISTS llm_configs (
		id UUID PRIMARY KEY,
		provider VARCHAR(50) NOT NULL,
		api_key TEXT NOT NULL DEFAULT '',
		api_endpoint TEXT,
		is_default BOOLEAN NOT NULL DEFAULT false,
		name VARCHAR(100) NOT NULL,
		parameters JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Chapter summaries
	CREATE TABLE IF NOT EXISTS llm_summaries (
		id UUID PRIMARY KEY,
		book_key VARCHAR(255) NOT NULL,
		chapter_title TEXT NOT NULL,
		chapter_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		model VARCHAR(100) NOT NULL,
		timestamp BIGINT NOT NULL,
		word_count INTEGER NOT NULL DEFAULT 0,
		UNIQUE(book_key, chapter_index)
	);

	-- At most one default configuration
	CREATE UNIQUE INDEX IF NOT EXISTS idx_llm_configs_single_default ON llm_configs(is_default) WHERE is_default;
	CREATE INDEX IF NOT EXISTS idx_llm_summaries_book_key ON llm_summaries(book_key);
`

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
