package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/almazom/koodo-llm/models"
	"github.com/almazom/koodo-llm/repositories"
)

const llmConfigColumns = `id, provider, api_key, COALESCE(api_endpoint, ''), is_default, name, parameters, created_at, updated_at`

// LLMConfigRepository implements the repositories.LLMConfigRepository interface
type LLMConfigRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewLLMConfigRepository creates a new configuration repository
func NewLLMConfigRepository(db *DB, logger *zap.Logger) repositories.LLMConfigRepository {
	return &LLMConfigRepository{
		db:     db,
		logger: logger,
	}
}

// Save inserts or replaces a configuration
func (r *LLMConfigRepository) Save(ctx context.Context, cfg *models.LLMConfig) error {
	query := `
		INSERT INTO llm_configs (id, provider, api_key, api_endpoint, is_default, name, parameters, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			provider = EXCLUDED.provider,
			api_key = EXCLUDED.api_key,
			api_endpoint = EXCLUDED.api_endpoint,
			is_default = EXCLUDED.is_default,
			name = EXCLUDED.name,
			parameters = EXCLUDED.parameters,
			updated_at = EXCLUDED.updated_at
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		cfg.ID,
		string(cfg.Provider),
		cfg.APIKey,
		cfg.APIEndpoint,
		cfg.IsDefault,
		cfg.Name,
		cfg.Parameters,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save llm config: %w", err)
	}

	r.logger.Debug("llm config saved", zap.String("id", cfg.ID.String()), zap.String("provider", string(cfg.Provider)))
	return nil
}

// GetByID retrieves a configuration by ID
func (r *LLMConfigRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.LLMConfig, error) {
	query := `SELECT ` + llmConfigColumns + ` FROM llm_configs WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	cfg, err := scanLLMConfig(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("llm config %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get llm config: %w", err)
	}

	return cfg, nil
}

// List retrieves every configuration, the default first
func (r *LLMConfigRepository) List(ctx context.Context) ([]*models.LLMConfig, error) {
	query := `SELECT ` + llmConfigColumns + ` FROM llm_configs ORDER BY is_default DESC, created_at ASC`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query llm configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.LLMConfig
	for rows.Next() {
		cfg, err := scanLLMConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan llm config: %w", err)
		}
		configs = append(configs, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating llm configs: %w", err)
	}

	return configs, nil
}

// GetDefault retrieves the default configuration
func (r *LLMConfigRepository) GetDefault(ctx context.Context) (*models.LLMConfig, error) {
	query := `SELECT ` + llmConfigColumns + ` FROM llm_configs WHERE is_default = true LIMIT 1`

	executor := GetExecutor(ctx, r.db)
	cfg, err := scanLLMConfig(executor.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("default llm config: %w", repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get default llm config: %w", err)
	}

	return cfg, nil
}

// ClearDefault unsets the default flag everywhere except keepID
func (r *LLMConfigRepository) ClearDefault(ctx context.Context, keepID uuid.UUID) error {
	query := `UPDATE llm_configs SET is_default = false, updated_at = CURRENT_TIMESTAMP WHERE is_default = true AND id <> $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, keepID)
	if err != nil {
		return fmt.Errorf("failed to clear default llm config: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		r.logger.Debug("default llm config cleared", zap.Int64("count", n), zap.String("kept", keepID.String()))
	}
	return nil
}

// Delete deletes a configuration
func (r *LLMConfigRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM llm_configs WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete llm config: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("llm config %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Debug("llm config deleted", zap.String("id", id.String()))
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLLMConfig(row rowScanner) (*models.LLMConfig, error) {
	cfg := &models.LLMConfig{}
	var provider string
	err := row.Scan(
		&cfg.ID,
		&provider,
		&cfg.APIKey,
		&cfg.APIEndpoint,
		&cfg.IsDefault,
		&cfg.Name,
		&cfg.Parameters,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cfg.Provider = models.LLMProvider(provider)
	return cfg, nil
}
