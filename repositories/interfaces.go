package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/almazom/koodo-llm/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// TransactionManager runs a unit of work atomically. Repositories called
// with the context handed to fn join the transaction.
type TransactionManager interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// LLMConfigRepository handles vendor configuration data operations
type LLMConfigRepository interface {
	// Save inserts the config or replaces the stored one with the same ID
	Save(ctx context.Context, cfg *models.LLMConfig) error

	// GetByID retrieves a config by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.LLMConfig, error)

	// List retrieves all configs, default first
	List(ctx context.Context) ([]*models.LLMConfig, error)

	// GetDefault retrieves the default config
	GetDefault(ctx context.Context) (*models.LLMConfig, error)

	// ClearDefault unsets the default flag on every config except keepID
	ClearDefault(ctx context.Context, keepID uuid.UUID) error

	// Delete deletes a config
	Delete(ctx context.Context, id uuid.UUID) error
}

// LLMSummaryRepository handles chapter summary data operations
type LLMSummaryRepository interface {
	// Save inserts the summary or replaces the stored one with the same ID
	Save(ctx context.Context, summary *models.LLMSummary) error

	// GetByID retrieves a summary by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.LLMSummary, error)

	// GetByBook retrieves all summaries of a book ordered by chapter
	GetByBook(ctx context.Context, bookKey string) ([]*models.LLMSummary, error)

	// GetByChapter retrieves the summary of one chapter
	GetByChapter(ctx context.Context, bookKey string, chapterIndex int) (*models.LLMSummary, error)

	// Exists reports whether a chapter has a summary
	Exists(ctx context.Context, bookKey string, chapterIndex int) (bool, error)

	// Delete deletes a summary
	Delete(ctx context.Context, id uuid.UUID) error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	LLMConfigs   LLMConfigRepository
	LLMSummaries LLMSummaryRepository
}
