// Package mocks provides testify mocks of the repository interfaces.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/almazom/koodo-llm/models"
)

// MockLLMConfigRepository is a mock implementation of LLMConfigRepository
type MockLLMConfigRepository struct {
	mock.Mock
}

func (m *MockLLMConfigRepository) Save(ctx context.Context, cfg *models.LLMConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

func (m *MockLLMConfigRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.LLMConfig, error) {
	args := m.Called(ctx, id)
	if cfg := args.Get(0); cfg != nil {
		return cfg.(*models.LLMConfig), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLLMConfigRepository) List(ctx context.Context) ([]*models.LLMConfig, error) {
	args := m.Called(ctx)
	if configs := args.Get(0); configs != nil {
		return configs.([]*models.LLMConfig), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLLMConfigRepository) GetDefault(ctx context.Context) (*models.LLMConfig, error) {
	args := m.Called(ctx)
	if cfg := args.Get(0); cfg != nil {
		return cfg.(*models.LLMConfig), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLLMConfigRepository) ClearDefault(ctx context.Context, keepID uuid.UUID) error {
	args := m.Called(ctx, keepID)
	return args.Error(0)
}

func (m *MockLLMConfigRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockLLMSummaryRepository is a mock implementation of LLMSummaryRepository
type MockLLMSummaryRepository struct {
	mock.Mock
}

func (m *MockLLMSummaryRepository) Save(ctx context.Context, summary *models.LLMSummary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

func (m *MockLLMSummaryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.LLMSummary, error) {
	args := m.Called(ctx, id)
	if summary := args.Get(0); summary != nil {
		return summary.(*models.LLMSummary), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLLMSummaryRepository) GetByBook(ctx context.Context, bookKey string) ([]*models.LLMSummary, error) {
	args := m.Called(ctx, bookKey)
	if summaries := args.Get(0); summaries != nil {
		return summaries.([]*models.LLMSummary), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLLMSummaryRepository) GetByChapter(ctx context.Context, bookKey string, chapterIndex int) (*models.LLMSummary, error) {
	args := m.Called(ctx, bookKey, chapterIndex)
	if summary := args.Get(0); summary != nil {
		return summary.(*models.LLMSummary), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLLMSummaryRepository) Exists(ctx context.Context, bookKey string, chapterIndex int) (bool, error) {
	args := m.Called(ctx, bookKey, chapterIndex)
	return args.Bool(0), args.Error(1)
}

func (m *MockLLMSummaryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// InlineTransactionManager runs every function directly and records the outcome
type InlineTransactionManager struct {
	Committed  int
	RolledBack int
}

// InTransaction implements repositories.TransactionManager
func (m *InlineTransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		m.RolledBack++
		return err
	}
	m.Committed++
	return nil
}
