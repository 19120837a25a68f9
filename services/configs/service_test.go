package configs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/almazom/koodo-llm/models"
	"github.com/almazom/koodo-llm/repositories"
	"github.com/almazom/koodo-llm/repositories/mocks"
	"github.com/almazom/koodo-llm/services"
)

func newTestService() (*Service, *mocks.MockLLMConfigRepository, *mocks.InlineTransactionManager) {
	repo := new(mocks.MockLLMConfigRepository)
	txMgr := &mocks.InlineTransactionManager{}
	svc := NewService(repo, txMgr, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, repo, txMgr
}

func TestService_SaveConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("non-default saves without a transaction", func(t *testing.T) {
		svc, repo, txMgr := newTestService()
		cfg := models.NewLLMConfig(models.ProviderMinimax, "Minimax", "key")

		repo.On("Save", ctx, cfg).Return(nil)

		saved, err := svc.SaveConfig(ctx, cfg)
		require.NoError(t, err)
		assert.Equal(t, svc.now(), saved.UpdatedAt)
		assert.Zero(t, txMgr.Committed)
		repo.AssertNotCalled(t, "ClearDefault", mock.Anything, mock.Anything)
		repo.AssertExpectations(t)
	})

	t.Run("default demotes the others in one transaction", func(t *testing.T) {
		svc, repo, txMgr := newTestService()
		cfg := models.NewLLMConfig(models.ProviderDeepSeekV3, "DeepSeek", "key")
		cfg.IsDefault = true

		repo.On("ClearDefault", ctx, cfg.ID).Return(nil).Once()
		repo.On("Save", ctx, cfg).Return(nil).Once()

		_, err := svc.SaveConfig(ctx, cfg)
		require.NoError(t, err)
		assert.Equal(t, 1, txMgr.Committed)
		repo.AssertExpectations(t)
	})

	t.Run("failed demotion rolls back and skips the save", func(t *testing.T) {
		svc, repo, txMgr := newTestService()
		cfg := models.NewLLMConfig(models.ProviderDeepSeekV3, "DeepSeek", "key")
		cfg.IsDefault = true

		repo.On("ClearDefault", ctx, cfg.ID).Return(errors.New("deadlock"))

		_, err := svc.SaveConfig(ctx, cfg)
		require.Error(t, err)
		assert.Equal(t, services.ErrorTypeInternal, services.GetErrorType(err))
		assert.Equal(t, 1, txMgr.RolledBack)
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("assigns missing ID and creation time", func(t *testing.T) {
		svc, repo, _ := newTestService()
		cfg := &models.LLMConfig{Provider: models.ProviderGeminiFlash20, Name: "Gemini"}

		repo.On("Save", ctx, cfg).Return(nil)

		saved, err := svc.SaveConfig(ctx, cfg)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, saved.ID)
		assert.Equal(t, svc.now(), saved.CreatedAt)
	})

	t.Run("validation failure", func(t *testing.T) {
		tests := []struct {
			name  string
			cfg   *models.LLMConfig
			field string
		}{
			{"nil config", nil, ""},
			{"unknown provider", &models.LLMConfig{Provider: "gpt", Name: "x"}, "provider"},
			{"missing name", &models.LLMConfig{Provider: models.ProviderMinimax}, "name"},
			{"bad endpoint", &models.LLMConfig{Provider: models.ProviderMinimax, Name: "x", APIEndpoint: "nope"}, "apiEndpoint"},
			{"temperature out of range", &models.LLMConfig{Provider: models.ProviderMinimax, Name: "x", Parameters: models.LLMParameters{Temperature: 3}}, "temperature"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc, repo, _ := newTestService()

				_, err := svc.SaveConfig(ctx, tt.cfg)
				require.Error(t, err)
				assert.True(t, services.IsValidationError(err))
				if tt.field != "" {
					assert.Contains(t, services.GetErrorDetails(err), tt.field)
				}
				repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
			})
		}
	})
}

func TestService_GetDefaultConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("none set", func(t *testing.T) {
		svc, repo, _ := newTestService()
		repo.On("GetDefault", ctx).Return(nil, fmt.Errorf("default llm config: %w", repositories.ErrNotFound))

		cfg, err := svc.GetDefaultConfig(ctx)
		require.NoError(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("found", func(t *testing.T) {
		svc, repo, _ := newTestService()
		want := models.NewLLMConfig(models.ProviderMinimax, "Main", "")
		repo.On("GetDefault", ctx).Return(want, nil)

		cfg, err := svc.GetDefaultConfig(ctx)
		require.NoError(t, err)
		assert.Same(t, want, cfg)
	})

	t.Run("database error", func(t *testing.T) {
		svc, repo, _ := newTestService()
		repo.On("GetDefault", ctx).Return(nil, errors.New("timeout"))

		_, err := svc.GetDefaultConfig(ctx)
		assert.Equal(t, services.ErrorTypeInternal, services.GetErrorType(err))
	})
}

func TestService_GetAllConfigs(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService()
	repo.On("List", ctx).Return(nil, nil)

	configs, err := svc.GetAllConfigs(ctx)
	require.NoError(t, err)
	assert.NotNil(t, configs)
	assert.Empty(t, configs)
}

func TestService_GetAndDeleteConfig(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService()
	id := uuid.New()
	notFound := fmt.Errorf("llm config %s: %w", id, repositories.ErrNotFound)

	repo.On("GetByID", ctx, id).Return(nil, notFound)
	repo.On("Delete", ctx, id).Return(notFound)

	_, err := svc.GetConfig(ctx, id)
	assert.True(t, errors.Is(err, services.ErrConfigNotFound))

	err = svc.DeleteConfig(ctx, id)
	assert.True(t, services.IsNotFoundError(err))
}

func TestService_OnChange(t *testing.T) {
	ctx := context.Background()
	repo := new(mocks.MockLLMConfigRepository)
	calls := 0
	svc := NewService(repo, &mocks.InlineTransactionManager{}, zap.NewNop(),
		WithOnChange(func(context.Context) error {
			calls++
			return nil
		}),
		WithOnChange(func(context.Context) error { return errors.New("refresh failed") }),
		WithOnChange(nil),
	)

	cfg := models.NewLLMConfig(models.ProviderMinimax, "Minimax", "saved-key")
	repo.On("Save", ctx, cfg).Return(nil).Once()
	_, err := svc.SaveConfig(ctx, cfg)
	require.NoError(t, err, "a failing hook does not undo the save")
	assert.Equal(t, 1, calls)

	repo.On("Delete", ctx, cfg.ID).Return(nil).Once()
	require.NoError(t, svc.DeleteConfig(ctx, cfg.ID))
	assert.Equal(t, 2, calls)

	missing := uuid.New()
	repo.On("Delete", ctx, missing).Return(fmt.Errorf("llm config %s: %w", missing, repositories.ErrNotFound)).Once()
	assert.Error(t, svc.DeleteConfig(ctx, missing))
	assert.Equal(t, 2, calls, "failed deletes do not fire hooks")

	invalid := &models.LLMConfig{}
	_, err = svc.SaveConfig(ctx, invalid)
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
	repo.AssertExpectations(t)
}
