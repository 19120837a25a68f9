// Package configs manages stored vendor configurations.
package configs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/almazom/koodo-llm/models"
	"github.com/almazom/koodo-llm/repositories"
	"github.com/almazom/koodo-llm/services"
	"github.com/almazom/koodo-llm/utils"
)

// Service stores configurations and keeps at most one of them the default
type Service struct {
	repo   repositories.LLMConfigRepository
	txMgr  repositories.TransactionManager
	logger *zap.Logger
	now    func() time.Time

	onChange []func(ctx context.Context) error
}

// Option configures a Service
type Option func(*Service)

// WithOnChange registers fn to run after every successful save or delete.
// A failing hook is logged; the stored change stands.
func WithOnChange(fn func(ctx context.Context) error) Option {
	return func(s *Service) {
		if fn != nil {
			s.onChange = append(s.onChange, fn)
		}
	}
}

// NewService creates a configuration service
func NewService(repo repositories.LLMConfigRepository, txMgr repositories.TransactionManager, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:   repo,
		txMgr:  txMgr,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveConfig validates and stores cfg. A config saved as default demotes
// every other default in the same transaction.
func (s *Service) SaveConfig(ctx context.Context, cfg *models.LLMConfig) (*models.LLMConfig, error) {
	if cfg == nil {
		return nil, services.ErrInvalidConfig
	}
	if err := utils.ValidateStruct(cfg); err != nil {
		domainErr := services.NewDomainError(services.ErrorTypeValidation, services.ErrInvalidConfig.Message, err)
		for field, msg := range utils.GetValidationFields(err) {
			domainErr.WithDetail(field, msg)
		}
		return nil, domainErr
	}

	now := s.now()
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	save := func(ctx context.Context) error {
		if cfg.IsDefault {
			if err := s.repo.ClearDefault(ctx, cfg.ID); err != nil {
				return err
			}
		}
		return s.repo.Save(ctx, cfg)
	}

	var err error
	if cfg.IsDefault {
		err = s.txMgr.InTransaction(ctx, save)
	} else {
		err = save(ctx)
	}
	if err != nil {
		return nil, services.WrapInternal("failed to save llm config", err)
	}

	s.logger.Info("llm config saved",
		zap.String("id", cfg.ID.String()),
		zap.String("provider", string(cfg.Provider)),
		zap.Bool("is_default", cfg.IsDefault),
	)
	s.changed(ctx)
	return cfg, nil
}

// GetAllConfigs returns every stored configuration
func (s *Service) GetAllConfigs(ctx context.Context) ([]*models.LLMConfig, error) {
	configs, err := s.repo.List(ctx)
	if err != nil {
		return nil, services.FromRepositoryError(err, services.ErrConfigNotFound)
	}
	if configs == nil {
		configs = []*models.LLMConfig{}
	}
	return configs, nil
}

// GetDefaultConfig returns the default configuration, or nil when none is set
func (s *Service) GetDefaultConfig(ctx context.Context) (*models.LLMConfig, error) {
	cfg, err := s.repo.GetDefault(ctx)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, services.FromRepositoryError(err, services.ErrConfigNotFound)
	}
	return cfg, nil
}

// GetConfig returns one configuration
func (s *Service) GetConfig(ctx context.Context, id uuid.UUID) (*models.LLMConfig, error) {
	cfg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, services.FromRepositoryError(err, services.ErrConfigNotFound)
	}
	return cfg, nil
}

// DeleteConfig removes one configuration
func (s *Service) DeleteConfig(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return services.FromRepositoryError(err, services.ErrConfigNotFound)
	}
	s.logger.Info("llm config deleted", zap.String("id", id.String()))
	s.changed(ctx)
	return nil
}

func (s *Service) changed(ctx context.Context) {
	for _, fn := range s.onChange {
		if err := fn(ctx); err != nil {
			s.logger.Warn("config change hook failed", zap.Error(err))
		}
	}
}
