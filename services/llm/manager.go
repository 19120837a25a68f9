// Package llm routes generation requests to registered providers with retry
// and provider fallback.
package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/almazom/koodo-llm/internal/observability"
	"github.com/almazom/koodo-llm/services/providers"
	"github.com/almazom/koodo-llm/services/retry"
)

// DefaultProviderName is used when the configuration names no default provider
const DefaultProviderName = "minimax"

// Operation names used in logs and metrics
const (
	OperationSummary = "summary"
	OperationPoem    = "poem"
)

// ServiceConfig configures a ServiceManager
type ServiceConfig struct {
	// DefaultProvider serves requests that name no model
	DefaultProvider string

	// FallbackProviders are tried in order once the primary provider is exhausted
	FallbackProviders []string

	// RetryPolicy applies to the primary and to every fallback; nil means retry.DefaultPolicy()
	RetryPolicy *retry.Policy
}

// ServiceManager resolves a provider for each request and applies retry and fallback.
// Only the registry and the default provider name are mutable; both are guarded.
type ServiceManager struct {
	registry  *providers.Registry
	fallbacks []string
	policy    retry.Policy
	retryOpts []retry.Option
	logger    *zap.Logger
	metrics   observability.Metrics

	mu              sync.RWMutex
	defaultProvider string
}

// Option configures a ServiceManager
type Option func(*ServiceManager)

// WithRegistry uses an existing registry instead of an empty one
func WithRegistry(registry *providers.Registry) Option {
	return func(m *ServiceManager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// WithMetrics records attempts, fallbacks and generations
func WithMetrics(metrics observability.Metrics) Option {
	return func(m *ServiceManager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithRetryOptions passes extra options to every executor the manager creates
func WithRetryOptions(opts ...retry.Option) Option {
	return func(m *ServiceManager) {
		m.retryOpts = append(m.retryOpts, opts...)
	}
}

// NewServiceManager creates a service manager
func NewServiceManager(cfg ServiceConfig, logger *zap.Logger, opts ...Option) *ServiceManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	policy := retry.DefaultPolicy()
	if cfg.RetryPolicy != nil {
		policy = *cfg.RetryPolicy
	}

	defaultProvider := providers.NormalizeName(cfg.DefaultProvider)
	if defaultProvider == "" {
		defaultProvider = DefaultProviderName
	}

	m := &ServiceManager{
		registry:        providers.NewRegistry(),
		fallbacks:       append([]string(nil), cfg.FallbackProviders...),
		policy:          policy,
		logger:          logger,
		metrics:         observability.NopMetrics{},
		defaultProvider: defaultProvider,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterProvider binds name to provider, replacing any previous binding
func (m *ServiceManager) RegisterProvider(name string, provider providers.Provider) error {
	if err := m.registry.Register(name, provider); err != nil {
		return err
	}
	m.logger.Info("provider registered", zap.String("provider", providers.NormalizeName(name)))
	return nil
}

// GetProvider looks up a provider by name
func (m *ServiceManager) GetProvider(name string) (providers.Provider, error) {
	return m.registry.Get(name)
}

// ListProviderNames returns the registered provider names in lexical order
func (m *ServiceManager) ListProviderNames() []string {
	return m.registry.Names()
}

// SetDefaultProvider changes the provider used when a request names no model.
// An unregistered name fails with ErrProviderNotFound and leaves the default unchanged.
func (m *ServiceManager) SetDefaultProvider(name string) error {
	if !m.registry.Has(name) {
		return fmt.Errorf("%w: %s", providers.ErrProviderNotFound, name)
	}

	m.mu.Lock()
	m.defaultProvider = providers.NormalizeName(name)
	m.mu.Unlock()

	m.logger.Info("default provider changed", zap.String("provider", providers.NormalizeName(name)))
	return nil
}

// DefaultProvider returns the current default provider name
func (m *ServiceManager) DefaultProvider() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultProvider
}

// FallbackProviders returns the configured fallback order
func (m *ServiceManager) FallbackProviders() []string {
	return append([]string(nil), m.fallbacks...)
}

// RetryPolicy returns the policy applied to every provider
func (m *ServiceManager) RetryPolicy() retry.Policy {
	return m.policy
}

// CheckCredential asks the named provider whether its credential is accepted
func (m *ServiceManager) CheckCredential(ctx context.Context, name string) (bool, error) {
	provider, err := m.registry.Get(name)
	if err != nil {
		return false, err
	}
	return provider.CheckCredential(ctx), nil
}

// GenerateSummary condenses text using the resolved provider, retrying and falling back as configured
func (m *ServiceManager) GenerateSummary(ctx context.Context, text string, opts providers.GenerationOptions) (*providers.GenerationResult, error) {
	return m.execute(ctx, OperationSummary, opts, func(ctx context.Context, p providers.Provider, opts providers.GenerationOptions) (*providers.GenerationResult, error) {
		return p.GenerateSummary(ctx, text, opts)
	})
}

// GenerateThemedPoem writes a poem on theme using the resolved provider, retrying and falling back as configured
func (m *ServiceManager) GenerateThemedPoem(ctx context.Context, theme string, opts providers.GenerationOptions) (*providers.GenerationResult, error) {
	return m.execute(ctx, OperationPoem, opts, func(ctx context.Context, p providers.Provider, opts providers.GenerationOptions) (*providers.GenerationResult, error) {
		return p.GenerateThemedPoem(ctx, theme, opts)
	})
}

type generateFunc func(ctx context.Context, p providers.Provider, opts providers.GenerationOptions) (*providers.GenerationResult, error)

// resolve picks the provider named by the model prefix, or the default provider
func (m *ServiceManager) resolve(opts providers.GenerationOptions) (string, providers.Provider, error) {
	name := m.DefaultProvider()
	if opts.Model != "" {
		name = providers.ProviderNameForModel(opts.Model)
	}

	provider, err := m.registry.Get(name)
	if err != nil {
		return name, nil, err
	}
	return name, provider, nil
}

func (m *ServiceManager) execute(ctx context.Context, operation string, opts providers.GenerationOptions, generate generateFunc) (*providers.GenerationResult, error) {
	start := time.Now()

	primaryName, primary, err := m.resolve(opts)
	if err != nil {
		m.logger.Warn("provider not found",
			zap.String("operation", operation),
			zap.String("provider", primaryName),
			zap.String("model", opts.Model))
		return nil, err
	}

	result, primaryErr := retry.Run(ctx, m.executor(primaryName), func(ctx context.Context) (*providers.GenerationResult, error) {
		return generate(ctx, primary, opts)
	})
	if primaryErr == nil {
		m.metrics.RecordGeneration(operation, primaryName, observability.StatusSuccess, time.Since(start), result.TokensUsed)
		return result, nil
	}

	m.logger.Warn("primary provider exhausted retries",
		zap.String("operation", operation),
		zap.String("provider", primaryName),
		zap.Int("attempts", m.policy.Attempts()),
		zap.Error(primaryErr))

	originalModel := opts.Model
	if originalModel == "" {
		originalModel = primary.DescribeModel().Name
	}

	// A fallback runs its own default model; the requested one belongs to the primary.
	fallbackOpts := opts
	fallbackOpts.Model = ""

	for i, name := range m.fallbacks {
		fallback, err := m.registry.Get(name)
		if err != nil {
			m.logger.Debug("fallback provider not registered, skipping",
				zap.String("provider", name),
				zap.Int("fallback_index", i))
			continue
		}

		result, err := retry.Run(ctx, m.executor(name), func(ctx context.Context) (*providers.GenerationResult, error) {
			return generate(ctx, fallback, fallbackOpts)
		})
		if err != nil {
			m.metrics.RecordFallback(providers.NormalizeName(name), observability.StatusFailure)
			m.logger.Error("fallback provider failed",
				zap.String("operation", operation),
				zap.String("provider", providers.NormalizeName(name)),
				zap.Int("fallback_index", i),
				zap.Error(err))
			continue
		}

		m.metrics.RecordFallback(providers.NormalizeName(name), observability.StatusSuccess)
		m.metrics.RecordGeneration(operation, providers.NormalizeName(name), observability.StatusSuccess, time.Since(start), result.TokensUsed)

		result.UsedFallback = true
		result.OriginalModel = originalModel
		result.FallbackModel = result.Model
		if result.FallbackModel == "" {
			result.FallbackModel = fallback.DescribeModel().Name
		}

		m.logger.Info("request served by fallback provider",
			zap.String("operation", operation),
			zap.String("provider", providers.NormalizeName(name)),
			zap.String("original_model", result.OriginalModel),
			zap.String("fallback_model", result.FallbackModel))
		return result, nil
	}

	m.metrics.RecordGeneration(operation, primaryName, observability.StatusFailure, time.Since(start), 0)
	return nil, primaryErr
}

// executor builds a fresh executor for one provider
func (m *ServiceManager) executor(name string) *retry.Executor {
	provider := providers.NormalizeName(name)
	opts := []retry.Option{
		retry.WithLogger(m.logger),
		retry.WithName(provider),
		retry.WithRetryable(providers.IsRetryable),
		retry.WithObserver(func(attempt int, err error) {
			status := observability.StatusSuccess
			if err != nil {
				status = observability.StatusFailure
			}
			m.metrics.RecordAttempt(provider, status)
		}),
	}
	return retry.New(m.policy, append(opts, m.retryOpts...)...)
}
