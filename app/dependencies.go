package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/almazom/koodo-llm/config"
	"github.com/almazom/koodo-llm/handlers"
	"github.com/almazom/koodo-llm/internal/observability"
	"github.com/almazom/koodo-llm/middleware"
	"github.com/almazom/koodo-llm/repositories"
	"github.com/almazom/koodo-llm/repositories/postgres"
	"github.com/almazom/koodo-llm/services/configs"
	"github.com/almazom/koodo-llm/services/credentials"
	"github.com/almazom/koodo-llm/services/llm"
	"github.com/almazom/koodo-llm/services/providers/chatcompletion"
	"github.com/almazom/koodo-llm/services/providers/gemini"
	"github.com/almazom/koodo-llm/services/retry"
	"github.com/almazom/koodo-llm/services/summaries"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	LLMConfigs   repositories.LLMConfigRepository
	LLMSummaries repositories.LLMSummaryRepository
	TxManager    repositories.TransactionManager

	// Metrics is nil when metrics are disabled
	Metrics         *observability.PrometheusMetrics
	MetricsRegistry *prometheus.Registry

	// Services
	LLM         *llm.ServiceManager
	Configs     *configs.Service
	Summaries   *summaries.Service
	Credentials credentials.Source

	// AuthMiddleware is nil when no JWT secret is configured
	AuthMiddleware *middleware.AuthMiddleware

	// Handlers
	HealthHandler    *handlers.HealthHandler
	LLMHandler       *handlers.LLMHandler
	ConfigsHandler   *handlers.ConfigsHandler
	SummariesHandler *handlers.SummariesHandler
}

// NewDependencies connects to the database and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := Build(ctx, cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// Build wires all dependencies on top of an existing repository factory
func Build(ctx context.Context, cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	if cfg.Database.InitSchema {
		if err := factory.InitSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		logger.Info("database schema ready")
	}

	deps.initRepositories()
	deps.initMetrics()

	if err := deps.initServices(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initAuth()
	deps.initHandlers()

	logger.Info("all dependencies initialized successfully",
		zap.Strings("providers", deps.LLM.ListProviderNames()),
		zap.String("default_provider", deps.LLM.DefaultProvider()),
		zap.Bool("auth_enabled", deps.AuthMiddleware != nil),
	)
	return deps, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.LLMConfigs = repos.LLMConfigs
	d.LLMSummaries = repos.LLMSummaries
	d.TxManager = d.RepoFactory.GetTransactionManager()
}

// initMetrics creates a dedicated registry so repeated wiring never double-registers
func (d *Dependencies) initMetrics() {
	if !d.Config.Observability.MetricsEnabled {
		return
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.MetricsRegistry = reg
	d.Metrics = observability.NewPrometheusMetrics(reg)
}

func (d *Dependencies) initServices(ctx context.Context) error {
	// Saving or deleting a config rebuilds the providers with the new keys
	d.Configs = configs.NewService(d.LLMConfigs, d.TxManager, d.Logger.Named("configs"),
		configs.WithOnChange(d.RegisterProviders),
	)

	// Keys saved through the API take precedence over the environment
	d.Credentials = credentials.ChainSource{
		credentials.NewStoredSource(d.LLMConfigs, d.Logger.Named("credentials")),
		credentials.StaticSource{
			chatcompletion.Minimax.Name:  d.Config.Providers.Minimax.APIKey,
			chatcompletion.DeepSeek.Name: d.Config.Providers.DeepSeek.APIKey,
			gemini.Name:                  d.Config.Providers.Gemini.APIKey,
		},
	}

	policy := retry.Policy{
		MaxRetries:         d.Config.LLM.MaxRetries,
		BaseDelay:          d.Config.LLM.RetryDelay,
		ExponentialBackoff: d.Config.LLM.ExponentialBackoff,
	}
	opts := []llm.Option{}
	if d.Metrics != nil {
		opts = append(opts, llm.WithMetrics(d.Metrics))
	}
	d.LLM = llm.NewServiceManager(llm.ServiceConfig{
		DefaultProvider:   d.Config.LLM.DefaultProvider,
		FallbackProviders: d.Config.LLM.FallbackProviders,
		RetryPolicy:       &policy,
	}, d.Logger.Named("llm"), opts...)

	if err := d.RegisterProviders(ctx); err != nil {
		return err
	}

	// A default that names no adapter would fail every request
	if _, err := d.LLM.GetProvider(d.LLM.DefaultProvider()); err != nil {
		return fmt.Errorf("default provider %q: %w", d.LLM.DefaultProvider(), err)
	}

	d.Summaries = summaries.NewService(d.LLM, d.LLMSummaries, d.Configs, d.Config.LLM.SummaryConcurrency, d.Logger.Named("summaries"))
	return nil
}

// RegisterProviders (re)creates every vendor provider with the currently
// resolved credentials. A provider without a credential is still registered
// and reports credential_missing on use. An endpoint stored with a key
// replaces the configured base URL of a chat-completion vendor.
func (d *Dependencies) RegisterProviders(ctx context.Context) error {
	vendors := []struct {
		profile chatcompletion.Profile
		cfg     config.VendorConfig
	}{
		{chatcompletion.Minimax, d.Config.Providers.Minimax},
		{chatcompletion.DeepSeek, d.Config.Providers.DeepSeek},
	}

	for _, v := range vendors {
		cred := credentials.Resolve(ctx, d.Credentials, v.profile.Name)
		baseURL := v.cfg.BaseURL
		if cred.Endpoint != "" {
			baseURL = cred.Endpoint
		}
		adapter := chatcompletion.New(v.profile, chatcompletion.Config{
			APIKey:  cred.APIKey,
			BaseURL: baseURL,
			Timeout: v.cfg.Timeout,
		})
		if err := d.LLM.RegisterProvider(v.profile.Name, adapter); err != nil {
			return fmt.Errorf("failed to register %s: %w", v.profile.Name, err)
		}
		d.logCredential(v.profile.Name, cred.APIKey)
	}

	// The Gemini SDK picks its own endpoint; only the key is taken from a stored config
	geminiKey := credentials.Resolve(ctx, d.Credentials, gemini.Name).APIKey
	geminiProvider, err := gemini.New(ctx, gemini.Config{
		APIKey:     geminiKey,
		HTTPClient: &http.Client{Timeout: d.Config.Providers.Gemini.Timeout},
	})
	if err != nil {
		return fmt.Errorf("failed to create %s provider: %w", gemini.Name, err)
	}
	if err := d.LLM.RegisterProvider(gemini.Name, geminiProvider); err != nil {
		return fmt.Errorf("failed to register %s: %w", gemini.Name, err)
	}
	d.logCredential(gemini.Name, geminiKey)

	return nil
}

func (d *Dependencies) logCredential(provider, key string) {
	if key == "" {
		d.Logger.Warn("provider has no credential", zap.String("provider", provider))
	}
}

// initAuth enables bearer authentication when a JWT secret is configured
func (d *Dependencies) initAuth() {
	if d.Config.Auth.JWTSecret == "" {
		d.Logger.Warn("AUTH_JWT_SECRET not set; API routes are unauthenticated")
		return
	}

	validator := middleware.NewHMACValidator(d.Config.Auth.JWTSecret, d.Config.Auth.JWTIssuer)
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger.Named("auth"))
}

func (d *Dependencies) initHandlers() {
	d.HealthHandler = handlers.NewHealthHandler(d.DB, d.LLM, d.Logger)
	d.LLMHandler = handlers.NewLLMHandler(d.LLM, d.Logger)
	d.ConfigsHandler = handlers.NewConfigsHandler(d.Configs, d.Logger)
	d.SummariesHandler = handlers.NewSummariesHandler(d.Summaries, d.Logger)
}

// Close releases the database connection
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("closing dependencies")

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}
