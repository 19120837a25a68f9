package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/almazom/koodo-llm/internal/observability"
	"github.com/almazom/koodo-llm/services"
	"github.com/almazom/koodo-llm/services/providers"
	"github.com/almazom/koodo-llm/utils"
)

// LLMService is the slice of the service manager the HTTP layer needs
type LLMService interface {
	GenerateSummary(ctx context.Context, text string, opts providers.GenerationOptions) (*providers.GenerationResult, error)
	GenerateThemedPoem(ctx context.Context, theme string, opts providers.GenerationOptions) (*providers.GenerationResult, error)
	ListProviderNames() []string
	GetProvider(name string) (providers.Provider, error)
	DefaultProvider() string
	FallbackProviders() []string
	SetDefaultProvider(name string) error
	CheckCredential(ctx context.Context, name string) (bool, error)
}

// SummaryRequest is the body of POST /llm/summaries
type SummaryRequest struct {
	Text    string                      `json:"text" validate:"required"`
	Options providers.GenerationOptions `json:"options"`
}

// PoemRequest is the body of POST /llm/poems
type PoemRequest struct {
	Theme   string                      `json:"theme" validate:"required"`
	Options providers.GenerationOptions `json:"options"`
}

// PoemResponse is a generated poem
type PoemResponse struct {
	Poem          string `json:"poem"`
	TokensUsed    int    `json:"tokensUsed"`
	TokensInput   int    `json:"tokensInput"`
	TokensOutput  int    `json:"tokensOutput"`
	Model         string `json:"model"`
	UsedFallback  bool   `json:"usedFallback"`
	OriginalModel string `json:"originalModel,omitempty"`
	FallbackModel string `json:"fallbackModel,omitempty"`
}

// ProviderInfo describes one registered provider
type ProviderInfo struct {
	Name      string              `json:"name"`
	IsDefault bool                `json:"isDefault"`
	Model     providers.ModelInfo `json:"model"`
	Models    []string            `json:"models"`

	// Catalog describes every model when the provider can, default included
	Catalog []providers.ModelInfo `json:"catalog,omitempty"`
}

// ProvidersResponse is the body of GET /llm/providers
type ProvidersResponse struct {
	Default   string         `json:"default"`
	Fallbacks []string       `json:"fallbacks"`
	Providers []ProviderInfo `json:"providers"`
}

// SetDefaultProviderRequest is the body of PUT /llm/providers/default
type SetDefaultProviderRequest struct {
	Provider string `json:"provider" validate:"required"`
}

// CredentialResponse reports whether a provider accepts its credential
type CredentialResponse struct {
	Provider string `json:"provider"`
	Valid    bool   `json:"valid"`
}

// LLMHandler exposes generation and provider management over HTTP
type LLMHandler struct {
	service LLMService
	logger  *zap.Logger
}

// NewLLMHandler creates a new LLMHandler
func NewLLMHandler(service LLMService, logger *zap.Logger) *LLMHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMHandler{
		service: service,
		logger:  logger,
	}
}

// HandleGenerateSummary handles POST /llm/summaries
func (h *LLMHandler) HandleGenerateSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	var req SummaryRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		HandleServiceError(w, services.ErrEmptyText, logger)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	result, err := h.service.GenerateSummary(ctx, req.Text, req.Options)
	if err != nil {
		HandleServiceError(w, services.FromProviderError(err), logger)
		return
	}

	logger.Debug("summary generated",
		zap.String("model", result.Model),
		zap.Int("tokens_used", result.TokensUsed),
		zap.Bool("used_fallback", result.UsedFallback))

	if err := utils.WriteOK(w, result); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleGenerateThemedPoem handles POST /llm/poems
func (h *LLMHandler) HandleGenerateThemedPoem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	var req PoemRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}
	if strings.TrimSpace(req.Theme) == "" {
		HandleServiceError(w, services.ErrEmptyTheme, logger)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	result, err := h.service.GenerateThemedPoem(ctx, req.Theme, req.Options)
	if err != nil {
		HandleServiceError(w, services.FromProviderError(err), logger)
		return
	}

	if err := utils.WriteOK(w, PoemResponse{
		Poem:          result.Text,
		TokensUsed:    result.TokensUsed,
		TokensInput:   result.TokensInput,
		TokensOutput:  result.TokensOutput,
		Model:         result.Model,
		UsedFallback:  result.UsedFallback,
		OriginalModel: result.OriginalModel,
		FallbackModel: result.FallbackModel,
	}); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleListProviders handles GET /llm/providers
func (h *LLMHandler) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	defaultName := h.service.DefaultProvider()
	names := h.service.ListProviderNames()

	response := ProvidersResponse{
		Default:   defaultName,
		Fallbacks: h.service.FallbackProviders(),
		Providers: make([]ProviderInfo, 0, len(names)),
	}
	if response.Fallbacks == nil {
		response.Fallbacks = []string{}
	}

	for _, name := range names {
		// A provider unregistered since Names was read is skipped
		p, err := h.service.GetProvider(name)
		if err != nil {
			continue
		}
		info := ProviderInfo{
			Name:      name,
			IsDefault: name == defaultName,
			Model:     p.DescribeModel(),
			Models:    p.ListAvailableModels(),
		}
		if catalog, ok := p.(providers.ModelCatalog); ok {
			info.Catalog = catalog.DescribeModels()
		}
		response.Providers = append(response.Providers, info)
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleSetDefaultProvider handles PUT /llm/providers/default
func (h *LLMHandler) HandleSetDefaultProvider(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithRequestID(r.Context(), h.logger)

	var req SetDefaultProviderRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	if err := h.service.SetDefaultProvider(req.Provider); err != nil {
		HandleServiceError(w, services.FromProviderError(err), logger)
		return
	}

	if err := utils.WriteOK(w, map[string]string{"default": h.service.DefaultProvider()}); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleCheckCredential handles GET /llm/providers/{name}/credential
func (h *LLMHandler) HandleCheckCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)
	name := chi.URLParam(r, "name")

	valid, err := h.service.CheckCredential(ctx, name)
	if err != nil {
		HandleServiceError(w, services.FromProviderError(err), logger)
		return
	}

	if err := utils.WriteOK(w, CredentialResponse{
		Provider: providers.NormalizeName(name),
		Valid:    valid,
	}); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}
