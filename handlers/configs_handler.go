package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/almazom/koodo-llm/internal/observability"
	"github.com/almazom/koodo-llm/models"
	"github.com/almazom/koodo-llm/services"
	"github.com/almazom/koodo-llm/utils"
)

// ConfigService defines the configuration operations exposed over HTTP
type ConfigService interface {
	SaveConfig(ctx context.Context, cfg *models.LLMConfig) (*models.LLMConfig, error)
	GetAllConfigs(ctx context.Context) ([]*models.LLMConfig, error)
	GetDefaultConfig(ctx context.Context) (*models.LLMConfig, error)
	GetConfig(ctx context.Context, id uuid.UUID) (*models.LLMConfig, error)
	DeleteConfig(ctx context.Context, id uuid.UUID) error
}

// ConfigRequest is the body of POST /configs and PUT /configs/{id}.
// Omitted parameters fall back to the provider defaults on create; an
// omitted API key keeps the stored one on update.
type ConfigRequest struct {
	Provider    models.LLMProvider    `json:"provider"`
	Name        string                `json:"name"`
	APIKey      string                `json:"apiKey,omitempty"`
	APIEndpoint string                `json:"apiEndpoint,omitempty"`
	IsDefault   bool                  `json:"isDefault"`
	Parameters  *models.LLMParameters `json:"parameters,omitempty"`
}

// ConfigResponse is a stored configuration. The API key itself is never returned.
type ConfigResponse struct {
	*models.LLMConfig
	HasAPIKey bool `json:"hasApiKey"`
}

func newConfigResponse(cfg *models.LLMConfig) ConfigResponse {
	return ConfigResponse{LLMConfig: cfg, HasAPIKey: cfg.HasAPIKey()}
}

// ConfigsHandler handles LLM configuration HTTP requests
type ConfigsHandler struct {
	service ConfigService
	logger  *zap.Logger
}

// NewConfigsHandler creates a new ConfigsHandler
func NewConfigsHandler(service ConfigService, logger *zap.Logger) *ConfigsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigsHandler{
		service: service,
		logger:  logger,
	}
}

// HandleListConfigs handles GET /configs
func (h *ConfigsHandler) HandleListConfigs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	configs, err := h.service.GetAllConfigs(ctx)
	if err != nil {
		HandleServiceError(w, err, observability.WithRequestID(ctx, h.logger))
		return
	}

	response := make([]ConfigResponse, 0, len(configs))
	for _, cfg := range configs {
		response = append(response, newConfigResponse(cfg))
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleGetDefaultConfig handles GET /configs/default
func (h *ConfigsHandler) HandleGetDefaultConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	cfg, err := h.service.GetDefaultConfig(ctx)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}
	if cfg == nil {
		HandleServiceError(w, services.ErrConfigNotFound, logger)
		return
	}

	if err := utils.WriteOK(w, newConfigResponse(cfg)); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleGetConfig handles GET /configs/{id}
func (h *ConfigsHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	id, err := utils.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	cfg, err := h.service.GetConfig(ctx, id)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if err := utils.WriteOK(w, newConfigResponse(cfg)); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleCreateConfig handles POST /configs
func (h *ConfigsHandler) HandleCreateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	var req ConfigRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	params := models.DefaultParameters(req.Provider)
	if req.Parameters != nil {
		params = *req.Parameters
	}

	saved, err := h.service.SaveConfig(ctx, &models.LLMConfig{
		Provider:    req.Provider,
		Name:        req.Name,
		APIKey:      req.APIKey,
		APIEndpoint: req.APIEndpoint,
		IsDefault:   req.IsDefault,
		Parameters:  params,
	})
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if err := utils.WriteCreated(w, newConfigResponse(saved)); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleUpdateConfig handles PUT /configs/{id}
func (h *ConfigsHandler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	id, err := utils.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	var req ConfigRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	cfg, err := h.service.GetConfig(ctx, id)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	cfg.Provider = req.Provider
	cfg.Name = req.Name
	cfg.APIEndpoint = req.APIEndpoint
	cfg.IsDefault = req.IsDefault
	if req.APIKey != "" {
		cfg.APIKey = req.APIKey
	}
	if req.Parameters != nil {
		cfg.Parameters = *req.Parameters
	}

	saved, err := h.service.SaveConfig(ctx, cfg)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if err := utils.WriteOK(w, newConfigResponse(saved)); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleDeleteConfig handles DELETE /configs/{id}
func (h *ConfigsHandler) HandleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	id, err := utils.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	if err := h.service.DeleteConfig(ctx, id); err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	utils.WriteNoContent(w)
}
