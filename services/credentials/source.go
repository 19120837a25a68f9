// Package credentials resolves vendor API keys from the environment and from
// stored configurations. Providers receive the resolved key at construction.
package credentials

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/almazom/koodo-llm/models"
	"github.com/almazom/koodo-llm/repositories"
	"github.com/almazom/koodo-llm/services/providers"
)

// Credential is a resolved vendor key together with the endpoint stored
// alongside it. An empty Endpoint keeps the vendor default.
type Credential struct {
	APIKey   string
	Endpoint string
}

// Source looks up the credential of a registry provider name
type Source interface {
	Lookup(ctx context.Context, provider string) (Credential, bool)
}

// StaticSource serves keys fixed at startup, e.g. from environment variables.
// Names are case-insensitive; blank keys count as absent.
type StaticSource map[string]string

// Lookup implements Source
func (s StaticSource) Lookup(_ context.Context, provider string) (Credential, bool) {
	key := strings.TrimSpace(s[strings.ToLower(provider)])
	return Credential{APIKey: key}, key != ""
}

// ChainSource tries each source in order and returns the first hit
type ChainSource []Source

// Lookup implements Source
func (c ChainSource) Lookup(ctx context.Context, provider string) (Credential, bool) {
	for _, src := range c {
		if src == nil {
			continue
		}
		if cred, ok := src.Lookup(ctx, provider); ok {
			return cred, true
		}
	}
	return Credential{}, false
}

// StoredSource reads keys saved with vendor configurations. The default
// configuration wins when several map to the same provider.
type StoredSource struct {
	repo   repositories.LLMConfigRepository
	logger *zap.Logger
}

// NewStoredSource creates a source backed by the configuration repository
func NewStoredSource(repo repositories.LLMConfigRepository, logger *zap.Logger) *StoredSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoredSource{repo: repo, logger: logger}
}

// Lookup implements Source. The repository is read on every call so keys
// saved after startup are seen by the next lookup.
func (s *StoredSource) Lookup(ctx context.Context, provider string) (Credential, bool) {
	configs, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Warn("failed to read stored credentials", zap.String("provider", provider), zap.Error(err))
		return Credential{}, false
	}

	provider = strings.ToLower(provider)
	var found *models.LLMConfig
	for _, cfg := range configs {
		if !cfg.HasAPIKey() || RegistryName(cfg.Provider) != provider {
			continue
		}
		if cfg.IsDefault {
			found = cfg
			break
		}
		if found == nil {
			found = cfg
		}
	}
	if found == nil {
		return Credential{}, false
	}
	return Credential{
		APIKey:   strings.TrimSpace(found.APIKey),
		Endpoint: strings.TrimSpace(found.APIEndpoint),
	}, true
}

// RegistryName maps a configuration provider to the registry name serving it,
// or "" when no adapter exists
func RegistryName(p models.LLMProvider) string {
	return providers.ProviderNameForModel(p.Model())
}

// Resolve returns the credential for provider, zero when no source has one
func Resolve(ctx context.Context, src Source, provider string) Credential {
	if src == nil {
		return Credential{}
	}
	cred, _ := src.Lookup(ctx, provider)
	return cred
}
