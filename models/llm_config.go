package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LLMProvider identifies a configurable vendor/model family
type LLMProvider string

const (
	ProviderDeepSeekV3    LLMProvider = "deepseek_v3"
	ProviderDeepSeekR1    LLMProvider = "deepseek_r1"
	ProviderGwen25Max     LLMProvider = "gwen_25_max"
	ProviderMinimax       LLMProvider = "minimax"
	ProviderGeminiFlash20 LLMProvider = "gemini_flash_20"
)

// LLMProviders lists every supported provider value
var LLMProviders = []LLMProvider{
	ProviderDeepSeekV3,
	ProviderDeepSeekR1,
	ProviderGwen25Max,
	ProviderMinimax,
	ProviderGeminiFlash20,
}

// IsValid reports whether p is a supported provider
func (p LLMProvider) IsValid() bool {
	for _, known := range LLMProviders {
		if p == known {
			return true
		}
	}
	return false
}

// Model returns the model identifier requested for this provider, or "" when
// the gateway has no adapter for it. The prefix of the model selects the registry entry.
func (p LLMProvider) Model() string {
	switch p {
	case ProviderDeepSeekV3:
		return "deepseek-v3"
	case ProviderDeepSeekR1:
		return "deepseek-r1"
	case ProviderMinimax:
		return "MiniMax-Text-01"
	case ProviderGeminiFlash20:
		return "gemini-2.0-flash"
	default:
		return ""
	}
}

// LLMParameters are the sampling parameters stored with a configuration
type LLMParameters struct {
	Temperature float64 `json:"temperature" validate:"gte=0,lte=2"`
	TopP        float64 `json:"topP" validate:"gte=0,lte=1"`
	MaxTokens   int     `json:"maxTokens,omitempty" validate:"gte=0"`
}

// Value stores the parameters as JSONB
func (p LLMParameters) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan reads the parameters from a JSONB column
func (p *LLMParameters) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = LLMParameters{}
		return nil
	case []byte:
		*p = LLMParameters{}
		return json.Unmarshal(v, p)
	case string:
		*p = LLMParameters{}
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("unsupported parameters column type %T", src)
	}
}

// DefaultParameters returns the recommended parameters for provider
func DefaultParameters(provider LLMProvider) LLMParameters {
	switch provider {
	case ProviderDeepSeekV3:
		return LLMParameters{Temperature: 0.7, TopP: 0.9}
	case ProviderDeepSeekR1:
		return LLMParameters{Temperature: 0.8, TopP: 0.9}
	case ProviderGwen25Max:
		return LLMParameters{Temperature: 0.7, TopP: 1.0}
	case ProviderMinimax:
		return LLMParameters{Temperature: 0.5, TopP: 0.95}
	case ProviderGeminiFlash20:
		return LLMParameters{Temperature: 0.7, TopP: 0.95}
	default:
		return LLMParameters{Temperature: 0.7, TopP: 0.9}
	}
}

// LLMConfig is a stored vendor configuration. At most one config is the default.
type LLMConfig struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	Provider    LLMProvider   `json:"provider" db:"provider" validate:"required,oneof=deepseek_v3 deepseek_r1 gwen_25_max minimax gemini_flash_20"`
	APIKey      string        `json:"-" db:"api_key"` // Never expose in JSON
	APIEndpoint string        `json:"apiEndpoint,omitempty" db:"api_endpoint" validate:"omitempty,url"`
	IsDefault   bool          `json:"isDefault" db:"is_default"`
	Name        string        `json:"name" db:"name" validate:"required,max=100"`
	Parameters  LLMParameters `json:"parameters" db:"parameters"`
	CreatedAt   time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time     `json:"updatedAt" db:"updated_at"`
}

// TableName returns the table name for the LLMConfig model
func (LLMConfig) TableName() string {
	return "llm_configs"
}

// NewLLMConfig creates a configuration with the provider's default parameters
func NewLLMConfig(provider LLMProvider, name, apiKey string) *LLMConfig {
	now := time.Now()
	return &LLMConfig{
		ID:         uuid.New(),
		Provider:   provider,
		APIKey:     apiKey,
		Name:       name,
		Parameters: DefaultParameters(provider),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// HasAPIKey reports whether a credential is stored
func (c *LLMConfig) HasAPIKey() bool {
	return c.APIKey != ""
}
