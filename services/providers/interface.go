package providers

import (
	"context"
	"errors"
	"fmt"
)

// Provider is the capability set every text-generation vendor implements.
// A single call performs exactly one outbound request; retries belong to the caller.
type Provider interface {
	// GenerateSummary condenses text into a short summary
	GenerateSummary(ctx context.Context, text string, opts GenerationOptions) (*GenerationResult, error)

	// GenerateThemedPoem writes a short poem on the given theme
	GenerateThemedPoem(ctx context.Context, theme string, opts GenerationOptions) (*GenerationResult, error)

	// CheckCredential reports whether the vendor accepts the configured credential.
	// It never returns an error: network and auth failures both yield false.
	CheckCredential(ctx context.Context) bool

	// DescribeModel returns static metadata about the provider's default model
	DescribeModel() ModelInfo

	// ListAvailableModels returns the statically known model names
	ListAvailableModels() []string
}

// GenerationOptions holds per-call overrides. Zero values mean "use the provider default".
type GenerationOptions struct {
	// Model identifier; its prefix also selects the provider (e.g. "deepseek-r1")
	Model string `json:"model,omitempty"`

	// Temperature controls randomness
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`

	// TopP controls nucleus sampling
	TopP *float64 `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`

	// MaxTokens caps the response length
	MaxTokens int `json:"max_tokens,omitempty" validate:"gte=0"`

	// Prompt carries free-form template fields (see PromptSystemMessage, PromptUserTemplate)
	Prompt map[string]string `json:"prompt,omitempty"`

	// Language requests the response language
	Language string `json:"language,omitempty"`
}

// TemperatureOr returns the requested temperature or def when unset
func (o GenerationOptions) TemperatureOr(def float64) float64 {
	if o.Temperature != nil {
		return *o.Temperature
	}
	return def
}

// MaxTokensOr returns the requested token cap or def when unset
func (o GenerationOptions) MaxTokensOr(def int) int {
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return def
}

// ModelOr returns the requested model or def when unset
func (o GenerationOptions) ModelOr(def string) string {
	if o.Model != "" {
		return o.Model
	}
	return def
}

// PromptField returns a template field, or "" when absent
func (o GenerationOptions) PromptField(key string) string {
	if o.Prompt == nil {
		return ""
	}
	return o.Prompt[key]
}

// GenerationResult is the vendor-agnostic outcome of a generation call
type GenerationResult struct {
	// Text is the generated content
	Text string `json:"summary"`

	// TokensUsed is the total token count reported by the vendor
	TokensUsed int `json:"tokensUsed"`

	// TokensInput is the prompt token count
	TokensInput int `json:"tokensInput"`

	// TokensOutput is the completion token count
	TokensOutput int `json:"tokensOutput"`

	// Model that produced the text
	Model string `json:"model"`

	// UsedFallback is set when a fallback provider served the request.
	// OriginalModel and FallbackModel are both non-empty whenever it is true.
	UsedFallback  bool   `json:"usedFallback"`
	OriginalModel string `json:"originalModel,omitempty"`
	FallbackModel string `json:"fallbackModel,omitempty"`
}

// ModelInfo contains static metadata about a model
type ModelInfo struct {
	Name            string   `json:"name"`
	Provider        string   `json:"provider"`
	Capabilities    []string `json:"capabilities"`
	ContextWindow   int      `json:"contextWindow"`
	MaxOutputTokens int      `json:"maxOutputTokens"`
}

// ModelCatalog is implemented by providers that can describe every model
// they serve, not only the default one
type ModelCatalog interface {
	DescribeModels() []ModelInfo
}

// Capability tags reported in ModelInfo
const (
	CapabilitySummarization  = "summarization"
	CapabilityPoemGeneration = "poem-generation"
	CapabilityTextGeneration = "text-generation"
	CapabilityReasoning      = "reasoning"
)

var (
	// ErrProviderNotFound is returned when a name has no registration
	ErrProviderNotFound = errors.New("provider not found")

	// ErrCredentialMissing matches provider errors raised before any network call
	ErrCredentialMissing = errors.New("credential missing")

	// ErrUpstream matches transport and non-2xx failures
	ErrUpstream = errors.New("upstream error")

	// ErrMalformedResponse matches 2xx responses without the expected fields
	ErrMalformedResponse = errors.New("malformed response")
)

// ErrorKind classifies a ProviderError
type ErrorKind string

const (
	KindCredentialMissing ErrorKind = "credential_missing"
	KindUpstream          ErrorKind = "upstream"
	KindMalformedResponse ErrorKind = "malformed_response"
)

// ProviderError represents a failed provider call
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Kind classifies the failure
	Kind ErrorKind

	// Message is a human-readable description
	Message string

	// StatusCode is the HTTP status code (0 for transport errors)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is matches the kind sentinels so callers can use errors.Is
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrCredentialMissing:
		return e.Kind == KindCredentialMissing
	case ErrUpstream:
		return e.Kind == KindUpstream
	case ErrMalformedResponse:
		return e.Kind == KindMalformedResponse
	}
	return false
}

// NewCredentialMissingError reports a provider constructed without a credential
func NewCredentialMissingError(provider string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     KindCredentialMissing,
		Message:  "API key not configured",
	}
}

// NewUpstreamError wraps a transport failure or non-2xx response
func NewUpstreamError(provider, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Kind:       KindUpstream,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// NewMalformedResponseError reports a 2xx payload missing expected fields
func NewMalformedResponseError(provider, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     KindMalformedResponse,
		Message:  message,
		Cause:    cause,
	}
}

// KindOf returns the kind of a provider error, or "" for any other error
func KindOf(err error) ErrorKind {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Kind
	}
	return ""
}

// IsRetryable reports whether another attempt could succeed.
// A missing credential cannot fix itself between attempts.
func IsRetryable(err error) bool {
	return !errors.Is(err, ErrCredentialMissing)
}
