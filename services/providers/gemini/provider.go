// Package gemini implements providers.Provider on top of the Google Gen AI SDK.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/almazom/koodo-llm/services/providers"
)

// Name is the registry name of the Gemini provider
const Name = "gemini"

// Models known to the provider
const (
	ModelFlash = "gemini-2.0-flash"
	ModelPro   = "gemini-1.5-pro"
)

// generator is the slice of the SDK the provider depends on.
// *genai.Models satisfies it.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config holds the Gemini provider settings
type Config struct {
	APIKey     string
	HTTPClient *http.Client
}

// Provider talks to the Gemini API
type Provider struct {
	models generator
}

// New creates a Gemini provider. A provider without an API key is valid:
// every generation call then fails with a credential-missing error.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return &Provider{}, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Provider{models: client.Models}, nil
}

// GenerateSummary condenses text
func (p *Provider) GenerateSummary(ctx context.Context, text string, opts providers.GenerationOptions) (*providers.GenerationResult, error) {
	system, user := providers.SummaryPrompt(text, opts)
	return p.generate(ctx, opts.ModelOr(ModelFlash), system, user, generationConfig(
		opts,
		opts.TemperatureOr(providers.SummaryTemperature),
		opts.MaxTokensOr(providers.SummaryMaxTokens),
	))
}

// GenerateThemedPoem writes a short poem on theme
func (p *Provider) GenerateThemedPoem(ctx context.Context, theme string, opts providers.GenerationOptions) (*providers.GenerationResult, error) {
	system, user := providers.ThemedPoemPrompt(theme, opts)
	return p.generate(ctx, opts.ModelOr(ModelFlash), system, user, generationConfig(
		opts,
		opts.TemperatureOr(providers.PoemTemperature),
		opts.MaxTokensOr(providers.PoemMaxTokens),
	))
}

// CheckCredential issues a minimal generation and reports whether it succeeded
func (p *Provider) CheckCredential(ctx context.Context) bool {
	if p.models == nil {
		return false
	}

	_, err := p.models.GenerateContent(ctx, ModelFlash, genai.Text("Hello"), &genai.GenerateContentConfig{
		MaxOutputTokens: 10,
	})
	return err == nil
}

// DescribeModel returns metadata about the default model
func (p *Provider) DescribeModel() providers.ModelInfo {
	return providers.ModelInfo{
		Name:     ModelFlash,
		Provider: Name,
		Capabilities: []string{
			providers.CapabilitySummarization,
			providers.CapabilityPoemGeneration,
			providers.CapabilityTextGeneration,
		},
		ContextWindow:   1048576,
		MaxOutputTokens: 8192,
	}
}

// ListAvailableModels returns the statically known Gemini models
func (p *Provider) ListAvailableModels() []string {
	return []string{ModelFlash, ModelPro}
}

func (p *Provider) generate(ctx context.Context, model, system, user string, config *genai.GenerateContentConfig) (*providers.GenerationResult, error) {
	if p.models == nil {
		return nil, providers.NewCredentialMissingError(Name)
	}

	config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}

	resp, err := p.models.GenerateContent(ctx, model, genai.Text(user), config)
	if err != nil {
		return nil, providers.NewUpstreamError(Name, "generate content failed", 0, err)
	}

	text, err := extractText(resp)
	if err != nil {
		return nil, err
	}

	result := &providers.GenerationResult{
		Text:  text,
		Model: model,
	}
	// Usage is optional for Gemini; absent counts stay zero
	if usage := resp.UsageMetadata; usage != nil {
		result.TokensInput = nonNegative(usage.PromptTokenCount)
		result.TokensOutput = nonNegative(usage.CandidatesTokenCount)
		result.TokensUsed = nonNegative(usage.TotalTokenCount)
	}
	return result, nil
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", providers.NewMalformedResponseError(Name, "response has no candidates", nil)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", providers.NewMalformedResponseError(Name, "content blocked by safety filters", nil)
	}
	if candidate.Content == nil {
		return "", providers.NewMalformedResponseError(Name, "candidate has no content", nil)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", providers.NewMalformedResponseError(Name, "candidate has no text", nil)
	}
	return sb.String(), nil
}

func generationConfig(opts providers.GenerationOptions, temperature float64, maxTokens int) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(temperature)),
		MaxOutputTokens: int32(maxTokens),
	}
	if opts.TopP != nil {
		config.TopP = genai.Ptr(float32(*opts.TopP))
	}
	return config
}

func nonNegative(n int32) int {
	if n < 0 {
		return 0
	}
	return int(n)
}
