// Package chatcompletion implements providers.Provider for vendors exposing a
// chat-completion style HTTP endpoint (Minimax, DeepSeek).
package chatcompletion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/almazom/koodo-llm/services/providers"
)

const defaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of a failed response ends up in an error message
const maxErrorBody = 512

// Profile describes one vendor speaking the chat-completion dialect
type Profile struct {
	// Name is the registry name, also reported in ModelInfo.Provider
	Name string

	// BaseURL is the full endpoint URL requests are POSTed to
	BaseURL string

	// DefaultModel serves requests that name no model
	DefaultModel string

	// ReasoningModel is the secondary, reasoning-oriented model
	ReasoningModel string

	ContextWindow   int
	MaxOutputTokens int
}

// Minimax is the profile for the Minimax chat-completion API
var Minimax = Profile{
	Name:            "minimax",
	BaseURL:         "https://api.minimax.chat/v1/text/chatcompletion_pro",
	DefaultModel:    "MiniMax-Text-01",
	ReasoningModel:  "DeepSeek-R1",
	ContextWindow:   16000,
	MaxOutputTokens: 4000,
}

// DeepSeek is the profile for the DeepSeek chat-completion API
var DeepSeek = Profile{
	Name:            "deepseek",
	BaseURL:         "https://api.deepseek.com/v1/chat/completions",
	DefaultModel:    "deepseek-v3",
	ReasoningModel:  "deepseek-r1",
	ContextWindow:   16000,
	MaxOutputTokens: 4000,
}

// Config holds the per-instance settings of an adapter
type Config struct {
	// APIKey is the bearer credential; empty means "not configured"
	APIKey string

	// BaseURL overrides the profile endpoint (tests, proxies)
	BaseURL string

	// Timeout bounds each request when HTTPClient is not supplied
	Timeout time.Duration

	// HTTPClient replaces the default client
	HTTPClient *http.Client
}

// Adapter implements providers.Provider for one chat-completion vendor
type Adapter struct {
	profile    Profile
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates an adapter for profile
func New(profile Profile, cfg Config) *Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = profile.BaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Adapter{
		profile:    profile,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		httpClient: client,
	}
}

// Name returns the vendor name
func (a *Adapter) Name() string {
	return a.profile.Name
}

// GenerateSummary condenses text with the vendor's chat endpoint
func (a *Adapter) GenerateSummary(ctx context.Context, text string, opts providers.GenerationOptions) (*providers.GenerationResult, error) {
	system, user := providers.SummaryPrompt(text, opts)
	return a.complete(ctx, chatRequest{
		Model:       opts.ModelOr(a.profile.DefaultModel),
		Messages:    conversation(system, user),
		Temperature: opts.TemperatureOr(providers.SummaryTemperature),
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokensOr(providers.SummaryMaxTokens),
	})
}

// GenerateThemedPoem writes a short poem on theme
func (a *Adapter) GenerateThemedPoem(ctx context.Context, theme string, opts providers.GenerationOptions) (*providers.GenerationResult, error) {
	system, user := providers.ThemedPoemPrompt(theme, opts)
	return a.complete(ctx, chatRequest{
		Model:       opts.ModelOr(a.profile.DefaultModel),
		Messages:    conversation(system, user),
		Temperature: opts.TemperatureOr(providers.PoemTemperature),
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokensOr(providers.PoemMaxTokens),
	})
}

// CheckCredential sends a tiny completion and reports whether it was accepted
func (a *Adapter) CheckCredential(ctx context.Context) bool {
	if a.apiKey == "" {
		return false
	}

	resp, err := a.post(ctx, chatRequest{
		Model:     a.profile.DefaultModel,
		Messages:  []chatMessage{{Role: "user", Content: "Hello"}},
		MaxTokens: 10,
	})
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// DescribeModel returns metadata about the default model
func (a *Adapter) DescribeModel() providers.ModelInfo {
	return providers.ModelInfo{
		Name:     a.profile.DefaultModel,
		Provider: a.profile.Name,
		Capabilities: []string{
			providers.CapabilitySummarization,
			providers.CapabilityPoemGeneration,
			providers.CapabilityTextGeneration,
		},
		ContextWindow:   a.profile.ContextWindow,
		MaxOutputTokens: a.profile.MaxOutputTokens,
	}
}

// DescribeModels returns metadata for the default and the reasoning model
func (a *Adapter) DescribeModels() []providers.ModelInfo {
	reasoning := a.DescribeModel()
	reasoning.Name = a.profile.ReasoningModel
	reasoning.Capabilities = []string{
		providers.CapabilitySummarization,
		providers.CapabilityTextGeneration,
		providers.CapabilityReasoning,
	}
	return []providers.ModelInfo{a.DescribeModel(), reasoning}
}

// ListAvailableModels returns the default and reasoning models
func (a *Adapter) ListAvailableModels() []string {
	return []string{a.profile.DefaultModel, a.profile.ReasoningModel}
}

// complete performs exactly one request and converts the response
func (a *Adapter) complete(ctx context.Context, req chatRequest) (*providers.GenerationResult, error) {
	if a.apiKey == "" {
		return nil, providers.NewCredentialMissingError(a.Name())
	}

	resp, err := a.post(ctx, req)
	if err != nil {
		return nil, providers.NewUpstreamError(a.Name(), "HTTP request failed", 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.NewUpstreamError(a.Name(), "failed to read response", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, a.handleErrorResponse(resp.StatusCode, body)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, providers.NewMalformedResponseError(a.Name(), "failed to unmarshal response", err)
	}

	return a.convert(&parsed, req.Model)
}

func (a *Adapter) post(ctx context.Context, req chatRequest) (*http.Response, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	return a.httpClient.Do(httpReq)
}

// convert maps the vendor payload to a GenerationResult.
// The model reported is the one requested, matching what the vendor was asked to run.
func (a *Adapter) convert(resp *chatResponse, model string) (*providers.GenerationResult, error) {
	if len(resp.Choices) == 0 {
		return nil, providers.NewMalformedResponseError(a.Name(), "response has no choices", nil)
	}
	content := resp.Choices[0].Message.Content
	if content == nil {
		return nil, providers.NewMalformedResponseError(a.Name(), "response has no message content", nil)
	}
	if resp.Usage == nil {
		return nil, providers.NewMalformedResponseError(a.Name(), "response has no usage", nil)
	}

	return &providers.GenerationResult{
		Text:         *content,
		TokensUsed:   nonNegative(resp.Usage.TotalTokens),
		TokensInput:  nonNegative(resp.Usage.PromptTokens),
		TokensOutput: nonNegative(resp.Usage.CompletionTokens),
		Model:        model,
	}, nil
}

// handleErrorResponse builds an upstream error from a non-2xx response
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		var cause error
		if errResp.Error.Type != "" {
			cause = errors.New(errResp.Error.Type)
		}
		return providers.NewUpstreamError(a.Name(), errResp.Error.Message, statusCode, cause)
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	if msg == "" {
		msg = http.StatusText(statusCode)
	}
	return providers.NewUpstreamError(a.Name(), msg, statusCode, nil)
}

func conversation(system, user string) []chatMessage {
	return []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// Wire types

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        *float64      `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage"`
}

type chatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string  `json:"role"`
		Content *string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
