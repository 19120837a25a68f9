package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// stubProvider is a minimal Provider used by registry tests
type stubProvider struct {
	model string
}

func (s *stubProvider) GenerateSummary(ctx context.Context, text string, opts GenerationOptions) (*GenerationResult, error) {
	return &GenerationResult{Text: text, Model: s.model}, nil
}

func (s *stubProvider) GenerateThemedPoem(ctx context.Context, theme string, opts GenerationOptions) (*GenerationResult, error) {
	return &GenerationResult{Text: theme, Model: s.model}, nil
}

func (s *stubProvider) CheckCredential(ctx context.Context) bool { return true }

func (s *stubProvider) DescribeModel() ModelInfo { return ModelInfo{Name: s.model} }

func (s *stubProvider) ListAvailableModels() []string { return []string{s.model} }

func TestProviderError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "credential missing",
			err:    NewCredentialMissingError("minimax"),
			target: ErrCredentialMissing,
			want:   true,
		},
		{
			name:   "upstream",
			err:    NewUpstreamError("minimax", "request failed", 502, errors.New("bad gateway")),
			target: ErrUpstream,
			want:   true,
		},
		{
			name:   "malformed",
			err:    NewMalformedResponseError("minimax", "no choices", nil),
			target: ErrMalformedResponse,
			want:   true,
		},
		{
			name:   "upstream is not malformed",
			err:    NewUpstreamError("minimax", "request failed", 500, nil),
			target: ErrMalformedResponse,
			want:   false,
		},
		{
			name:   "wrapped upstream",
			err:    fmt.Errorf("call failed: %w", NewUpstreamError("deepseek", "timeout", 0, nil)),
			target: ErrUpstream,
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProviderError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewUpstreamError("minimax", "request failed", 0, cause)

	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() = %q, want cause in message", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(NewMalformedResponseError("x", "y", nil)); got != KindMalformedResponse {
		t.Errorf("KindOf() = %q, want %q", got, KindMalformedResponse)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf() = %q, want empty", got)
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(NewCredentialMissingError("minimax")) {
		t.Error("credential errors must not be retryable")
	}
	if !IsRetryable(NewUpstreamError("minimax", "boom", 503, nil)) {
		t.Error("upstream errors must be retryable")
	}
	if !IsRetryable(NewMalformedResponseError("minimax", "no usage", nil)) {
		t.Error("malformed responses must be retryable")
	}
}

func TestGenerationOptions_Defaults(t *testing.T) {
	var opts GenerationOptions

	if got := opts.TemperatureOr(0.7); got != 0.7 {
		t.Errorf("TemperatureOr() = %v, want 0.7", got)
	}
	if got := opts.MaxTokensOr(2000); got != 2000 {
		t.Errorf("MaxTokensOr() = %d, want 2000", got)
	}
	if got := opts.ModelOr("MiniMax-Text-01"); got != "MiniMax-Text-01" {
		t.Errorf("ModelOr() = %s, want MiniMax-Text-01", got)
	}
	if got := opts.PromptField(PromptSystemMessage); got != "" {
		t.Errorf("PromptField() = %q, want empty", got)
	}

	temp := 0.0
	opts = GenerationOptions{Model: "deepseek-r1", Temperature: &temp, MaxTokens: 50}
	if got := opts.TemperatureOr(0.7); got != 0 {
		t.Errorf("TemperatureOr() = %v, want explicit 0", got)
	}
	if got := opts.MaxTokensOr(2000); got != 50 {
		t.Errorf("MaxTokensOr() = %d, want 50", got)
	}
	if got := opts.ModelOr("x"); got != "deepseek-r1" {
		t.Errorf("ModelOr() = %s, want deepseek-r1", got)
	}
}

func TestSummaryPrompt(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		system, user := SummaryPrompt("глава", GenerationOptions{})
		if system != defaultSummarySystemMessage {
			t.Errorf("system = %q", system)
		}
		if !strings.HasSuffix(user, "глава") {
			t.Errorf("user = %q, want text at the end", user)
		}
	})

	t.Run("template overrides", func(t *testing.T) {
		opts := GenerationOptions{Prompt: map[string]string{
			PromptSystemMessage: "sys",
			PromptUserTemplate:  "Summarize: " + ChapterContentPlaceholder + "!",
		}}
		system, user := SummaryPrompt("chapter one", opts)
		if system != "sys" {
			t.Errorf("system = %q, want sys", system)
		}
		if user != "Summarize: chapter one!" {
			t.Errorf("user = %q", user)
		}
	})

	t.Run("only the first placeholder is filled", func(t *testing.T) {
		opts := GenerationOptions{Prompt: map[string]string{
			PromptUserTemplate: ChapterContentPlaceholder + " / " + ChapterContentPlaceholder,
		}}
		_, user := SummaryPrompt("text", opts)
		if want := "text / " + ChapterContentPlaceholder; user != want {
			t.Errorf("user = %q, want %q", user, want)
		}
	})

	t.Run("language", func(t *testing.T) {
		_, user := SummaryPrompt("text", GenerationOptions{Language: "English"})
		if !strings.HasSuffix(user, "Respond in English.") {
			t.Errorf("user = %q, want language instruction", user)
		}
	})
}

func TestThemedPoemPrompt(t *testing.T) {
	system, user := ThemedPoemPrompt("зима", GenerationOptions{})
	if system != poemSystemMessage {
		t.Errorf("system = %q", system)
	}
	if !strings.Contains(user, "\"зима\"") {
		t.Errorf("user = %q, want quoted theme", user)
	}
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	t.Run("register and get case-insensitively", func(t *testing.T) {
		if err := registry.Register("MiniMax", &stubProvider{model: "MiniMax-Text-01"}); err != nil {
			t.Fatalf("Register() error = %v", err)
		}

		p, err := registry.Get("minimax")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if p.DescribeModel().Name != "MiniMax-Text-01" {
			t.Errorf("Get() returned wrong provider")
		}
		if !registry.Has("MINIMAX") {
			t.Error("Has() = false, want true")
		}
	})

	t.Run("re-registration replaces", func(t *testing.T) {
		if err := registry.Register("minimax", &stubProvider{model: "replacement"}); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
		p, _ := registry.Get("minimax")
		if p.DescribeModel().Name != "replacement" {
			t.Error("expected the second registration to win")
		}
		if registry.Count() != 1 {
			t.Errorf("Count() = %d, want 1", registry.Count())
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := registry.Get("ghost")
		if !errors.Is(err, ErrProviderNotFound) {
			t.Errorf("Get() error = %v, want ErrProviderNotFound", err)
		}
	})

	t.Run("invalid registrations", func(t *testing.T) {
		if err := registry.Register("", &stubProvider{}); err == nil {
			t.Error("expected error for empty name")
		}
		if err := registry.Register("nil", nil); err == nil {
			t.Error("expected error for nil provider")
		}
	})

	t.Run("names are sorted", func(t *testing.T) {
		_ = registry.Register("DeepSeek", &stubProvider{model: "deepseek-v3"})
		_ = registry.Register("gemini", &stubProvider{model: "gemini-2.0-flash"})

		names := registry.Names()
		want := []string{"deepseek", "gemini", "minimax"}
		if strings.Join(names, ",") != strings.Join(want, ",") {
			t.Errorf("Names() = %v, want %v", names, want)
		}
	})

	t.Run("unregister", func(t *testing.T) {
		if err := registry.Unregister("Gemini"); err != nil {
			t.Fatalf("Unregister() error = %v", err)
		}
		if registry.Has("gemini") {
			t.Error("gemini still registered")
		}
		if err := registry.Unregister("gemini"); !errors.Is(err, ErrProviderNotFound) {
			t.Errorf("Unregister() error = %v, want ErrProviderNotFound", err)
		}
	})
}

func TestProviderNameForModel(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"deepseek-r1", "deepseek"},
		{"DeepSeek-R1", "deepseek"},
		{"MiniMax-Text-01", "minimax"},
		{"gemini-2.0-flash", "gemini"},
		{"claude", "claude"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := ProviderNameForModel(tt.model); got != tt.want {
				t.Errorf("ProviderNameForModel(%q) = %q, want %q", tt.model, got, tt.want)
			}
		})
	}
}
