package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/almazom/koodo-llm/services/llm"
	"github.com/almazom/koodo-llm/services/providers"
	"github.com/almazom/koodo-llm/services/providers/chatcompletion"
	"github.com/almazom/koodo-llm/services/providers/providerstest"
	"github.com/almazom/koodo-llm/services/retry"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

// newManager builds a service manager over fakes: minimax is the default, deepseek the fallback
func newManager(t *testing.T, minimax, deepseek *providerstest.FakeProvider) *llm.ServiceManager {
	t.Helper()
	policy := retry.Policy{MaxRetries: 1}
	m := llm.NewServiceManager(llm.ServiceConfig{
		DefaultProvider:   "minimax",
		FallbackProviders: []string{"deepseek"},
		RetryPolicy:       &policy,
	}, zap.NewNop(), llm.WithRetryOptions(retry.WithSleeper(noSleep)))

	require.NoError(t, m.RegisterProvider("minimax", minimax))
	require.NoError(t, m.RegisterProvider("deepseek", deepseek))
	return m
}

func newLLMRouter(h *LLMHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/llm/summaries", h.HandleGenerateSummary)
	r.Post("/llm/poems", h.HandleGenerateThemedPoem)
	r.Get("/llm/providers", h.HandleListProviders)
	r.Put("/llm/providers/default", h.HandleSetDefaultProvider)
	r.Get("/llm/providers/{name}/credential", h.HandleCheckCredential)
	return r
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func TestLLMHandler_GenerateSummary(t *testing.T) {
	t.Run("default provider", func(t *testing.T) {
		minimax := providerstest.New("MiniMax-Text-01", providerstest.Succeeding("MiniMax-Text-01", "Кратко.", 42))
		deepseek := providerstest.New("deepseek-v3")
		router := newLLMRouter(NewLLMHandler(newManager(t, minimax, deepseek), nil))

		w := doJSON(t, router, http.MethodPost, "/llm/summaries", SummaryRequest{Text: "Длинная глава"})

		require.Equal(t, http.StatusOK, w.Code)
		var result providers.GenerationResult
		decodeData(t, w, &result)
		assert.Equal(t, "Кратко.", result.Text)
		assert.Equal(t, 42, result.TokensUsed)
		assert.False(t, result.UsedFallback)
		assert.Equal(t, []string{"Длинная глава"}, minimax.Texts())
		assert.Zero(t, deepseek.Calls())
	})

	t.Run("falls back when the primary is exhausted", func(t *testing.T) {
		minimax := providerstest.New("MiniMax-Text-01", providerstest.Failing(providers.NewUpstreamError("minimax", "overloaded", 503, nil)))
		deepseek := providerstest.New("deepseek-v3", providerstest.Succeeding("deepseek-v3", "fallback text", 7))
		router := newLLMRouter(NewLLMHandler(newManager(t, minimax, deepseek), nil))

		w := doJSON(t, router, http.MethodPost, "/llm/summaries", SummaryRequest{Text: "chapter"})

		require.Equal(t, http.StatusOK, w.Code)
		var result providers.GenerationResult
		decodeData(t, w, &result)
		assert.True(t, result.UsedFallback)
		assert.NotEmpty(t, result.OriginalModel)
		assert.NotEmpty(t, result.FallbackModel)
		assert.Equal(t, 2, minimax.Calls())
	})

	t.Run("every provider failing maps to bad gateway", func(t *testing.T) {
		failure := providerstest.Failing(providers.NewUpstreamError("x", "down", 500, nil))
		router := newLLMRouter(NewLLMHandler(newManager(t,
			providerstest.New("MiniMax-Text-01", failure),
			providerstest.New("deepseek-v3", failure),
		), nil))

		w := doJSON(t, router, http.MethodPost, "/llm/summaries", SummaryRequest{Text: "chapter"})

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("unknown model prefix is not found", func(t *testing.T) {
		router := newLLMRouter(NewLLMHandler(newManager(t,
			providerstest.New("MiniMax-Text-01"),
			providerstest.New("deepseek-v3"),
		), nil))

		w := doJSON(t, router, http.MethodPost, "/llm/summaries", SummaryRequest{
			Text:    "chapter",
			Options: providers.GenerationOptions{Model: "claude-3"},
		})

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	tests := []struct {
		name string
		body interface{}
	}{
		{"empty body", ""},
		{"blank text", SummaryRequest{Text: "   "}},
		{"unknown field", `{"text": "x", "extra": true}`},
		{"temperature out of range", `{"text": "x", "options": {"temperature": 3}}`},
		{"top_p out of range", `{"text": "x", "options": {"top_p": 1.5}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			minimax := providerstest.New("MiniMax-Text-01")
			router := newLLMRouter(NewLLMHandler(newManager(t, minimax, providerstest.New("deepseek-v3")), nil))

			w := doJSON(t, router, http.MethodPost, "/llm/summaries", tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Zero(t, minimax.Calls())
		})
	}
}

func TestLLMHandler_GenerateThemedPoem(t *testing.T) {
	minimax := providerstest.New("MiniMax-Text-01", providerstest.Succeeding("MiniMax-Text-01", "Листья кружат", 12))
	router := newLLMRouter(NewLLMHandler(newManager(t, minimax, providerstest.New("deepseek-v3")), nil))

	w := doJSON(t, router, http.MethodPost, "/llm/poems", PoemRequest{Theme: "осень"})

	require.Equal(t, http.StatusOK, w.Code)
	var poem PoemResponse
	decodeData(t, w, &poem)
	assert.Equal(t, "Листья кружат", poem.Poem)
	assert.Equal(t, 12, poem.TokensUsed)
	assert.Equal(t, []string{"осень"}, minimax.Themes())

	w = doJSON(t, router, http.MethodPost, "/llm/poems", PoemRequest{Theme: ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLLMHandler_GenerateThemedPoem_CredentialMissing(t *testing.T) {
	missing := providerstest.Failing(providers.NewCredentialMissingError("minimax"))
	router := newLLMRouter(NewLLMHandler(newManager(t,
		providerstest.New("MiniMax-Text-01", missing),
		providerstest.New("deepseek-v3", providerstest.Failing(providers.NewCredentialMissingError("deepseek"))),
	), nil))

	w := doJSON(t, router, http.MethodPost, "/llm/poems", PoemRequest{Theme: "зима"})

	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestLLMHandler_Providers(t *testing.T) {
	minimax := providerstest.New("MiniMax-Text-01")
	deepseek := providerstest.New("deepseek-v3")
	deepseek.SetCredentialValid(false)
	router := newLLMRouter(NewLLMHandler(newManager(t, minimax, deepseek), zap.NewNop()))

	t.Run("list", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/llm/providers", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var resp ProvidersResponse
		decodeData(t, w, &resp)
		assert.Equal(t, "minimax", resp.Default)
		assert.Equal(t, []string{"deepseek"}, resp.Fallbacks)
		require.Len(t, resp.Providers, 2)
		assert.Equal(t, "deepseek", resp.Providers[0].Name)
		assert.False(t, resp.Providers[0].IsDefault)
		assert.Equal(t, "minimax", resp.Providers[1].Name)
		assert.True(t, resp.Providers[1].IsDefault)
		assert.Equal(t, "MiniMax-Text-01", resp.Providers[1].Model.Name)
		assert.Equal(t, []string{"MiniMax-Text-01"}, resp.Providers[1].Models)
	})

	t.Run("catalog tags the reasoning model", func(t *testing.T) {
		m := newManager(t, providerstest.New("MiniMax-Text-01"), providerstest.New("deepseek-v3"))
		require.NoError(t, m.RegisterProvider("deepseek", chatcompletion.New(chatcompletion.DeepSeek, chatcompletion.Config{})))
		router := newLLMRouter(NewLLMHandler(m, zap.NewNop()))

		w := doJSON(t, router, http.MethodGet, "/llm/providers", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var resp ProvidersResponse
		decodeData(t, w, &resp)
		require.Len(t, resp.Providers, 2)
		require.Len(t, resp.Providers[0].Catalog, 2)
		assert.Equal(t, "deepseek-r1", resp.Providers[0].Catalog[1].Name)
		assert.Contains(t, resp.Providers[0].Catalog[1].Capabilities, providers.CapabilityReasoning)
		assert.Empty(t, resp.Providers[1].Catalog, "fakes describe only their default model")
	})

	t.Run("set default", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPut, "/llm/providers/default", SetDefaultProviderRequest{Provider: "DeepSeek"})

		require.Equal(t, http.StatusOK, w.Code)
		var resp map[string]string
		decodeData(t, w, &resp)
		assert.Equal(t, "deepseek", resp["default"])
	})

	t.Run("set unknown default", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPut, "/llm/providers/default", SetDefaultProviderRequest{Provider: "gemini"})

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("set default requires a name", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPut, "/llm/providers/default", `{}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("check credential", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/llm/providers/MiniMax/credential", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp CredentialResponse
		decodeData(t, w, &resp)
		assert.Equal(t, CredentialResponse{Provider: "minimax", Valid: true}, resp)

		w = doJSON(t, router, http.MethodGet, "/llm/providers/deepseek/credential", nil)
		require.Equal(t, http.StatusOK, w.Code)
		decodeData(t, w, &resp)
		assert.False(t, resp.Valid)
	})

	t.Run("check credential of unknown provider", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/llm/providers/ghost/credential", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
