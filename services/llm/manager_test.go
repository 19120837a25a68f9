package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/almazom/koodo-llm/services/providers"
	"github.com/almazom/koodo-llm/services/providers/providerstest"
	"github.com/almazom/koodo-llm/services/retry"
)

const haiku = "Тихий снегопад\nБелые хлопья кружат\nЗимний сон земли"

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func upstream(provider string) error {
	return providers.NewUpstreamError(provider, "service unavailable", 503, nil)
}

func newManager(t *testing.T, cfg ServiceConfig, logger *zap.Logger) (*ServiceManager, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = &retry.Policy{MaxRetries: 3, BaseDelay: time.Second, ExponentialBackoff: true}
	}
	return NewServiceManager(cfg, logger, WithRetryOptions(retry.WithSleeper(rec.sleep))), rec
}

func TestNewServiceManager_Defaults(t *testing.T) {
	m := NewServiceManager(ServiceConfig{}, nil)

	assert.Equal(t, DefaultProviderName, m.DefaultProvider())
	assert.Empty(t, m.FallbackProviders())
	assert.Equal(t, retry.DefaultPolicy(), m.RetryPolicy())
	assert.Empty(t, m.ListProviderNames())
}

func TestServiceManager_PrimaryExhaustsWithoutFallback(t *testing.T) {
	m, rec := newManager(t, ServiceConfig{DefaultProvider: "minimax"}, nil)
	primary := providerstest.New("MiniMax-Text-01", providerstest.Failing(upstream("minimax")))
	require.NoError(t, m.RegisterProvider("minimax", primary))

	result, err := m.GenerateSummary(context.Background(), "text", providers.GenerationOptions{})

	assert.Nil(t, result)
	assert.True(t, errors.Is(err, providers.ErrUpstream), "got %v", err)
	assert.Equal(t, 4, primary.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.delays)
}

func TestServiceManager_PrimarySucceedsAfterRetry(t *testing.T) {
	m, rec := newManager(t, ServiceConfig{DefaultProvider: "minimax"}, nil)
	primary := providerstest.New("MiniMax-Text-01",
		providerstest.Failing(upstream("minimax")),
		providerstest.Succeeding("MiniMax-Text-01", haiku, 150),
	)
	require.NoError(t, m.RegisterProvider("minimax", primary))

	result, err := m.GenerateThemedPoem(context.Background(), "зима", providers.GenerationOptions{})

	require.NoError(t, err)
	assert.Equal(t, 2, primary.Calls())
	assert.Equal(t, haiku, result.Text)
	assert.Equal(t, 150, result.TokensUsed)
	assert.False(t, result.UsedFallback)
	assert.Empty(t, result.OriginalModel)
	assert.Empty(t, result.FallbackModel)
	assert.Equal(t, []time.Duration{time.Second}, rec.delays)
	assert.Equal(t, []string{"зима", "зима"}, primary.Themes(), "each attempt receives the theme")
}

func TestServiceManager_FallbackSkipsUnregistered(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m, _ := newManager(t, ServiceConfig{
		DefaultProvider:   "minimax",
		FallbackProviders: []string{"ghost", "deepseek"},
	}, zap.New(core))

	primary := providerstest.New("MiniMax-Text-01", providerstest.Failing(upstream("minimax")))
	fallback := providerstest.New("deepseek-v3", providerstest.Succeeding("deepseek-v3", "резюме", 80))
	require.NoError(t, m.RegisterProvider("minimax", primary))
	require.NoError(t, m.RegisterProvider("deepseek", fallback))

	result, err := m.GenerateSummary(context.Background(), "text", providers.GenerationOptions{})

	require.NoError(t, err)
	assert.True(t, result.UsedFallback)
	assert.Equal(t, "deepseek-v3", result.FallbackModel)
	assert.Equal(t, "MiniMax-Text-01", result.OriginalModel, "primary's default model when none was requested")
	assert.Equal(t, 4, primary.Calls())
	assert.Equal(t, 1, fallback.Calls())

	assert.Empty(t, logs.FilterMessage("fallback provider failed").All(), "unregistered fallbacks are skipped silently")
	assert.Len(t, logs.FilterMessage("request served by fallback provider").All(), 1)
}

func TestServiceManager_FallbackKeepsRequestedModel(t *testing.T) {
	m, _ := newManager(t, ServiceConfig{FallbackProviders: []string{"minimax"}}, nil)

	primary := providerstest.New("deepseek-v3", providerstest.Failing(upstream("deepseek")))
	fallback := providerstest.New("MiniMax-Text-01", providerstest.Succeeding("MiniMax-Text-01", "ok", 10))
	require.NoError(t, m.RegisterProvider("deepseek", primary))
	require.NoError(t, m.RegisterProvider("minimax", fallback))

	result, err := m.GenerateSummary(context.Background(), "text", providers.GenerationOptions{Model: "deepseek-r1"})

	require.NoError(t, err)
	assert.True(t, result.UsedFallback)
	assert.Equal(t, "deepseek-r1", result.OriginalModel)
	assert.Equal(t, "MiniMax-Text-01", result.FallbackModel)
	require.Len(t, fallback.Options(), 1)
	assert.Empty(t, fallback.Options()[0].Model, "fallback runs its own default model")
	assert.Equal(t, "deepseek-r1", primary.Options()[0].Model)
}

func TestServiceManager_AllFallbacksFail(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	policy := &retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond}
	m, _ := newManager(t, ServiceConfig{
		DefaultProvider:   "minimax",
		FallbackProviders: []string{"deepseek", "gemini"},
		RetryPolicy:       policy,
	}, zap.New(core))

	primaryErr := upstream("minimax")
	primary := providerstest.New("MiniMax-Text-01", providerstest.Failing(primaryErr))
	deepseek := providerstest.New("deepseek-v3", providerstest.Failing(providers.NewMalformedResponseError("deepseek", "no choices", nil)))
	gemini := providerstest.New("gemini-2.0-flash", providerstest.Failing(errors.New("boom")))
	require.NoError(t, m.RegisterProvider("minimax", primary))
	require.NoError(t, m.RegisterProvider("deepseek", deepseek))
	require.NoError(t, m.RegisterProvider("gemini", gemini))

	_, err := m.GenerateSummary(context.Background(), "text", providers.GenerationOptions{})

	assert.Same(t, primaryErr, err, "the primary's last error is propagated")
	assert.Equal(t, 2, primary.Calls())
	assert.Equal(t, 2, deepseek.Calls())
	assert.Equal(t, 2, gemini.Calls())

	failures := logs.FilterMessage("fallback provider failed").All()
	require.Len(t, failures, 2)
	assert.Equal(t, zapcore.ErrorLevel, failures[0].Level)
	assert.Equal(t, "deepseek", failures[0].ContextMap()["provider"])
	assert.Equal(t, int64(0), failures[0].ContextMap()["fallback_index"])
	assert.Equal(t, "gemini", failures[1].ContextMap()["provider"])
	assert.Equal(t, int64(1), failures[1].ContextMap()["fallback_index"])
}

func TestServiceManager_ProviderNotFound(t *testing.T) {
	m, rec := newManager(t, ServiceConfig{
		DefaultProvider:   "minimax",
		FallbackProviders: []string{"deepseek"},
	}, nil)
	fallback := providerstest.New("deepseek-v3")
	require.NoError(t, m.RegisterProvider("deepseek", fallback))

	_, err := m.GenerateSummary(context.Background(), "text", providers.GenerationOptions{})
	assert.True(t, errors.Is(err, providers.ErrProviderNotFound))

	_, err = m.GenerateThemedPoem(context.Background(), "theme", providers.GenerationOptions{Model: "claude-3"})
	assert.True(t, errors.Is(err, providers.ErrProviderNotFound))

	assert.Zero(t, fallback.Calls(), "no fallback for an unresolvable primary")
	assert.Empty(t, rec.delays)
}

func TestServiceManager_ResolvesByModelPrefix(t *testing.T) {
	m, _ := newManager(t, ServiceConfig{DefaultProvider: "minimax"}, nil)
	minimax := providerstest.New("MiniMax-Text-01")
	deepseek := providerstest.New("deepseek-v3", providerstest.Succeeding("deepseek-r1", "ok", 5))
	require.NoError(t, m.RegisterProvider("minimax", minimax))
	require.NoError(t, m.RegisterProvider("DeepSeek", deepseek))

	result, err := m.GenerateSummary(context.Background(), "text", providers.GenerationOptions{Model: "DeepSeek-R1"})

	require.NoError(t, err)
	assert.Equal(t, "deepseek-r1", result.Model)
	assert.Equal(t, 1, deepseek.Calls())
	assert.Zero(t, minimax.Calls())
}

func TestServiceManager_CredentialMissingIsNotRetried(t *testing.T) {
	m, rec := newManager(t, ServiceConfig{
		DefaultProvider:   "minimax",
		FallbackProviders: []string{"deepseek"},
	}, nil)
	primary := providerstest.New("MiniMax-Text-01", providerstest.Failing(providers.NewCredentialMissingError("minimax")))
	fallback := providerstest.New("deepseek-v3", providerstest.Succeeding("deepseek-v3", "ok", 3))
	require.NoError(t, m.RegisterProvider("minimax", primary))
	require.NoError(t, m.RegisterProvider("deepseek", fallback))

	result, err := m.GenerateSummary(context.Background(), "text", providers.GenerationOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, primary.Calls())
	assert.Empty(t, rec.delays)
	assert.True(t, result.UsedFallback)
}

func TestServiceManager_SetDefaultProvider(t *testing.T) {
	m, _ := newManager(t, ServiceConfig{DefaultProvider: "minimax"}, nil)
	require.NoError(t, m.RegisterProvider("minimax", providerstest.New("MiniMax-Text-01")))
	require.NoError(t, m.RegisterProvider("deepseek", providerstest.New("deepseek-v3")))

	err := m.SetDefaultProvider("ghost")
	assert.True(t, errors.Is(err, providers.ErrProviderNotFound))
	assert.Equal(t, "minimax", m.DefaultProvider())

	require.NoError(t, m.SetDefaultProvider("DeepSeek"))
	assert.Equal(t, "deepseek", m.DefaultProvider())
}

func TestServiceManager_Administration(t *testing.T) {
	m, _ := newManager(t, ServiceConfig{}, nil)

	first := providerstest.New("MiniMax-Text-01")
	second := providerstest.New("MiniMax-Text-02")
	require.NoError(t, m.RegisterProvider("MiniMax", first))
	require.NoError(t, m.RegisterProvider("minimax", second))
	require.NoError(t, m.RegisterProvider("gemini", providerstest.New("gemini-2.0-flash")))

	p, err := m.GetProvider("MINIMAX")
	require.NoError(t, err)
	assert.Same(t, second, p)
	assert.Equal(t, []string{"gemini", "minimax"}, m.ListProviderNames())

	_, err = m.GetProvider("ghost")
	assert.True(t, errors.Is(err, providers.ErrProviderNotFound))

	assert.Error(t, m.RegisterProvider("", first))
}

func TestServiceManager_CheckCredential(t *testing.T) {
	m, _ := newManager(t, ServiceConfig{}, nil)
	fake := providerstest.New("MiniMax-Text-01")
	fake.SetCredentialValid(false)
	require.NoError(t, m.RegisterProvider("minimax", fake))

	ok, err := m.CheckCredential(context.Background(), "minimax")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.CheckCredential(context.Background(), "ghost")
	assert.True(t, errors.Is(err, providers.ErrProviderNotFound))
}

func TestServiceManager_OptionsNotMutated(t *testing.T) {
	m, _ := newManager(t, ServiceConfig{FallbackProviders: []string{"deepseek"}}, nil)
	require.NoError(t, m.RegisterProvider("minimax", providerstest.New("MiniMax-Text-01", providerstest.Failing(upstream("minimax")))))
	require.NoError(t, m.RegisterProvider("deepseek", providerstest.New("deepseek-v3")))

	opts := providers.GenerationOptions{Model: "minimax-text", Language: "English"}
	_, err := m.GenerateSummary(context.Background(), "text", opts)

	require.NoError(t, err)
	assert.Equal(t, "minimax-text", opts.Model)
	assert.Equal(t, "English", opts.Language)
}

func TestServiceManager_ConcurrentCalls(t *testing.T) {
	m, _ := newManager(t, ServiceConfig{RetryPolicy: &retry.Policy{}}, nil)
	fake := providerstest.New("MiniMax-Text-01", providerstest.Succeeding("MiniMax-Text-01", "ok", 1))
	require.NoError(t, m.RegisterProvider("minimax", fake))

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.GenerateSummary(context.Background(), "chapter", providers.GenerationOptions{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 25, fake.Calls())
}
