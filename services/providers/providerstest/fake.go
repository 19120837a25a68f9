// Package providerstest provides a scriptable Provider for tests.
package providerstest

import (
	"context"
	"sync"

	"github.com/almazom/koodo-llm/services/providers"
)

// Step is one scripted outcome: either a result or an error
type Step struct {
	Result *providers.GenerationResult
	Err    error
}

// FakeProvider replays scripted outcomes and counts calls.
// When the script runs out, the last step repeats.
type FakeProvider struct {
	mu sync.Mutex

	model      string
	steps      []Step
	calls      int
	themes     []string
	texts      []string
	options    []providers.GenerationOptions
	credential bool
}

// New creates a fake provider reporting model as its default model
func New(model string, steps ...Step) *FakeProvider {
	return &FakeProvider{model: model, steps: steps, credential: true}
}

// Succeeding returns a step producing text from model
func Succeeding(model, text string, tokens int) Step {
	return Step{Result: &providers.GenerationResult{
		Text:       text,
		TokensUsed: tokens,
		Model:      model,
	}}
}

// Failing returns a step failing with err
func Failing(err error) Step {
	return Step{Err: err}
}

// SetCredentialValid controls what CheckCredential reports
func (f *FakeProvider) SetCredentialValid(valid bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credential = valid
}

// Calls returns how many generation calls were made
func (f *FakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Texts returns the texts passed to GenerateSummary
func (f *FakeProvider) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// Themes returns the themes passed to GenerateThemedPoem
func (f *FakeProvider) Themes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.themes...)
}

// Options returns the options of every generation call
func (f *FakeProvider) Options() []providers.GenerationOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]providers.GenerationOptions(nil), f.options...)
}

func (f *FakeProvider) next(opts providers.GenerationOptions) (*providers.GenerationResult, error) {
	idx := f.calls
	f.calls++
	f.options = append(f.options, opts)

	if len(f.steps) == 0 {
		return &providers.GenerationResult{Text: "ok", Model: f.model}, nil
	}
	if idx >= len(f.steps) {
		idx = len(f.steps) - 1
	}

	step := f.steps[idx]
	if step.Err != nil {
		return nil, step.Err
	}
	result := *step.Result
	return &result, nil
}

// GenerateSummary implements providers.Provider
func (f *FakeProvider) GenerateSummary(ctx context.Context, text string, opts providers.GenerationOptions) (*providers.GenerationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.next(opts)
}

// GenerateThemedPoem implements providers.Provider
func (f *FakeProvider) GenerateThemedPoem(ctx context.Context, theme string, opts providers.GenerationOptions) (*providers.GenerationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.themes = append(f.themes, theme)
	return f.next(opts)
}

// CheckCredential implements providers.Provider
func (f *FakeProvider) CheckCredential(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credential
}

// DescribeModel implements providers.Provider
func (f *FakeProvider) DescribeModel() providers.ModelInfo {
	return providers.ModelInfo{
		Name:            f.model,
		Provider:        "fake",
		Capabilities:    []string{providers.CapabilitySummarization},
		ContextWindow:   8192,
		MaxOutputTokens: 1024,
	}
}

// ListAvailableModels implements providers.Provider
func (f *FakeProvider) ListAvailableModels() []string {
	return []string{f.model}
}
