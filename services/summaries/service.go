// Package summaries generates, stores and serves chapter summaries.
package summaries

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/almazom/koodo-llm/models"
	"github.com/almazom/koodo-llm/repositories"
	"github.com/almazom/koodo-llm/services"
	"github.com/almazom/koodo-llm/services/providers"
	"github.com/almazom/koodo-llm/utils"
)

// DefaultConcurrency bounds parallel chapter generations in SummarizeBook
const DefaultConcurrency = 3

const chapterTemplate = `Task: Summarize the following chapter from "%s".

Chapter Title: %s

Chapter Content:
` + providers.ChapterContentPlaceholder + `

Instructions:
1. Create a concise summary that captures the main ideas, key concepts, and important points from this chapter.
2. Focus on the concepts the chapter introduces and how they relate.
3. Include any important terminology defined in this chapter.
4. Maintain factual accuracy and do not introduce information not present in the text.
5. Format the summary in clear paragraphs.

Summary:`

// Summarizer produces summaries; *llm.ServiceManager satisfies it
type Summarizer interface {
	GenerateSummary(ctx context.Context, text string, opts providers.GenerationOptions) (*providers.GenerationResult, error)
}

// DefaultConfigSource supplies the stored default configuration; *configs.Service satisfies it
type DefaultConfigSource interface {
	GetDefaultConfig(ctx context.Context) (*models.LLMConfig, error)
}

// ChapterRequest asks for the summary of one chapter
type ChapterRequest struct {
	BookKey      string                      `json:"bookKey" validate:"required,max=255"`
	BookTitle    string                      `json:"bookTitle"`
	ChapterTitle string                      `json:"chapterTitle" validate:"required"`
	ChapterIndex int                         `json:"chapterIndex" validate:"gte=0"`
	Content      string                      `json:"content" validate:"required"`
	Options      providers.GenerationOptions `json:"options"`
}

// Chapter is one chapter of a BookRequest
type Chapter struct {
	Title   string `json:"title" validate:"required"`
	Index   int    `json:"index" validate:"gte=0"`
	Content string `json:"content" validate:"required"`
}

// BookRequest asks for the summaries of several chapters of one book
type BookRequest struct {
	BookKey   string                      `json:"bookKey" validate:"required,max=255"`
	BookTitle string                      `json:"bookTitle"`
	Chapters  []Chapter                   `json:"chapters" validate:"required,min=1,dive"`
	Options   providers.GenerationOptions `json:"options"`

	// SkipExisting returns stored summaries instead of regenerating them
	SkipExisting bool `json:"skipExisting"`
}

// Service generates chapter summaries and persists them
type Service struct {
	summarizer  Summarizer
	repo        repositories.LLMSummaryRepository
	defaults    DefaultConfigSource
	concurrency int
	logger      *zap.Logger
}

// NewService creates a summary service. defaults may be nil.
func NewService(summarizer Summarizer, repo repositories.LLMSummaryRepository, defaults DefaultConfigSource, concurrency int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Service{
		summarizer:  summarizer,
		repo:        repo,
		defaults:    defaults,
		concurrency: concurrency,
		logger:      logger,
	}
}

// SummarizeChapter generates and stores the summary of one chapter.
// Regenerating a chapter replaces its previous summary.
func (s *Service) SummarizeChapter(ctx context.Context, req ChapterRequest) (*models.LLMSummary, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	opts, err := s.options(ctx, req.Options)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, req.BookKey, req.BookTitle, Chapter{
		Title:   req.ChapterTitle,
		Index:   req.ChapterIndex,
		Content: req.Content,
	}, opts)
}

// SummarizeBook summarizes every chapter with bounded concurrency.
// The first failure cancels the chapters still running.
func (s *Service) SummarizeBook(ctx context.Context, req BookRequest) ([]*models.LLMSummary, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	opts, err := s.options(ctx, req.Options)
	if err != nil {
		return nil, err
	}

	results := make([]*models.LLMSummary, len(req.Chapters))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, chapter := range req.Chapters {
		g.Go(func() error {
			if req.SkipExisting {
				existing, err := s.repo.GetByChapter(gctx, req.BookKey, chapter.Index)
				if err == nil {
					results[i] = existing
					return nil
				}
				if !errors.Is(err, repositories.ErrNotFound) {
					return services.WrapInternal("failed to read summary", err)
				}
			}

			summary, err := s.summarize(gctx, req.BookKey, req.BookTitle, chapter, opts)
			if err != nil {
				return err
			}
			results[i] = summary
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Info("book summarized",
		zap.String("book_key", req.BookKey),
		zap.Int("chapters", len(req.Chapters)),
	)
	return results, nil
}

// GetSummariesForBook returns the stored summaries of a book ordered by chapter
func (s *Service) GetSummariesForBook(ctx context.Context, bookKey string) ([]*models.LLMSummary, error) {
	if err := utils.ValidateRequired(bookKey, "bookKey"); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, err.Error(), nil)
	}

	summaries, err := s.repo.GetByBook(ctx, bookKey)
	if err != nil {
		return nil, services.FromRepositoryError(err, services.ErrSummaryNotFound)
	}
	if summaries == nil {
		summaries = []*models.LLMSummary{}
	}
	return summaries, nil
}

// GetChapterSummary returns the summary of one chapter
func (s *Service) GetChapterSummary(ctx context.Context, bookKey string, chapterIndex int) (*models.LLMSummary, error) {
	summary, err := s.repo.GetByChapter(ctx, bookKey, chapterIndex)
	if err != nil {
		return nil, services.FromRepositoryError(err, services.ErrSummaryNotFound)
	}
	return summary, nil
}

// HasChapterSummary reports whether a chapter has a stored summary
func (s *Service) HasChapterSummary(ctx context.Context, bookKey string, chapterIndex int) (bool, error) {
	exists, err := s.repo.Exists(ctx, bookKey, chapterIndex)
	if err != nil {
		return false, services.WrapInternal(services.ErrDatabaseError.Message, err)
	}
	return exists, nil
}

// DeleteSummary removes one summary
func (s *Service) DeleteSummary(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return services.FromRepositoryError(err, services.ErrSummaryNotFound)
	}
	s.logger.Info("summary deleted", zap.String("id", id.String()))
	return nil
}

func (s *Service) summarize(ctx context.Context, bookKey, bookTitle string, chapter Chapter, opts providers.GenerationOptions) (*models.LLMSummary, error) {
	opts = withChapterTemplate(opts, bookTitle, chapter.Title)

	result, err := s.summarizer.GenerateSummary(ctx, chapter.Content, opts)
	if err != nil {
		return nil, services.FromProviderError(err)
	}

	summary := models.NewLLMSummary(bookKey, chapter.Title, chapter.Index, result.Text, result.Model)
	if err := s.repo.Save(ctx, summary); err != nil {
		return nil, services.WrapInternal("failed to save summary", err)
	}

	fields := []zap.Field{
		zap.String("book_key", bookKey),
		zap.Int("chapter_index", chapter.Index),
		zap.String("model", result.Model),
		zap.Int("tokens", result.TokensUsed),
	}
	if result.UsedFallback {
		fields = append(fields, zap.String("original_model", result.OriginalModel))
	}
	s.logger.Info("chapter summarized", fields...)
	return summary, nil
}

// options fills unset generation options from the stored default configuration
func (s *Service) options(ctx context.Context, opts providers.GenerationOptions) (providers.GenerationOptions, error) {
	if s.defaults == nil {
		return opts, nil
	}
	cfg, err := s.defaults.GetDefaultConfig(ctx)
	if err != nil {
		return opts, err
	}
	if cfg == nil {
		return opts, nil
	}

	if opts.Model == "" {
		opts.Model = cfg.Provider.Model()
	}
	if opts.Temperature == nil {
		temperature := cfg.Parameters.Temperature
		opts.Temperature = &temperature
	}
	if opts.TopP == nil && cfg.Parameters.TopP > 0 {
		topP := cfg.Parameters.TopP
		opts.TopP = &topP
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = cfg.Parameters.MaxTokens
	}
	return opts, nil
}

// withChapterTemplate installs the chapter prompt unless the caller supplied a user template.
// The caller's prompt map is never modified.
func withChapterTemplate(opts providers.GenerationOptions, bookTitle, chapterTitle string) providers.GenerationOptions {
	if opts.PromptField(providers.PromptUserTemplate) != "" {
		return opts
	}

	prompt := make(map[string]string, len(opts.Prompt)+1)
	for k, v := range opts.Prompt {
		prompt[k] = v
	}
	prompt[providers.PromptUserTemplate] = fmt.Sprintf(chapterTemplate, bookTitle, chapterTitle)
	opts.Prompt = prompt
	return opts
}

func validate(req interface{}) error {
	if err := utils.ValidateStruct(req); err != nil {
		domainErr := services.NewDomainError(services.ErrorTypeValidation, services.ErrInvalidInput.Message, err)
		for field, msg := range utils.GetValidationFields(err) {
			domainErr.WithDetail(field, msg)
		}
		return domainErr
	}
	return nil
}
