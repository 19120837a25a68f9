package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/almazom/koodo-llm/internal/observability"
	"github.com/almazom/koodo-llm/models"
	"github.com/almazom/koodo-llm/services/providers"
	"github.com/almazom/koodo-llm/services/summaries"
	"github.com/almazom/koodo-llm/utils"
)

// SummaryService defines the chapter summary operations exposed over HTTP
type SummaryService interface {
	SummarizeChapter(ctx context.Context, req summaries.ChapterRequest) (*models.LLMSummary, error)
	SummarizeBook(ctx context.Context, req summaries.BookRequest) ([]*models.LLMSummary, error)
	GetSummariesForBook(ctx context.Context, bookKey string) ([]*models.LLMSummary, error)
	GetChapterSummary(ctx context.Context, bookKey string, chapterIndex int) (*models.LLMSummary, error)
	HasChapterSummary(ctx context.Context, bookKey string, chapterIndex int) (bool, error)
	DeleteSummary(ctx context.Context, id uuid.UUID) error
}

// BookSummariesRequest is the body of POST /books/{bookKey}/summaries
type BookSummariesRequest struct {
	BookTitle    string                      `json:"bookTitle"`
	Chapters     []summaries.Chapter         `json:"chapters"`
	Options      providers.GenerationOptions `json:"options"`
	SkipExisting bool                        `json:"skipExisting"`
}

// ChapterSummaryRequest is the body of POST /books/{bookKey}/chapters/{index}/summary
type ChapterSummaryRequest struct {
	BookTitle    string                      `json:"bookTitle"`
	ChapterTitle string                      `json:"chapterTitle"`
	Content      string                      `json:"content"`
	Options      providers.GenerationOptions `json:"options"`
}

// SummaryExistsResponse reports whether a chapter has a stored summary
type SummaryExistsResponse struct {
	BookKey      string `json:"bookKey"`
	ChapterIndex int    `json:"chapterIndex"`
	Exists       bool   `json:"exists"`
}

// SummariesHandler handles chapter summary HTTP requests
type SummariesHandler struct {
	service SummaryService
	logger  *zap.Logger
}

// NewSummariesHandler creates a new SummariesHandler
func NewSummariesHandler(service SummaryService, logger *zap.Logger) *SummariesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummariesHandler{
		service: service,
		logger:  logger,
	}
}

// HandleSummarizeBook handles POST /books/{bookKey}/summaries
func (h *SummariesHandler) HandleSummarizeBook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	bookKey, err := bookKeyParam(r)
	if err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	var req BookSummariesRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	result, err := h.service.SummarizeBook(ctx, summaries.BookRequest{
		BookKey:      bookKey,
		BookTitle:    req.BookTitle,
		Chapters:     req.Chapters,
		Options:      req.Options,
		SkipExisting: req.SkipExisting,
	})
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if err := utils.WriteCreated(w, result); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleSummarizeChapter handles POST /books/{bookKey}/chapters/{index}/summary
func (h *SummariesHandler) HandleSummarizeChapter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	bookKey, index, err := chapterParams(r)
	if err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	var req ChapterSummaryRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	summary, err := h.service.SummarizeChapter(ctx, summaries.ChapterRequest{
		BookKey:      bookKey,
		BookTitle:    req.BookTitle,
		ChapterTitle: req.ChapterTitle,
		ChapterIndex: index,
		Content:      req.Content,
		Options:      req.Options,
	})
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if err := utils.WriteCreated(w, summary); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleListBookSummaries handles GET /books/{bookKey}/summaries
func (h *SummariesHandler) HandleListBookSummaries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	bookKey, err := bookKeyParam(r)
	if err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	result, err := h.service.GetSummariesForBook(ctx, bookKey)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if err := utils.WriteOK(w, result); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleGetChapterSummary handles GET /books/{bookKey}/chapters/{index}/summary
func (h *SummariesHandler) HandleGetChapterSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	bookKey, index, err := chapterParams(r)
	if err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	summary, err := h.service.GetChapterSummary(ctx, bookKey, index)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if err := utils.WriteOK(w, summary); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleChapterSummaryExists handles GET /books/{bookKey}/chapters/{index}/summary/exists
func (h *SummariesHandler) HandleChapterSummaryExists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	bookKey, index, err := chapterParams(r)
	if err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	exists, err := h.service.HasChapterSummary(ctx, bookKey, index)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if err := utils.WriteOK(w, SummaryExistsResponse{
		BookKey:      bookKey,
		ChapterIndex: index,
		Exists:       exists,
	}); err != nil {
		logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleDeleteSummary handles DELETE /summaries/{id}
func (h *SummariesHandler) HandleDeleteSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	id, err := utils.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	if err := h.service.DeleteSummary(ctx, id); err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	utils.WriteNoContent(w)
}

func bookKeyParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "bookKey")
	bookKey, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("invalid book key: %s", raw)
	}
	if err := utils.ValidateRequired(bookKey, "bookKey"); err != nil {
		return "", err
	}
	return bookKey, nil
}

func chapterParams(r *http.Request) (string, int, error) {
	bookKey, err := bookKeyParam(r)
	if err != nil {
		return "", 0, err
	}

	raw := chi.URLParam(r, "index")
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("invalid chapter index: %s", raw)
	}
	return bookKey, index, nil
}
