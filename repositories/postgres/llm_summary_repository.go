package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/almazom/koodo-llm/models"
	"github.com/almazom/koodo-llm/repositories"
)

const llmSummaryColumns = `id, book_key, chapter_title, chapter_index, content, model, timestamp, word_count`

// LLMSummaryRepository implements the repositories.LLMSummaryRepository interface
type LLMSummaryRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewLLMSummaryRepository creates a new summary repository
func NewLLMSummaryRepository(db *DB, logger *zap.Logger) repositories.LLMSummaryRepository {
	return &LLMSummaryRepository{
		db:     db,
		logger: logger,
	}
}

// Save inserts a summary or replaces the one stored for the same chapter
func (r *LLMSummaryRepository) Save(ctx context.Context, summary *models.LLMSummary) error {
	query := `
		INSERT INTO llm_summaries (id, book_key, chapter_title, chapter_index, content, model, timestamp, word_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			chapter_title = EXCLUDED.chapter_title,
			content = EXCLUDED.content,
			model = EXCLUDED.model,
			timestamp = EXCLUDED.timestamp,
			word_count = EXCLUDED.word_count
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		summary.ID,
		summary.BookKey,
		summary.ChapterTitle,
		summary.ChapterIndex,
		summary.Content,
		summary.Model,
		summary.Timestamp,
		summary.WordCount,
	)

	if err != nil {
		return fmt.Errorf("failed to save llm summary: %w", err)
	}

	r.logger.Debug("llm summary saved",
		zap.String("book_key", summary.BookKey),
		zap.Int("chapter_index", summary.ChapterIndex),
	)
	return nil
}

// GetByID retrieves a summary by ID
func (r *LLMSummaryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.LLMSummary, error) {
	query := `SELECT ` + llmSummaryColumns + ` FROM llm_summaries WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	summary, err := scanLLMSummary(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("llm summary %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get llm summary: %w", err)
	}

	return summary, nil
}

// GetByBook retrieves the summaries of a book ordered by chapter index
func (r *LLMSummaryRepository) GetByBook(ctx context.Context, bookKey string) ([]*models.LLMSummary, error) {
	query := `SELECT ` + llmSummaryColumns + ` FROM llm_summaries WHERE book_key = $1 ORDER BY chapter_index ASC`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, bookKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query llm summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*models.LLMSummary
	for rows.Next() {
		summary, err := scanLLMSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan llm summary: %w", err)
		}
		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating llm summaries: %w", err)
	}

	return summaries, nil
}

// GetByChapter retrieves the summary of one chapter
func (r *LLMSummaryRepository) GetByChapter(ctx context.Context, bookKey string, chapterIndex int) (*models.LLMSummary, error) {
	query := `SELECT ` + llmSummaryColumns + ` FROM llm_summaries WHERE book_key = $1 AND chapter_index = $2`

	executor := GetExecutor(ctx, r.db)
	summary, err := scanLLMSummary(executor.QueryRowContext(ctx, query, bookKey, chapterIndex))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("llm summary %s#%d: %w", bookKey, chapterIndex, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get llm summary: %w", err)
	}

	return summary, nil
}

// Exists reports whether a chapter has a stored summary
func (r *LLMSummaryRepository) Exists(ctx context.Context, bookKey string, chapterIndex int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM llm_summaries WHERE book_key = $1 AND chapter_index = $2)`

	executor := GetExecutor(ctx, r.db)
	var exists bool
	if err := executor.QueryRowContext(ctx, query, bookKey, chapterIndex).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check llm summary: %w", err)
	}

	return exists, nil
}

// Delete deletes a summary
func (r *LLMSummaryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM llm_summaries WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete llm summary: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("llm summary %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Debug("llm summary deleted", zap.String("id", id.String()))
	return nil
}

func scanLLMSummary(row rowScanner) (*models.LLMSummary, error) {
	summary := &models.LLMSummary{}
	err := row.Scan(
		&summary.ID,
		&summary.BookKey,
		&summary.ChapterTitle,
		&summary.ChapterIndex,
		&summary.Content,
		&summary.Model,
		&summary.Timestamp,
		&summary.WordCount,
	)
	if err != nil {
		return nil, err
	}
	return summary, nil
}
