package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// summaryNamespace scopes deterministic summary IDs
var summaryNamespace = uuid.MustParse("6f1c7d1e-2a4b-4c59-9d2e-8b7a3f0e5c11")

// LLMSummary is a generated summary of one book chapter
type LLMSummary struct {
	ID           uuid.UUID `json:"id" db:"id"`
	BookKey      string    `json:"bookKey" db:"book_key"`
	ChapterTitle string    `json:"chapterTitle" db:"chapter_title"`
	ChapterIndex int       `json:"chapterIndex" db:"chapter_index"`
	Content      string    `json:"content" db:"content"`
	Model        string    `json:"model" db:"model"`
	Timestamp    int64     `json:"timestamp" db:"timestamp"` // Unix milliseconds
	WordCount    int       `json:"wordCount" db:"word_count"`
}

// TableName returns the table name for the LLMSummary model
func (LLMSummary) TableName() string {
	return "llm_summaries"
}

// SummaryID returns the ID of the summary for a chapter, so regenerating it replaces the old one
func SummaryID(bookKey string, chapterIndex int) uuid.UUID {
	return uuid.NewSHA1(summaryNamespace, []byte(bookKey+"#"+strconv.Itoa(chapterIndex)))
}

// NewLLMSummary creates a summary stamped with the current time and word count
func NewLLMSummary(bookKey, chapterTitle string, chapterIndex int, content, model string) *LLMSummary {
	return &LLMSummary{
		ID:           SummaryID(bookKey, chapterIndex),
		BookKey:      bookKey,
		ChapterTitle: chapterTitle,
		ChapterIndex: chapterIndex,
		Content:      content,
		Model:        model,
		Timestamp:    time.Now().UnixMilli(),
		WordCount:    CountWords(content),
	}
}

// CountWords counts whitespace-separated words
func CountWords(text string) int {
	return len(strings.Fields(text))
}
