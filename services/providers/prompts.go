package providers

import (
	"fmt"
	"strings"
)

// Template fields understood in GenerationOptions.Prompt
const (
	PromptSystemMessage = "system_message"
	PromptUserTemplate  = "user_template"

	// ChapterContentPlaceholder is replaced by the source text in a user template
	ChapterContentPlaceholder = "{{chapter_content}}"
)

const (
	defaultSummarySystemMessage = "Ты профессиональный литературный аналитик, специализирующийся на создании кратких и содержательных резюме глав книг."

	poemSystemMessage = "Ты профессиональный поэт, специализирующийся на создании хайку на русском языке. " +
		"Хайку - это традиционная японская форма поэзии, состоящая из трех строк. " +
		"В русской адаптации хайку обычно следует схеме 5-7-5 слогов. " +
		"Твоя задача - создать красивое, элегантное хайку на русском языке по заданной теме."

	poemUserTemplate = "Напиши хайку на русском языке на тему \"%s\". " +
		"Следуй традиционной структуре 5-7-5 слогов. " +
		"Хайку должно вызывать яркие образы и эмоции, связанные с природой и временем года."
)

// Generation defaults shared by the bundled providers
const (
	SummaryTemperature = 0.7
	SummaryMaxTokens   = 2000
	PoemTemperature    = 0.8
	PoemMaxTokens      = 300
)

// SummaryPrompt builds the system and user messages for a summary request.
// Callers may override either message through opts.Prompt; only the first
// placeholder of a user template is filled.
func SummaryPrompt(text string, opts GenerationOptions) (system, user string) {
	system = opts.PromptField(PromptSystemMessage)
	if system == "" {
		system = defaultSummarySystemMessage
	}

	if tmpl := opts.PromptField(PromptUserTemplate); tmpl != "" {
		user = strings.Replace(tmpl, ChapterContentPlaceholder, text, 1)
	} else {
		user = "Создай краткое резюме (2-3 абзаца) следующего текста: \n\n" + text
	}

	return system, withLanguage(user, opts.Language)
}

// ThemedPoemPrompt builds the fixed system instruction and the theme-specific user instruction
func ThemedPoemPrompt(theme string, opts GenerationOptions) (system, user string) {
	return poemSystemMessage, withLanguage(fmt.Sprintf(poemUserTemplate, theme), opts.Language)
}

func withLanguage(user, language string) string {
	if language == "" {
		return user
	}
	return fmt.Sprintf("%s\n\nRespond in %s.", user, language)
}
