package rerank

import (
	"strings"

	"github.com/codevoyager1984/math-agent/internal/domain/document"
)

// Summary limits.
const (
	maxDescriptionRunes = 500
	maxQuestionRunes    = 200
	maxContentRunes     = 500
	maxSummaryQuestions = 2
	maxSummaryTags      = 5
	summarySeparator    = " | "
)

// Summarize builds the compact text both rerank strategies score a candidate by.
func Summarize(doc *document.Document) string {
	md := doc.Metadata()
	if md.IsZero() {
		return truncateRunes(doc.Content(), maxContentRunes)
	}

	parts := make([]string, 0, 6)
	if md.Title != "" {
		parts = append(parts, "Title: "+md.Title)
	}
	if md.Description != "" {
		parts = append(parts, "Description: "+truncateRunes(md.Description, maxDescriptionRunes))
	}
	questions := md.ExampleQuestions()
	for i := 0; i < len(questions) && i < maxSummaryQuestions; i++ {
		parts = append(parts, "Example: "+truncateRunes(questions[i], maxQuestionRunes))
	}
	if md.Category != "" {
		parts = append(parts, "Category: "+md.Category)
	}
	if len(md.Tags) > 0 {
		tags := md.Tags
		if len(tags) > maxSummaryTags {
			tags = tags[:maxSummaryTags]
		}
		parts = append(parts, "Tags: "+strings.Join(tags, ", "))
	}
	return strings.Join(parts, summarySeparator)
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
