// Package payload is the storage codec shared by the store adapters: the JSON snapshot of a
// knowledge point and its flattened, weighted full-text fields.
package payload

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/codevoyager1984/math-agent/internal/domain/document"
)

// Lexical field weights, relative to plain content.
const (
	WeightTitle       = 3.0
	WeightDescription = 2.0
	WeightQuestions   = 2.0
	WeightSolutions   = 1.0
	WeightTags        = 1.5
	WeightContent     = 1.0
)

// Highlight keys reported to callers.
const (
	HighlightTitle       = "title"
	HighlightDescription = "description"
	HighlightQuestions   = "examples.question"
	HighlightSolutions   = "examples.solution"
)

// Highlight markers wrapped around matched terms.
const (
	OpenTag  = "<em>"
	CloseTag = "</em>"
)

type snapshot struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata document.Metadata `json:"metadata"`
}

// Marshal encodes a document snapshot.
func Marshal(doc *document.Document) ([]byte, error) {
	data, err := json.Marshal(snapshot{ID: doc.ID(), Content: doc.Content(), Metadata: doc.Metadata()})
	if err != nil {
		return nil, fmt.Errorf("marshal document %s: %w", doc.ID(), err)
	}
	return data, nil
}

// Unmarshal decodes a snapshot written by Marshal. fallbackID is used when the snapshot
// carries no id.
func Unmarshal(fallbackID string, data []byte) (document.Document, error) {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return document.Document{}, fmt.Errorf("unmarshal document %s: %w", fallbackID, err)
	}
	if s.ID == "" {
		s.ID = fallbackID
	}
	return document.Reconstruct(s.ID, s.Content, s.Metadata), nil
}

// Fields are the lexically indexed texts of a document.
type Fields struct {
	Title       string
	Description string
	Questions   string
	Solutions   string
	Tags        string
	Content     string
}

// Flatten extracts the full-text fields of doc. Multi-valued fields are joined by newlines.
func Flatten(doc *document.Document) Fields {
	md := doc.Metadata()
	return Fields{
		Title:       md.Title,
		Description: md.Description,
		Questions:   strings.Join(md.ExampleQuestions(), "\n"),
		Solutions:   strings.Join(md.ExampleSolutions(), "\n"),
		Tags:        strings.Join(md.Tags, ", "),
		Content:     doc.Content(),
	}
}

// Highlights collects the fields whose text contains a highlight marker. Multi-valued
// fields are split back into one fragment per value. Returns nil when nothing matched.
func Highlights(title, description, questions, solutions string) map[string][]string {
	out := make(map[string][]string)
	add := func(key, text string, split bool) {
		if !strings.Contains(text, OpenTag) {
			return
		}
		if !split {
			out[key] = []string{text}
			return
		}
		for _, part := range strings.Split(text, "\n") {
			if strings.Contains(part, OpenTag) {
				out[key] = append(out[key], part)
			}
		}
	}
	add(HighlightTitle, title, false)
	add(HighlightDescription, description, false)
	add(HighlightQuestions, questions, true)
	add(HighlightSolutions, solutions, true)
	if len(out) == 0 {
		return nil
	}
	return out
}

// Terms splits free text into lowercase runs of letters and digits, de-duplicated in
// order of first appearance.
func Terms(text string) []string {
	raw := strings.FieldsFunc(strings.ToLower(text), isSeparator)
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
