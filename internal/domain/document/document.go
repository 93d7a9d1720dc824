package document

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Document limits.
const (
	// MaxContentSize is the maximum document content size in bytes.
	MaxContentSize  = 163840 // 160KB
	MaxIDLength     = 256
	MaxTitleLength  = 512
	MaxExamples     = 32
	MaxTags         = 32
	DefaultCategory = "general"
)

// Difficulty grades an example problem.
type Difficulty string

// Difficulty levels.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// IsValid reports whether d is a known difficulty level.
func (d Difficulty) IsValid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// Example is a worked problem attached to a knowledge point.
type Example struct {
	Question   string     `json:"question"`
	Solution   string     `json:"solution"`
	Difficulty Difficulty `json:"difficulty"`
}

// Metadata is the typed descriptive part of a knowledge point.
type Metadata struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Examples    []Example `json:"examples"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ExampleQuestions returns the non-empty example questions in order.
func (m *Metadata) ExampleQuestions() []string {
	out := make([]string, 0, len(m.Examples))
	for _, ex := range m.Examples {
		if ex.Question != "" {
			out = append(out, ex.Question)
		}
	}
	return out
}

// ExampleSolutions returns the non-empty example solutions in order.
func (m *Metadata) ExampleSolutions() []string {
	out := make([]string, 0, len(m.Examples))
	for _, ex := range m.Examples {
		if ex.Solution != "" {
			out = append(out, ex.Solution)
		}
	}
	return out
}

// IsZero reports whether no descriptive field is set.
func (m *Metadata) IsZero() bool {
	return m.Title == "" && m.Description == "" && len(m.Examples) == 0 && len(m.Tags) == 0
}

// Document is a knowledge point (immutable value object). Its id is the join key across the
// vector store and the text index.
type Document struct {
	id       string
	content  string
	metadata Metadata
}

// New validates and creates a Document.
// ID: ^[a-zA-Z0-9_-]+$, 1-256 chars. Content: non-empty, max 160KB.
// Metadata is normalized: category defaults to "general", example difficulty defaults to
// "medium", tags are trimmed and de-duplicated.
func New(id, content string, md Metadata) (Document, error) {
	if id == "" {
		return Document{}, fmt.Errorf("document ID is required")
	}
	if len(id) > MaxIDLength {
		return Document{}, fmt.Errorf("document ID too long (max %d)", MaxIDLength)
	}
	if !idRegex.MatchString(id) {
		return Document{}, fmt.Errorf("document ID must be alphanumeric with underscores and hyphens")
	}
	if strings.TrimSpace(content) == "" {
		return Document{}, fmt.Errorf("content is required")
	}
	if len(content) > MaxContentSize {
		return Document{}, fmt.Errorf("content too large (max %d bytes)", MaxContentSize)
	}

	normalized, err := normalizeMetadata(md)
	if err != nil {
		return Document{}, err
	}

	return Document{id: id, content: content, metadata: normalized}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(id, content string, md Metadata) Document {
	return Document{id: id, content: content, metadata: md}
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Content returns the text used for embedding and lexical indexing.
func (d *Document) Content() string { return d.content }

// Metadata returns a copy of the typed metadata.
func (d *Document) Metadata() Metadata {
	md := d.metadata
	md.Examples = append([]Example(nil), d.metadata.Examples...)
	md.Tags = append([]string(nil), d.metadata.Tags...)
	return md
}

// Title returns the knowledge point title.
func (d *Document) Title() string { return d.metadata.Title }

// Stamped returns a copy with UpdatedAt set to now and CreatedAt set to now when absent.
func (d *Document) Stamped(now time.Time) Document {
	md := d.Metadata()
	if md.CreatedAt.IsZero() {
		md.CreatedAt = now
	}
	md.UpdatedAt = now
	return Document{id: d.id, content: d.content, metadata: md}
}

// IDs returns the ids of docs in order.
func IDs(docs []Document) []string {
	ids := make([]string, len(docs))
	for i := range docs {
		ids[i] = docs[i].id
	}
	return ids
}

func normalizeMetadata(md Metadata) (Metadata, error) {
	out := Metadata{
		Title:       strings.TrimSpace(md.Title),
		Description: strings.TrimSpace(md.Description),
		Category:    strings.TrimSpace(md.Category),
		CreatedAt:   md.CreatedAt,
		UpdatedAt:   md.UpdatedAt,
	}
	if len(out.Title) > MaxTitleLength {
		return Metadata{}, fmt.Errorf("title too long (max %d bytes)", MaxTitleLength)
	}
	if out.Category == "" {
		out.Category = DefaultCategory
	}

	if len(md.Examples) > MaxExamples {
		return Metadata{}, fmt.Errorf("too many examples (max %d)", MaxExamples)
	}
	for i, ex := range md.Examples {
		ex.Question = strings.TrimSpace(ex.Question)
		ex.Solution = strings.TrimSpace(ex.Solution)
		if ex.Question == "" {
			return Metadata{}, fmt.Errorf("example %d: question is required", i)
		}
		if ex.Difficulty == "" {
			ex.Difficulty = DifficultyMedium
		}
		if !ex.Difficulty.IsValid() {
			return Metadata{}, fmt.Errorf("example %d: invalid difficulty %q", i, ex.Difficulty)
		}
		out.Examples = append(out.Examples, ex)
	}

	seen := make(map[string]struct{}, len(md.Tags))
	for _, tag := range md.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out.Tags = append(out.Tags, tag)
	}
	if len(out.Tags) > MaxTags {
		return Metadata{}, fmt.Errorf("too many tags (max %d)", MaxTags)
	}

	return out, nil
}

// WriteMode selects how adapters treat an id that is already stored.
type WriteMode int

const (
	// WriteInsert keeps the stored copy when the id already exists.
	WriteInsert WriteMode = iota
	// WriteReplace overwrites the stored copy.
	WriteReplace
)

func (m WriteMode) String() string {
	if m == WriteReplace {
		return "replace"
	}
	return "insert"
}

// ComposeContent builds the embedding and indexing text of a knowledge point that was submitted
// without explicit content: title, description, category, every example and the tags, one per line.
func ComposeContent(md *Metadata) string {
	category := md.Category
	if category == "" {
		category = DefaultCategory
	}
	lines := []string{
		"Knowledge point: " + md.Title,
		"Description: " + md.Description,
		"Category: " + category,
	}
	for i, ex := range md.Examples {
		lines = append(lines,
			fmt.Sprintf("Example %d: %s", i+1, ex.Question),
			"Solution: "+ex.Solution,
		)
	}
	if len(md.Tags) > 0 {
		lines = append(lines, "Tags: "+strings.Join(md.Tags, ", "))
	}
	return strings.Join(lines, "\n")
}
