package document

import (
	"strings"
	"testing"
	"time"
)

func TestNew_Valid(t *testing.T) {
	doc, err := New("kp-1", "quadratic formula", Metadata{
		Title: "  Quadratic formula ",
		Examples: []Example{
			{Question: "Solve x^2-1=0", Solution: "x=±1"},
		},
		Tags: []string{"algebra", " algebra", "", "equations"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID() != "kp-1" {
		t.Errorf("ID() = %q", doc.ID())
	}
	md := doc.Metadata()
	if md.Title != "Quadratic formula" {
		t.Errorf("Title = %q, want trimmed", md.Title)
	}
	if md.Category != DefaultCategory {
		t.Errorf("Category = %q, want %q", md.Category, DefaultCategory)
	}
	if md.Examples[0].Difficulty != DifficultyMedium {
		t.Errorf("Difficulty = %q, want medium", md.Examples[0].Difficulty)
	}
	if len(md.Tags) != 2 || md.Tags[0] != "algebra" || md.Tags[1] != "equations" {
		t.Errorf("Tags = %v, want [algebra equations]", md.Tags)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		content string
		md      Metadata
		wantErr string
	}{
		{"empty id", "", "c", Metadata{}, "ID is required"},
		{"long id", strings.Repeat("a", MaxIDLength+1), "c", Metadata{}, "too long"},
		{"bad id", "a b", "c", Metadata{}, "alphanumeric"},
		{"empty content", "1", "   ", Metadata{}, "content is required"},
		{"huge content", "1", strings.Repeat("x", MaxContentSize+1), Metadata{}, "content too large"},
		{
			"example without question", "1", "c",
			Metadata{Examples: []Example{{Solution: "s"}}},
			"question is required",
		},
		{
			"bad difficulty", "1", "c",
			Metadata{Examples: []Example{{Question: "q", Difficulty: "extreme"}}},
			"invalid difficulty",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.id, tc.content, tc.md)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestMetadata_ReturnsCopy(t *testing.T) {
	doc, _ := New("1", "c", Metadata{Tags: []string{"a"}})

	md := doc.Metadata()
	md.Tags[0] = "mutated"

	if doc.Metadata().Tags[0] != "a" {
		t.Error("tag mutation leaked into document")
	}
}

func TestStamped(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	fresh, _ := New("1", "c", Metadata{})
	stamped := fresh.Stamped(now)
	if md := stamped.Metadata(); !md.CreatedAt.Equal(now) || !md.UpdatedAt.Equal(now) {
		t.Errorf("fresh doc: created=%v updated=%v", md.CreatedAt, md.UpdatedAt)
	}

	existing, _ := New("1", "c", Metadata{CreatedAt: created})
	stamped = existing.Stamped(now)
	if md := stamped.Metadata(); !md.CreatedAt.Equal(created) || !md.UpdatedAt.Equal(now) {
		t.Errorf("existing doc: created=%v updated=%v", md.CreatedAt, md.UpdatedAt)
	}
}

func TestExampleAccessors(t *testing.T) {
	md := Metadata{Examples: []Example{
		{Question: "q1", Solution: "s1"},
		{Question: "q2"},
	}}
	if q := md.ExampleQuestions(); len(q) != 2 || q[1] != "q2" {
		t.Errorf("ExampleQuestions() = %v", q)
	}
	if s := md.ExampleSolutions(); len(s) != 1 || s[0] != "s1" {
		t.Errorf("ExampleSolutions() = %v", s)
	}
}

func TestIDs(t *testing.T) {
	a, _ := New("a", "c", Metadata{})
	b, _ := New("b", "c", Metadata{})
	ids := IDs([]Document{a, b})
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("IDs() = %v", ids)
	}
}

func TestComposeContent(t *testing.T) {
	md := Metadata{
		Title:       "Quadratic equations",
		Description: "Degree two",
		Examples:    []Example{{Question: "x^2=4", Solution: "x=±2"}},
		Tags:        []string{"algebra", "roots"},
	}
	want := "Knowledge point: Quadratic equations\n" +
		"Description: Degree two\n" +
		"Category: general\n" +
		"Example 1: x^2=4\n" +
		"Solution: x=±2\n" +
		"Tags: algebra, roots"
	if got := ComposeContent(&md); got != want {
		t.Errorf("ComposeContent() =\n%s\nwant\n%s", got, want)
	}
}
