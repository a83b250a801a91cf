package citation

import (
	"strings"
	"testing"

	"github.com/strand-ai/strand/internal/knowledge"
)

func snippet(meta map[string]any) knowledge.Snippet {
	return knowledge.Snippet{Text: "passage", Meta: meta}
}

func TestApply_SingleSource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		sources  []string
		contexts []knowledge.Snippet
		want     string
	}{
		{
			name:     "selected source with page hint",
			text:     "Answer.",
			sources:  []string{"A.pdf"},
			contexts: []knowledge.Snippet{snippet(map[string]any{"title": "A.pdf", "page": 3})},
			want:     "Answer.\n\n[Source: A.pdf, page 3]",
		},
		{
			name:    "selected source without page hint",
			text:    "Answer.",
			sources: []string{"A.pdf"},
			want:    "Answer.\n\n[Source: A.pdf]",
		},
		{
			name:     "no selection falls back to first context",
			text:     "Answer.",
			contexts: []knowledge.Snippet{snippet(map[string]any{"title": "Guide.pdf", "page_number": "12"})},
			want:     "Answer.\n\n[Source: Guide.pdf, page 12]",
		},
		{
			name: "no selection and no contexts stays unchanged",
			text: "Answer.",
			want: "Answer.",
		},
		{
			name:     "zero-based index becomes one-based page",
			text:     "Answer.",
			sources:  []string{"Doc"},
			contexts: []knowledge.Snippet{snippet(map[string]any{"title": "Doc", "page_index": 2})},
			want:     "Answer.\n\n[Source: Doc, page 3]",
		},
		{
			name:     "source title fallback key",
			text:     "Answer.",
			contexts: []knowledge.Snippet{snippet(map[string]any{"source_title": "Spec.md"})},
			want:     "Answer.\n\n[Source: Spec.md]",
		},
		{
			name:    "inline tags stripped before annotating",
			text:    "Answer. [Source: stale]",
			sources: []string{"A.pdf"},
			want:    "Answer.\n\n[Source: A.pdf]",
		},
		{
			name:    "german inline tags stripped before annotating",
			text:    "Answer. [Quelle: B.pdf, Seite 2]",
			sources: []string{"A.pdf"},
			want:    "Answer.\n\n[Source: A.pdf]",
		},
		{
			name:    "mixed inline tag languages stripped",
			text:    "Answer. [Source: stale]\nMore. [quelle: alt]",
			sources: []string{"A.pdf"},
			want:    "Answer.\nMore.\n\n[Source: A.pdf]",
		},
		{
			name:    "whitespace tidied after stripping",
			text:    "Answer.\n[source: stale]\n\nMore.",
			sources: []string{"A.pdf"},
			want:    "Answer.\n\nMore.\n\n[Source: A.pdf]",
		},
		{
			name:    "blank selections ignored",
			text:    "Answer.",
			sources: []string{"  ", "A.pdf"},
			want:    "Answer.\n\n[Source: A.pdf]",
		},
		{
			name: "empty text unchanged",
			text: "   ",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Apply(tt.text, tt.sources, tt.contexts); got != tt.want {
				t.Errorf("Apply() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApply_MultipleSources(t *testing.T) {
	t.Parallel()

	contexts := []knowledge.Snippet{
		snippet(map[string]any{"title": "A.pdf", "page": 3}),
		snippet(map[string]any{"title": "B.pdf"}),
	}

	got := Apply("Answer.", []string{"A.pdf", "B.pdf"}, contexts)

	want := "Answer.\n\n### Sources\n- [Source: A.pdf, page 3]\n- [Source: B.pdf]"
	if got != want {
		t.Errorf("Apply() = %q, want %q", got, want)
	}
}

func TestApply_MultipleSourcesDedupes(t *testing.T) {
	t.Parallel()

	got := Apply("Answer.", []string{"A.pdf", "a.pdf", "B.pdf"}, nil)

	if strings.Count(got, "A.pdf") != 1 {
		t.Errorf("Apply() = %q, want A.pdf cited exactly once", got)
	}
	if !strings.Contains(got, "- [Source: B.pdf]") {
		t.Errorf("Apply() = %q, want B.pdf cited", got)
	}
}

func TestApply_MultipleSourcesKeepInlineTags(t *testing.T) {
	t.Parallel()

	text := "Answer with [Source: inline] kept."
	got := Apply(text, []string{"A.pdf", "B.pdf"}, nil)

	if !strings.Contains(got, "[Source: inline]") {
		t.Errorf("Apply() = %q, want inline tag preserved in multi-source mode", got)
	}
}

func TestApply_Idempotent(t *testing.T) {
	t.Parallel()

	first := Apply("Answer.", []string{"A.pdf", "B.pdf"}, nil)
	second := Apply(first, []string{"A.pdf", "B.pdf"}, nil)

	if second != first {
		t.Errorf("second Apply() = %q, want unchanged %q", second, first)
	}
	if strings.Count(second, "### Sources") != 1 {
		t.Errorf("Apply() produced duplicate headings: %q", second)
	}
}

func TestApply_HeadingGuardMatchesAnyLevel(t *testing.T) {
	t.Parallel()

	text := "Answer.\n\n## Sources\n- [Source: A.pdf]"
	got := Apply(text, []string{"A.pdf", "B.pdf"}, nil)

	if got != text {
		t.Errorf("Apply() = %q, want text with existing heading unchanged", got)
	}
}

func TestContextReferences_Dedupes(t *testing.T) {
	t.Parallel()

	refs := contextReferences([]knowledge.Snippet{
		snippet(map[string]any{"title": "A.pdf", "page": 3}),
		snippet(map[string]any{"title": "a.pdf", "page": 3}),
		snippet(map[string]any{"title": "A.pdf", "page": 4}),
		snippet(map[string]any{"no_title": true}),
	})

	// Same source on a different page is a distinct reference.
	if len(refs) != 2 {
		t.Fatalf("contextReferences() = %v, want 2 references", refs)
	}
	if refs[0].page != "3" || refs[1].page != "4" {
		t.Errorf("contextReferences() pages = %q, %q, want 3 and 4", refs[0].page, refs[1].page)
	}
}
