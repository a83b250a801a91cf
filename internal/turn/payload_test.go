package turn

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/strand-ai/strand/internal/knowledge"
)

func TestBuildPayload(t *testing.T) {
	snippets := []knowledge.Snippet{
		{
			Text: "pgvector stores embeddings in postgres.",
			Meta: map[string]any{"title": "pgvector.md", "page": "3"},
		},
		{
			Text: "Cosine distance ranks nearest neighbours.",
			Meta: map[string]any{"title": "search.md"},
		},
	}
	got := buildPayload(
		"How does vector search work?",
		[]string{"pgvector.md", "search.md"},
		[]string{"first note", "second note"},
		snippets,
	)

	want := strings.Join([]string{
		"Selected sources:",
		"- pgvector.md",
		"- search.md",
		"",
		"Additional notes:",
		"Note: first note",
		"Note: second note",
		"",
		"Context (RAG):",
		"Snippet: pgvector stores embeddings in postgres.",
		"Meta: page=3 title=pgvector.md",
		"",
		"Snippet: Cosine distance ranks nearest neighbours.",
		"Meta: title=search.md",
		"",
		"Question: How does vector search work?",
	}, "\n")

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("buildPayload() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPayload_Placeholders(t *testing.T) {
	got := buildPayload("Just the question", nil, nil, nil)

	want := strings.Join([]string{
		"Selected sources:",
		"- (no sources selected)",
		"",
		"Additional notes:",
		"-",
		"",
		"Context (RAG):",
		"-",
		"",
		"Question: Just the question",
	}, "\n")

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("buildPayload() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPayload_NoteWindow(t *testing.T) {
	notes := []string{"one", "two", "three", "four", "five", "six", "seven"}
	got := buildPayload("q", nil, notes, nil)

	if strings.Contains(got, "Note: one") || strings.Contains(got, "Note: two") {
		t.Errorf("buildPayload() kept notes older than the window:\n%s", got)
	}
	for _, note := range notes[2:] {
		if !strings.Contains(got, "Note: "+note) {
			t.Errorf("buildPayload() missing trailing note %q", note)
		}
	}
}

func TestBuildPayload_BlankEntriesSkipped(t *testing.T) {
	got := buildPayload("q", []string{"  ", ""}, []string{"", "  keep  "}, nil)

	if !strings.Contains(got, "- (no sources selected)") {
		t.Errorf("buildPayload() should treat blank sources as none:\n%s", got)
	}
	if !strings.Contains(got, "Note: keep") {
		t.Errorf("buildPayload() should trim kept notes:\n%s", got)
	}
	if strings.Contains(got, "Note: \n") {
		t.Errorf("buildPayload() rendered a blank note:\n%s", got)
	}
}

func TestFormatMeta_SortedAndStable(t *testing.T) {
	meta := map[string]any{"source": "web", "chunk_index": 4, "title": "a.md"}

	got := formatMeta(meta)
	want := "chunk_index=4 source=web title=a.md"
	if got != want {
		t.Errorf("formatMeta() = %q, want %q", got, want)
	}

	if again := formatMeta(meta); again != got {
		t.Errorf("formatMeta() unstable across calls: %q then %q", got, again)
	}

	if got := formatMeta(nil); got != "-" {
		t.Errorf("formatMeta(nil) = %q, want %q", got, "-")
	}
}
