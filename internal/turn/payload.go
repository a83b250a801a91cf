package turn

import (
	"fmt"
	"sort"
	"strings"

	"github.com/strand-ai/strand/internal/knowledge"
)

// noteWindow is how many trailing notes the payload keeps. Older notes
// are expected to be reflected in the conversation history already.
const noteWindow = 5

// buildPayload renders the grounded prompt the backend receives: the
// pinned sources, the trailing notes, the retrieved context and finally
// the question itself, in a fixed section layout.
func buildPayload(prompt string, sources, notes []string, snippets []knowledge.Snippet) string {
	var b strings.Builder

	b.WriteString("Selected sources:\n")
	b.WriteString(formatSources(sources))

	b.WriteString("\n\nAdditional notes:\n")
	b.WriteString(orDash(formatNotes(notes)))

	b.WriteString("\n\nContext (RAG):\n")
	b.WriteString(orDash(formatSnippets(snippets)))

	b.WriteString("\n\nQuestion: ")
	b.WriteString(prompt)

	return b.String()
}

func formatSources(sources []string) string {
	lines := make([]string, 0, len(sources))
	for _, name := range sources {
		if name = strings.TrimSpace(name); name != "" {
			lines = append(lines, "- "+name)
		}
	}
	if len(lines) == 0 {
		return "- (no sources selected)"
	}
	return strings.Join(lines, "\n")
}

func formatNotes(notes []string) string {
	kept := make([]string, 0, len(notes))
	for _, note := range notes {
		if note = strings.TrimSpace(note); note != "" {
			kept = append(kept, note)
		}
	}
	if len(kept) > noteWindow {
		kept = kept[len(kept)-noteWindow:]
	}
	lines := make([]string, 0, len(kept))
	for _, note := range kept {
		lines = append(lines, "Note: "+note)
	}
	return strings.Join(lines, "\n")
}

func formatSnippets(snippets []knowledge.Snippet) string {
	blocks := make([]string, 0, len(snippets))
	for _, s := range snippets {
		blocks = append(blocks, "Snippet: "+s.Text+"\nMeta: "+formatMeta(s.Meta))
	}
	return strings.Join(blocks, "\n\n")
}

// formatMeta renders snippet metadata as key=value pairs sorted by key so
// payloads are stable across runs.
func formatMeta(meta map[string]any) string {
	if len(meta) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, meta[k]))
	}
	return strings.Join(pairs, " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
