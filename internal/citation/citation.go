// Package citation post-processes a reconciled answer against the sources
// the user selected and the context snippets retrieval produced.
//
// With at most one source in play the answer gets exactly one trailing
// citation tag and any inline tags the model invented are stripped first.
// With several sources the inline text is left alone and a deduplicated
// "Sources" section is appended instead, unless the text already carries
// one.
package citation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/strand-ai/strand/internal/knowledge"
)

var (
	tagPattern     = regexp.MustCompile(`(?i)\[(?:source|quelle)[^\]]*\]`)
	trailingBlanks = regexp.MustCompile(`[ \t]+\n`)
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	sourcesHeading = regexp.MustCompile(`(?im)^#{1,6}\s+sources`)
)

// reference is one distinct (source, page) pair extracted from retrieved
// context metadata.
type reference struct {
	name string
	page string
}

// Apply annotates the answer text with citations. It never fails: missing
// source metadata degrades to returning the text unchanged.
func Apply(text string, selectedSources []string, contexts []knowledge.Snippet) string {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return cleaned
	}

	selected := make([]string, 0, len(selectedSources))
	for _, s := range selectedSources {
		if s = strings.TrimSpace(s); s != "" {
			selected = append(selected, s)
		}
	}
	references := contextReferences(contexts)

	if len(selected) <= 1 {
		name := ""
		if len(selected) == 1 {
			name = selected[0]
		} else if len(references) > 0 {
			name = references[0].name
		}
		if name == "" {
			return cleaned
		}

		body := stripTags(cleaned)
		return body + "\n\n" + formatTag(name, pageForSource(name, references))
	}

	var lines []string
	seen := make(map[string]struct{}, len(selected))
	for _, name := range selected {
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		lines = append(lines, "- "+formatTag(name, pageForSource(name, references)))
	}
	if len(lines) == 0 {
		for _, ref := range references {
			lines = append(lines, "- "+formatTag(ref.name, ref.page))
		}
	}
	if len(lines) == 0 {
		return cleaned
	}

	// Re-running the policy on already-annotated text must not stack
	// a second section.
	if sourcesHeading.MatchString(cleaned) {
		return cleaned
	}

	return cleaned + "\n\n### Sources\n" + strings.Join(lines, "\n")
}

// contextReferences extracts distinct (source, page) pairs from snippet
// metadata, preserving retrieval order.
func contextReferences(contexts []knowledge.Snippet) []reference {
	var refs []reference
	seen := make(map[string]struct{}, len(contexts))

	for _, ctx := range contexts {
		name := metaString(ctx.Meta, "title")
		if name == "" {
			name = metaString(ctx.Meta, "source_title")
		}
		if name == "" {
			continue
		}
		page := pageHint(ctx.Meta)
		key := strings.ToLower(name) + "\x00" + page
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		refs = append(refs, reference{name: name, page: page})
	}
	return refs
}

// pageHint resolves a page label from snippet metadata. Page-style keys
// are taken verbatim; zero-based index keys are converted to one-based
// page numbers.
func pageHint(meta map[string]any) string {
	for _, key := range []string{"page", "page_number", "page_no"} {
		if v := metaString(meta, key); v != "" {
			return v
		}
	}
	for _, key := range []string{"page_index", "chunk_index"} {
		v := metaString(meta, key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		return strconv.Itoa(n + 1)
	}
	return ""
}

func metaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// pageForSource finds the page of the first reference matching the source
// name, compared case-insensitively.
func pageForSource(name string, references []reference) string {
	norm := strings.ToLower(strings.TrimSpace(name))
	for _, ref := range references {
		if strings.ToLower(strings.TrimSpace(ref.name)) == norm {
			return ref.page
		}
	}
	return ""
}

func formatTag(name, page string) string {
	if page != "" {
		return fmt.Sprintf("[Source: %s, page %s]", name, page)
	}
	return fmt.Sprintf("[Source: %s]", name)
}

// stripTags removes inline citation tags and tidies the whitespace the
// removal leaves behind.
func stripTags(text string) string {
	out := tagPattern.ReplaceAllString(text, "")
	out = trailingBlanks.ReplaceAllString(out, "\n")
	out = excessNewlines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
