package ingest

import (
	"fmt"
	"strings"

	"github.com/strand-ai/strand/internal/knowledge"
)

// Chunking defaults sized for prose: windows wide enough to hold a
// coherent passage, with enough overlap that a sentence cut by a window
// boundary still appears whole in one of the neighbors.
const (
	// DefaultChunkSize is the window width in words.
	DefaultChunkSize = 500

	// DefaultChunkOverlap is the number of words consecutive windows share.
	DefaultChunkOverlap = 75
)

// Chunker splits text into overlapping word windows.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates the window geometry: size is the window width in
// words, overlap the words shared between consecutive windows.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split normalizes whitespace and cuts the text into windows. Texts at
// most one window wide come back as a single chunk. Longer texts produce
// windows that advance by size minus overlap; the final window always
// reaches the last word, so short tails are folded into a wider final
// chunk instead of being dropped.
func (c *Chunker) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= c.size {
		return []string{strings.Join(words, " ")}
	}

	var chunks []string
	for start := 0; start < len(words); {
		end := min(start+c.size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end >= len(words) {
			break
		}
		start = end - c.overlap
	}
	return chunks
}

// buildDocuments chunks one source into store documents and attaches the
// metadata the rest of the system reads: "source" drives re-indexing
// cleanup, "title" feeds citations, and "chunk_index" becomes the page
// hint for multi-chunk sources. A source with a blank body is indexed
// under its title alone so it stays discoverable by name.
func buildDocuments(c *Chunker, source, title, sourceType, body string) []knowledge.Document {
	text := body
	if strings.TrimSpace(text) == "" {
		text = title
	}

	chunks := c.Split(text)
	docs := make([]knowledge.Document, 0, len(chunks))
	for i, chunk := range chunks {
		docs = append(docs, knowledge.Document{
			ID:      fmt.Sprintf("%s#%d", source, i),
			Content: chunk,
			Metadata: map[string]any{
				"source":      source,
				"title":       title,
				"source_type": sourceType,
				"chunk_index": i,
				"chunk_count": len(chunks),
			},
		})
	}
	return docs
}
