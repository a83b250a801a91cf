package knowledge

import (
	"fmt"
	"strings"
	"time"
)

// Source type values used in document metadata.
const (
	// SourceTypeFile marks content indexed from local files.
	SourceTypeFile = "file"

	// SourceTypeWeb marks content indexed from crawled pages.
	SourceTypeWeb = "web"
)

// Document is one indexed knowledge entry, usually a single chunk of a
// larger source file or page.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// Result is a single search hit with its cosine similarity score (0 to 1,
// higher is more similar).
type Result struct {
	Document   Document
	Similarity float64
}

// Snippet is the retrieval view of a search hit: the passage text plus the
// metadata downstream consumers read (source title, page hints).
type Snippet struct {
	Text string
	Meta map[string]any
}

// Snippet converts the hit to its retrieval view, carrying the similarity
// score along in the metadata.
func (r Result) Snippet() Snippet {
	meta := make(map[string]any, len(r.Document.Metadata)+1)
	for k, v := range r.Document.Metadata {
		meta[k] = v
	}
	meta["similarity"] = r.Similarity
	return Snippet{Text: r.Document.Content, Meta: meta}
}

// SourceNames returns the distinct source titles of the snippets in
// retrieval order.
func SourceNames(snippets []Snippet) []string {
	var names []string
	seen := make(map[string]struct{}, len(snippets))

	for _, s := range snippets {
		name := metaTitle(s.Meta)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	return names
}

func metaTitle(meta map[string]any) string {
	for _, key := range []string{"title", "source_title"} {
		if v, ok := meta[key]; ok && v != nil {
			if name := strings.TrimSpace(fmt.Sprint(v)); name != "" {
				return name
			}
		}
	}
	return ""
}

// SearchOption configures Search using the functional options pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK    int32
	filter  map[string]string
	timeout time.Duration
}

// WithTopK sets the maximum number of results to return. Default is 5.
func WithTopK(k int32) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithFilter adds a metadata filter restricting results. Multiple filters
// combine with AND logic.
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

// WithTimeout overrides the per-search timeout. Default is 10 seconds.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    5,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
