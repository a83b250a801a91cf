package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/strand-ai/strand/internal/knowledge"
	"github.com/strand-ai/strand/internal/log"
	"github.com/strand-ai/strand/internal/security"
)

// Store is the slice of the knowledge store ingestion needs: writing
// chunk documents and clearing a source's previous chunks before it is
// re-indexed. *knowledge.Store satisfies it.
type Store interface {
	Add(ctx context.Context, doc knowledge.Document) error
	DeleteBySource(ctx context.Context, source string) (int64, error)
}

const (
	// defaultMaxFileBytes caps a single file; chunking handles the rest,
	// this only keeps accidental huge blobs out of the embedding queue.
	defaultMaxFileBytes = 10 << 20

	// defaultMaxPages caps one crawl so a link-dense site cannot turn a
	// single AddURL call into an unbounded walk.
	defaultMaxPages = 10

	defaultFetchTimeout = 30 * time.Second
)

// Config adjusts ingestion behavior. The zero value is usable; every
// field falls back to a sensible default.
type Config struct {
	// ChunkSize and ChunkOverlap control the word windows sources are
	// split into. Zero means DefaultChunkSize and DefaultChunkOverlap;
	// when only a small custom size is given, the overlap keeps the
	// default size-to-overlap ratio.
	ChunkSize    int
	ChunkOverlap int

	// Extensions overrides the indexable file extension set (values such
	// as ".md"). Empty means the default text and code formats.
	Extensions []string

	// MaxFileBytes skips larger files during directory walks and rejects
	// them in AddFile.
	MaxFileBytes int64

	// MaxDepth bounds link following for AddURL: 1 fetches only the
	// given page, 2 also fetches same-host pages it links to, and so on.
	MaxDepth int

	// MaxPages caps how many pages one AddURL call may fetch.
	MaxPages int

	// FetchTimeout bounds each page request.
	FetchTimeout time.Duration

	// AllowPrivateHosts disables the SSRF guard so URLs resolving to
	// loopback or private ranges can be indexed. Leave it off unless the
	// corpus genuinely lives on an internal network.
	AllowPrivateHosts bool
}

// Result summarizes one ingestion run.
type Result struct {
	SourcesIndexed int           // files or pages whose chunks were stored
	SourcesSkipped int           // ignored, unsupported, or oversized files
	SourcesFailed  int           // sources that could not be read or stored
	ChunksAdded    int           // documents written to the store
	TotalBytes     int64         // raw size of everything indexed
	Duration       time.Duration
}

// Ingestor loads files, directories, and web pages into the knowledge
// store as chunked documents.
type Ingestor struct {
	store        Store
	chunker      *Chunker
	extensions   map[string]bool
	maxFileBytes int64
	maxDepth     int
	maxPages     int
	fetchTimeout time.Duration
	urlValidator *security.URL // nil when private hosts are allowed
	logger       log.Logger
}

// New builds an Ingestor over the given store. A nil logger disables
// logging.
func New(store Store, cfg Config, logger log.Logger) (*Ingestor, error) {
	if store == nil {
		return nil, errors.New("ingest store is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	size := cfg.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	overlap := cfg.ChunkOverlap
	if overlap <= 0 {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size * DefaultChunkOverlap / DefaultChunkSize
		}
	}
	chunker, err := NewChunker(size, overlap)
	if err != nil {
		return nil, err
	}

	exts := make(map[string]bool, len(supportedExtensions))
	if len(cfg.Extensions) > 0 {
		for _, ext := range cfg.Extensions {
			exts[strings.ToLower(ext)] = true
		}
	} else {
		for ext := range supportedExtensions {
			exts[ext] = true
		}
	}

	ing := &Ingestor{
		store:        store,
		chunker:      chunker,
		extensions:   exts,
		maxFileBytes: cfg.MaxFileBytes,
		maxDepth:     cfg.MaxDepth,
		maxPages:     cfg.MaxPages,
		fetchTimeout: cfg.FetchTimeout,
		logger:       logger,
	}
	if ing.maxFileBytes <= 0 {
		ing.maxFileBytes = defaultMaxFileBytes
	}
	if ing.maxDepth <= 0 {
		ing.maxDepth = 1
	}
	if ing.maxPages <= 0 {
		ing.maxPages = defaultMaxPages
	}
	if ing.fetchTimeout <= 0 {
		ing.fetchTimeout = defaultFetchTimeout
	}
	if !cfg.AllowPrivateHosts {
		ing.urlValidator = security.NewURL()
	}
	return ing, nil
}

// ingestSource replaces one source's chunks in the store. Previous
// chunks are deleted first so re-indexing a shrunken document leaves no
// orphans behind.
func (ing *Ingestor) ingestSource(ctx context.Context, source, title, sourceType, body string) (int, error) {
	if _, err := ing.store.DeleteBySource(ctx, source); err != nil {
		return 0, fmt.Errorf("clear previous chunks of %s: %w", source, err)
	}

	docs := buildDocuments(ing.chunker, source, title, sourceType, body)
	for _, doc := range docs {
		if err := ing.store.Add(ctx, doc); err != nil {
			return 0, fmt.Errorf("store chunk %s: %w", doc.ID, err)
		}
	}

	ing.logger.Debug("source ingested", "source", source, "type", sourceType, "chunks", len(docs))
	return len(docs), nil
}
