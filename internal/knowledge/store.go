package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"

	"github.com/strand-ai/strand/internal/database"
	"github.com/strand-ai/strand/internal/log"
)

// Querier is the database surface the store consumes. The interface is
// defined here, by the consumer, so tests can substitute a mock and the
// production implementation stays in the database package.
type Querier interface {
	UpsertDocument(ctx context.Context, arg database.UpsertDocumentParams) error
	SearchDocuments(ctx context.Context, arg database.SearchDocumentsParams) ([]database.DocumentHit, error)
	SearchDocumentsAll(ctx context.Context, arg database.SearchDocumentsAllParams) ([]database.DocumentHit, error)
	CountDocuments(ctx context.Context, filterMetadata []byte) (int64, error)
	CountDocumentsAll(ctx context.Context) (int64, error)
	DeleteDocument(ctx context.Context, id string) error
	DeleteDocumentsBySource(ctx context.Context, source string) (int64, error)
}

// Store manages knowledge documents with vector search. It generates
// embeddings through the configured embedder and persists them with
// PostgreSQL + pgvector.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   log.Logger
}

// New creates a Store. A nil logger disables store logging.
func New(querier Querier, embedder ai.Embedder, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
	}
}

// Add indexes a document, generating its embedding first. Existing
// documents with the same ID are updated in place.
func (s *Store) Add(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return errors.New("document id must not be empty")
	}

	embedding, err := s.embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embed document %q: %w", doc.ID, err)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata for %q: %w", doc.ID, err)
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if err := s.queries.UpsertDocument(ctx, database.UpsertDocumentParams{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: embedding,
		Metadata:  metadataJSON,
		CreatedAt: createdAt,
	}); err != nil {
		return fmt.Errorf("upsert document %q: %w", doc.ID, err)
	}

	s.logger.Debug("added document", "id", doc.ID, "content_length", len(doc.Content))
	return nil
}

// Search returns the documents most similar to the query, best first.
// A per-search timeout guards against runaway vector queries.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	embedding, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timeout: %w", err)
		}
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var rows []database.DocumentHit
	if len(cfg.filter) > 0 {
		// Filters are marshalled here, never interpolated: the JSONB
		// containment operator runs against a bound parameter.
		filterJSON, marshalErr := json.Marshal(cfg.filter)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshal filter: %w", marshalErr)
		}
		rows, err = s.queries.SearchDocuments(queryCtx, database.SearchDocumentsParams{
			QueryEmbedding: embedding,
			FilterMetadata: filterJSON,
			Limit:          cfg.topK,
		})
	} else {
		rows, err = s.queries.SearchDocumentsAll(queryCtx, database.SearchDocumentsAllParams{
			QueryEmbedding: embedding,
			Limit:          cfg.topK,
		})
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search: %w", err)
	}

	return s.rowsToResults(rows), nil
}

// Count returns the number of documents matching the filter, or the total
// count when the filter is empty.
func (s *Store) Count(ctx context.Context, filter map[string]string) (int64, error) {
	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return 0, fmt.Errorf("marshal filter: %w", err)
		}
		count, err := s.queries.CountDocuments(ctx, filterJSON)
		if err != nil {
			return 0, fmt.Errorf("count: %w", err)
		}
		return count, nil
	}

	count, err := s.queries.CountDocumentsAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}

// Delete removes one document by ID.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if err := s.queries.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("delete document %q: %w", docID, err)
	}
	s.logger.Debug("deleted document", "id", docID)
	return nil
}

// DeleteBySource removes every chunk indexed from the given source path or
// URL, returning how many were removed. Used before re-indexing a source.
func (s *Store) DeleteBySource(ctx context.Context, source string) (int64, error) {
	n, err := s.queries.DeleteDocumentsBySource(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("delete documents for source %q: %w", source, err)
	}
	if n > 0 {
		s.logger.Debug("deleted source documents", "source", source, "count", n)
	}
	return n, nil
}

func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return pgvector.Vector{}, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, errors.New("embedder returned no embedding")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

func (s *Store) rowsToResults(rows []database.DocumentHit) []Result {
	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]any
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			s.logger.Warn("unparsable document metadata", "document_id", row.ID, "error", err)
			metadata = make(map[string]any)
		}
		results = append(results, Result{
			Document: Document{
				ID:        row.ID,
				Content:   row.Content,
				Metadata:  metadata,
				CreatedAt: row.CreatedAt,
			},
			Similarity: row.Similarity,
		})
	}
	return results
}
