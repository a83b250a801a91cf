package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// DBTX is the subset of pgx executors the queries run against. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so the same queries work inside
// and outside transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries bundles the SQL the stores consume.
type Queries struct {
	db DBTX
}

// New creates Queries over the given executor.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns Queries bound to the transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// UpsertDocumentParams are the inputs for UpsertDocument.
type UpsertDocumentParams struct {
	ID        string
	Content   string
	Embedding pgvector.Vector
	Metadata  []byte
	CreatedAt time.Time
}

const upsertDocument = `
INSERT INTO documents (id, content, embedding, metadata, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
SET content = EXCLUDED.content,
    embedding = EXCLUDED.embedding,
    metadata = EXCLUDED.metadata
`

// UpsertDocument inserts a document or replaces its content, embedding and
// metadata when the ID already exists.
func (q *Queries) UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error {
	_, err := q.db.Exec(ctx, upsertDocument,
		arg.ID, arg.Content, arg.Embedding, arg.Metadata, arg.CreatedAt)
	return err
}

// SearchDocumentsParams are the inputs for SearchDocuments.
type SearchDocumentsParams struct {
	QueryEmbedding pgvector.Vector
	FilterMetadata []byte
	Limit          int32
}

// SearchDocumentsAllParams are the inputs for SearchDocumentsAll.
type SearchDocumentsAllParams struct {
	QueryEmbedding pgvector.Vector
	Limit          int32
}

// DocumentHit is one row of a vector search.
type DocumentHit struct {
	ID         string
	Content    string
	Metadata   []byte
	CreatedAt  time.Time
	Similarity float64
}

const searchDocuments = `
SELECT id, content, metadata, created_at, 1 - (embedding <=> $1) AS similarity
FROM documents
WHERE metadata @> $2::jsonb
ORDER BY embedding <=> $1
LIMIT $3
`

// SearchDocuments performs a filtered cosine similarity search. The filter
// uses JSONB containment against a bound parameter.
func (q *Queries) SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]DocumentHit, error) {
	rows, err := q.db.Query(ctx, searchDocuments,
		arg.QueryEmbedding, arg.FilterMetadata, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocumentHits(rows)
}

const searchDocumentsAll = `
SELECT id, content, metadata, created_at, 1 - (embedding <=> $1) AS similarity
FROM documents
ORDER BY embedding <=> $1
LIMIT $2
`

// SearchDocumentsAll performs an unfiltered cosine similarity search.
func (q *Queries) SearchDocumentsAll(ctx context.Context, arg SearchDocumentsAllParams) ([]DocumentHit, error) {
	rows, err := q.db.Query(ctx, searchDocumentsAll, arg.QueryEmbedding, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocumentHits(rows)
}

func scanDocumentHits(rows pgx.Rows) ([]DocumentHit, error) {
	var hits []DocumentHit
	for rows.Next() {
		var h DocumentHit
		if err := rows.Scan(&h.ID, &h.Content, &h.Metadata, &h.CreatedAt, &h.Similarity); err != nil {
			return nil, fmt.Errorf("scan document hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

const countDocuments = `SELECT count(*) FROM documents WHERE metadata @> $1::jsonb`

// CountDocuments counts documents whose metadata contains the filter.
func (q *Queries) CountDocuments(ctx context.Context, filterMetadata []byte) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countDocuments, filterMetadata).Scan(&count)
	return count, err
}

const countDocumentsAll = `SELECT count(*) FROM documents`

// CountDocumentsAll counts all documents.
func (q *Queries) CountDocumentsAll(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countDocumentsAll).Scan(&count)
	return count, err
}

const deleteDocument = `DELETE FROM documents WHERE id = $1`

// DeleteDocument removes one document by ID.
func (q *Queries) DeleteDocument(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, deleteDocument, id)
	return err
}

const deleteDocumentsBySource = `DELETE FROM documents WHERE metadata->>'source' = $1`

// DeleteDocumentsBySource removes every document indexed from a source
// path or URL, returning the number of rows removed.
func (q *Queries) DeleteDocumentsBySource(ctx context.Context, source string) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteDocumentsBySource, source)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
