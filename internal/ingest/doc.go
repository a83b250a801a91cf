// Package ingest loads source material into the knowledge store.
//
// Three entry points cover the supported source kinds: [Ingestor.AddFile]
// for a single file, [Ingestor.AddDirectory] for a gitignore-aware
// recursive walk, and [Ingestor.AddURL] for crawled web pages. Every
// source is split into overlapping word windows by [Chunker] before
// storage so retrieval works on passages instead of whole documents.
//
// Re-running ingestion for a source is safe: existing chunks for that
// source are removed before the fresh ones are written, so the store
// never accumulates stale copies.
package ingest
