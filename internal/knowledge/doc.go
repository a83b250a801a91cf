// Package knowledge provides semantic search over indexed documents with
// PostgreSQL + pgvector.
//
// The [Store] embeds document content through an AI embedder and persists
// it for vector similarity search. The [Retriever] adapts the store to the
// turn engine's context-retrieval contract: a prompt in, citation-ready
// [Snippet] values out, each carrying the source title and page hints the
// citation policy reads.
//
// Key operations:
//
//   - Indexing: [Store.Add], [Store.DeleteBySource]
//   - Search: [Store.Search] with [WithTopK], [WithFilter], [WithTimeout]
//   - Retrieval: [Retriever.Query]
//
// Store is safe for concurrent use; all state lives in PostgreSQL.
package knowledge
